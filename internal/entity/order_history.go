package entity

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type OrderHistory struct {
	ID             string           `db:"id" json:"id"`
	RequestID      string           `db:"request_id" json:"request_id"`
	Symbol         string           `db:"symbol" json:"symbol"`
	OrderID        string           `db:"order_id" json:"order_id"`
	Account        sql.NullString   `db:"account" json:"account"`
	Side           OrderSide        `db:"side" json:"side"`
	Type           OrderType        `db:"type" json:"type"`
	Quantity       decimal.Decimal  `db:"quantity" json:"quantity"`
	FilledQuantity decimal.Decimal  `db:"filled_quantity" json:"filled_quantity"`
	AvgFillPrice   *decimal.Decimal `db:"avg_fill_price" json:"avg_fill_price"`
	Status         string           `db:"status" json:"status"`
	ErrorMessage   sql.NullString   `db:"error_message" json:"error_message"`
	SentAt         sql.NullTime     `db:"sent_at" json:"sent_at"`
	AcknowledgedAt sql.NullTime     `db:"acknowledged_at" json:"acknowledged_at"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
	IsPaperTrading bool             `db:"is_paper_trading" json:"is_paper_trading"`
}

func (o OrderHistory) TableName() string {
	return "order_histories"
}
