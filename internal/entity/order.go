package entity

type OrderType string
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderTypeMarket OrderType = "MARKET"
)

// OrderTicket is the response envelope for a submitted market order. Status
// is the broker-reported order status at submission time, not at fill time.
type OrderTicket struct {
	Success   bool      `json:"success"`
	OrderID   int64     `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Action    OrderSide `json:"action"`
	Quantity  int64     `json:"quantity"`
	OrderType OrderType `json:"order_type"`
	Status    string    `json:"status"`
}

// ConnectionReport describes the outcome of a gateway connection check. The
// connection parameters are always included for diagnosis.
type ConnectionReport struct {
	Success   bool     `json:"success"`
	Connected bool     `json:"connected,omitempty"`
	Error     string   `json:"error,omitempty"`
	Accounts  []string `json:"accounts,omitempty"`
	Host      string   `json:"host"`
	Port      int      `json:"port"`
	ClientID  int64    `json:"client_id"`
}
