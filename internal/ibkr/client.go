// Package ibkr wraps connectivity to an Interactive Brokers TWS or
// IB Gateway process behind a small client interface. The wire protocol is
// owned by the broker connectivity library; this package only exposes the
// operations the trading gateway consumes.
package ibkr

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotConnected     = errors.New("gateway session is not connected")
	ErrContractNotFound = errors.New("contract not found")
)

// Contract is a qualified, tradable instrument as resolved by the gateway.
type Contract struct {
	ConID           int64  `json:"con_id"`
	Symbol          string `json:"symbol"`
	SecurityType    string `json:"security_type"`
	Exchange        string `json:"exchange"`
	PrimaryExchange string `json:"primary_exchange,omitempty"`
	Currency        string `json:"currency"`
}

// Ticket is the gateway's view of a submitted order at a point in time.
type Ticket struct {
	OrderID      int64
	Status       string
	Filled       decimal.Decimal
	AvgFillPrice decimal.Decimal
	Account      string
}

// Client is one logical connection to a TWS/IB Gateway session.
//
// Implementations are not required to be safe for concurrent use; callers
// serialize access.
type Client interface {
	// Connect establishes the session. Calling Connect on an already
	// connected client is a no-op.
	Connect(ctx context.Context) error

	// IsConnected reports the live connection state, not a cached flag.
	IsConnected() bool

	// ManagedAccounts returns the account identifiers the gateway reports
	// as available under the current session.
	ManagedAccounts(ctx context.Context) ([]string, error)

	// QualifyContract resolves a ticker symbol to one concrete tradable
	// contract on the given venue and currency.
	QualifyContract(ctx context.Context, symbol, exchange, currency string) (*Contract, error)

	// PlaceMarketOrder submits a market order for a qualified contract and
	// returns the broker-assigned order id with its initial status.
	PlaceMarketOrder(ctx context.Context, contract *Contract, action string, quantity int64) (*Ticket, error)

	// OrderStatus returns the latest broker-reported status for an order
	// placed on this session, or false when none has arrived yet.
	OrderStatus(orderID int64) (*Ticket, bool)

	// Disconnect tears the session down. Safe to call when not connected.
	Disconnect() error
}

// Dialer builds a fresh, unconnected client. The per-request connection
// policy dials a new client for every operation.
type Dialer func() Client
