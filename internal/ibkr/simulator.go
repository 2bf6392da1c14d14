package ibkr

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Simulator is an in-memory gateway session used by tests and by the
// --simulate development mode. Every symbol in KnownSymbols qualifies;
// everything else fails qualification the way a live gateway would.
type Simulator struct {
	mu sync.Mutex

	KnownSymbols []string
	Accounts     []string

	// Failure injection.
	ConnectErr       error
	PlaceOrderErr    error
	AccountsErr      error
	QualifyErr       error
	DropAfterConnect bool // connect call succeeds but session never goes live

	connected bool
	orderSeq  int64
	statuses  map[int64]*Ticket

	ConnectCalls    int
	DisconnectCalls int
	QualifyCalls    int
	PlaceCalls      int
}

var _ Client = (*Simulator)(nil)

func NewSimulator() *Simulator {
	return &Simulator{
		KnownSymbols: []string{"AAPL", "MSFT", "TSLA"},
		Accounts:     []string{"DU1234567"},
		orderSeq:     1,
		statuses:     map[int64]*Ticket{},
	}
}

// NewSimulatorDialer returns a Dialer handing out the same simulator
// instance, so tests can inspect it across per-request sessions.
func NewSimulatorDialer(sim *Simulator) Dialer {
	return func() Client {
		return sim
	}
}

func (s *Simulator) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ConnectCalls++

	if s.ConnectErr != nil {
		s.connected = false
		return s.ConnectErr
	}
	if s.DropAfterConnect {
		s.connected = false
		return nil
	}

	s.connected = true
	return nil
}

func (s *Simulator) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Simulator) ManagedAccounts(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.AccountsErr != nil {
		return nil, s.AccountsErr
	}

	return append([]string(nil), s.Accounts...), nil
}

func (s *Simulator) QualifyContract(_ context.Context, symbol, exchange, currency string) (*Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.QualifyCalls++

	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.QualifyErr != nil {
		s.connected = false
		return nil, s.QualifyErr
	}

	for i, known := range s.KnownSymbols {
		if known == symbol {
			return &Contract{
				ConID:           int64(1000 + i),
				Symbol:          symbol,
				SecurityType:    "STK",
				Exchange:        exchange,
				PrimaryExchange: "NASDAQ",
				Currency:        currency,
			}, nil
		}
	}

	return nil, ErrContractNotFound
}

func (s *Simulator) PlaceMarketOrder(_ context.Context, contract *Contract, action string, quantity int64) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.PlaceCalls++

	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.PlaceOrderErr != nil {
		s.connected = false
		return nil, s.PlaceOrderErr
	}

	orderID := s.orderSeq
	s.orderSeq++

	// Paper orders fill immediately at a synthetic price.
	s.statuses[orderID] = &Ticket{
		OrderID:      orderID,
		Status:       "Filled",
		Filled:       decimal.NewFromInt(quantity),
		AvgFillPrice: decimal.NewFromInt(100),
		Account:      s.firstAccount(),
	}

	return &Ticket{
		OrderID: orderID,
		Status:  "Submitted",
		Account: s.firstAccount(),
	}, nil
}

func (s *Simulator) OrderStatus(orderID int64) (*Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.statuses[orderID]
	if !ok {
		return nil, false
	}

	copied := *ticket
	return &copied, true
}

func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.DisconnectCalls++
	s.connected = false
	return nil
}

// OpenConnections reports whether the simulated session is still live; the
// per-request policy tests assert this drops back to zero.
func (s *Simulator) OpenConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return 1
	}
	return 0
}

func (s *Simulator) firstAccount() string {
	if len(s.Accounts) == 0 {
		return ""
	}
	return s.Accounts[0]
}
