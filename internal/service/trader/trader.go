// Package trader owns the broker session lifecycle: connecting to the IBKR
// gateway, connection checks, and market order submission. All failures are
// returned as values; nothing escapes to the HTTP layer as a panic.
package trader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ibkr-paper-gateway/internal/constant"
	"ibkr-paper-gateway/internal/entity"
	"ibkr-paper-gateway/internal/ibkr"
	"ibkr-paper-gateway/internal/orderstream"
	"ibkr-paper-gateway/internal/repository"
	"ibkr-paper-gateway/internal/service"
	"ibkr-paper-gateway/internal/util"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Policy string

const (
	// PolicyReuse keeps one gateway session alive across requests.
	PolicyReuse Policy = "reuse"
	// PolicyPerRequest opens a fresh session per operation and always tears
	// it down before returning.
	PolicyPerRequest Policy = "per_request"
)

const (
	contractExchange = "SMART"
	contractCurrency = "USD"

	defaultSettleDelay = 100 * time.Millisecond
)

// Error messages here are part of the response contract.
var (
	ErrConnectFailed      = errors.New("Failed to connect to IBKR")
	ErrNoActiveConnection = errors.New("No active connection to IBKR")
)

// QualificationError reports a symbol that could not be resolved to a
// tradable contract. Terminal for the request, never retried.
type QualificationError struct {
	Symbol string
}

func (e *QualificationError) Error() string {
	return fmt.Sprintf("Could not qualify contract for symbol %s", e.Symbol)
}

type Options struct {
	Policy      Policy
	Host        string
	Port        int
	ClientID    int64
	SettleDelay time.Duration

	// Optional collaborators; nil disables the concern.
	HistoryRepo   *repository.OrderHistoryRepository
	Jetstream     nats.JetStreamContext
	Stream        *orderstream.Hub
	ContractCache service.ContractCache
}

// Trader is the broker session. The mutex serializes all gateway access so
// the reuse policy is safe under concurrent HTTP requests.
type Trader struct {
	dial ibkr.Dialer
	opts Options

	mu      sync.Mutex
	session ibkr.Client
	// connected is advisory only; every operation re-verifies the live
	// state through the client before trusting it.
	connected bool
}

func New(dial ibkr.Dialer, opts Options) *Trader {
	if opts.Policy == "" {
		opts.Policy = PolicyPerRequest
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}

	return &Trader{
		dial: dial,
		opts: opts,
	}
}

// Connected reports the advisory cached connection flag.
func (t *Trader) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Trader) Policy() Policy {
	return t.opts.Policy
}

// Connect establishes a gateway session. Idempotent under the reuse policy;
// under the per-request policy it probes with a throwaway session.
func (t *Trader) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	client, release := t.acquireLocked()
	defer release()

	return t.ensureConnectedLocked(ctx, client)
}

// TestConnection attempts a (re)connection and reports the managed accounts
// alongside the connection parameters. It never returns an error; failures
// are carried in the report.
func (t *Trader) TestConnection(ctx context.Context) *entity.ConnectionReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := &entity.ConnectionReport{
		Host:     t.opts.Host,
		Port:     t.opts.Port,
		ClientID: t.opts.ClientID,
	}

	client, release := t.acquireLocked()
	defer release()

	if err := t.ensureConnectedLocked(ctx, client); err != nil {
		report.Error = "Failed to establish connection"
		return report
	}

	accounts, err := client.ManagedAccounts(ctx)
	if err != nil {
		logrus.Errorf("connection test failed: %v", err)
		t.connected = false
		report.Error = err.Error()
		return report
	}

	report.Success = true
	report.Connected = true
	report.Accounts = accounts

	return report
}

// SubmitMarketOrder qualifies the symbol against SMART/USD, submits a market
// order, waits the settle delay, and returns the broker-reported status at
// that instant. The settle delay is best-effort synchronization, not a
// guarantee the order filled or was fully acknowledged.
func (t *Trader) SubmitMarketOrder(ctx context.Context, symbol string, action entity.OrderSide, quantity int64) (*entity.OrderTicket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	action = entity.OrderSide(strings.ToUpper(string(action)))

	client, release := t.acquireLocked()
	defer release()

	if err := t.ensureConnectedLocked(ctx, client); err != nil {
		logrus.Errorf("failed to connect to IBKR: %v", err)
		return nil, ErrConnectFailed
	}

	// Connect can race with an external disconnect; re-verify before
	// touching the order path.
	if !client.IsConnected() {
		t.connected = false
		return nil, ErrNoActiveConnection
	}

	contract, err := t.qualifyLocked(ctx, client, symbol)
	if err != nil {
		return nil, err
	}

	ticket, err := client.PlaceMarketOrder(ctx, contract, string(action), quantity)
	if err != nil {
		logrus.Errorf("error placing market order: %v", err)
		t.connected = false
		return nil, err
	}

	// Give the gateway a moment to acknowledge before reading the status
	// back. The status returned is a snapshot, not a terminal state.
	time.Sleep(t.opts.SettleDelay)

	status := ticket.Status
	if latest, ok := client.OrderStatus(ticket.OrderID); ok {
		ticket = latest
		status = latest.Status
	}

	result := &entity.OrderTicket{
		Success:   true,
		OrderID:   ticket.OrderID,
		Symbol:    symbol,
		Action:    action,
		Quantity:  quantity,
		OrderType: entity.OrderTypeMarket,
		Status:    status,
	}

	t.recordOrder(ctx, result, ticket)
	t.publishOrder(result)
	t.broadcastOrder(result)

	return result, nil
}

// Disconnect tears down the shared session, if any.
func (t *Trader) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected = false
	if t.session == nil {
		return nil
	}

	err := t.session.Disconnect()
	t.session = nil
	return err
}

// JetstreamEventInit creates or updates the order event stream.
func (t *Trader) JetstreamEventInit(ctx context.Context) error {
	if t.opts.Jetstream == nil {
		return nil
	}

	streamConfig := &nats.StreamConfig{
		Name:      constant.OrderStreamName,
		Subjects:  []string{constant.OrderStreamSubjectAll},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
	}

	stream, err := t.opts.Jetstream.StreamInfo(constant.OrderStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.OrderStreamName)
		_, err = t.opts.Jetstream.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.OrderStreamName)
	_, err = t.opts.Jetstream.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

// acquireLocked hands out the gateway client for this operation plus a
// release func honoring the connection policy. Callers hold t.mu.
func (t *Trader) acquireLocked() (ibkr.Client, func()) {
	if t.opts.Policy == PolicyReuse {
		if t.session == nil {
			t.session = t.dial()
		}
		return t.session, func() {}
	}

	client := t.dial()
	release := func() {
		// Guaranteed teardown on every exit path, success or failure.
		if client.IsConnected() {
			if err := client.Disconnect(); err != nil {
				logrus.Errorf("failed to disconnect gateway session: %v", err)
			}
		}
	}

	return client, release
}

// ensureConnectedLocked makes sure the client session is live. Idempotent:
// an already connected session is used as-is, no second handshake. The
// liveness check after connecting is deliberate; the connect call can
// complete without the session ever reaching a connected state.
func (t *Trader) ensureConnectedLocked(ctx context.Context, client ibkr.Client) error {
	if client.IsConnected() {
		t.connected = true
		return nil
	}

	if err := client.Connect(ctx); err != nil {
		t.connected = false
		return err
	}

	if !client.IsConnected() {
		t.connected = false
		return errors.New("gateway session did not reach connected state")
	}

	t.connected = true
	return nil
}

func (t *Trader) qualifyLocked(ctx context.Context, client ibkr.Client, symbol string) (*ibkr.Contract, error) {
	if t.opts.ContractCache != nil {
		contract, found, err := t.opts.ContractCache.Load(ctx, symbol, contractExchange, contractCurrency)
		if err != nil {
			logrus.Warnf("contract cache load failed: %v", err)
		}
		if found {
			return contract, nil
		}
	}

	contract, err := client.QualifyContract(ctx, symbol, contractExchange, contractCurrency)
	if err != nil {
		if errors.Is(err, ibkr.ErrContractNotFound) {
			return nil, &QualificationError{Symbol: symbol}
		}

		logrus.Errorf("contract qualification failed: %v", err)
		t.connected = false
		return nil, err
	}

	if t.opts.ContractCache != nil {
		if err := t.opts.ContractCache.Save(ctx, contract); err != nil {
			logrus.Warnf("contract cache save failed: %v", err)
		}
	}

	return contract, nil
}

// recordOrder persists the submitted order. The order already reached the
// gateway, so persistence failures are logged, not surfaced.
func (t *Trader) recordOrder(ctx context.Context, result *entity.OrderTicket, ticket *ibkr.Ticket) {
	if t.opts.HistoryRepo == nil {
		return
	}

	now := time.Now().UTC()

	history := &entity.OrderHistory{
		RequestID:      uuid.NewString(),
		Symbol:         result.Symbol,
		OrderID:        fmt.Sprintf("%d", result.OrderID),
		Side:           result.Action,
		Type:           result.OrderType,
		Quantity:       decimal.NewFromInt(result.Quantity),
		FilledQuantity: ticket.Filled,
		Status:         result.Status,
		SentAt:         sql.NullTime{Time: now, Valid: true},
		AcknowledgedAt: sql.NullTime{Time: now, Valid: true},
		CreatedAt:      now,
		UpdatedAt:      now,
		IsPaperTrading: true,
	}
	if !ticket.AvgFillPrice.IsZero() {
		avg := ticket.AvgFillPrice
		history.AvgFillPrice = &avg
	}
	if ticket.Account != "" {
		history.Account = sql.NullString{String: ticket.Account, Valid: true}
	}

	if err := t.opts.HistoryRepo.Create(ctx, history); err != nil {
		logrus.Errorf("failed to record order history: %v", err)
	}
}

func (t *Trader) publishOrder(result *entity.OrderTicket) {
	if t.opts.Jetstream == nil {
		return
	}

	err := util.PublishEvent(t.opts.Jetstream, constant.OrderStreamSubjectPlaced, entity.OrderPlacedEvent{Data: *result})
	if err != nil {
		logrus.Errorf("failed to publish order event: %v", err)
	}
}

func (t *Trader) broadcastOrder(result *entity.OrderTicket) {
	if t.opts.Stream == nil {
		return
	}

	t.opts.Stream.Broadcast(result)
}
