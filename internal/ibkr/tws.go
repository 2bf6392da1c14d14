package ibkr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hadrianl/ibapi"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TWS error code for "No security definition has been found for the request".
const twsErrNoSecurityDefinition = 200

const accountsWaitTimeout = 2 * time.Second

// TWSClient talks to a TWS/IB Gateway instance through the IB API socket
// protocol, delegated entirely to the ibapi library. All callback-driven
// request/response correlation is bridged to synchronous calls here.
type TWSClient struct {
	host     string
	port     int
	clientID int64

	mu      sync.Mutex
	ic      *ibapi.IbClient
	wrapper *twsWrapper
}

var _ Client = (*TWSClient)(nil)

func NewTWSClient(host string, port int, clientID int64) *TWSClient {
	return &TWSClient{
		host:     host,
		port:     port,
		clientID: clientID,
	}
}

// NewTWSDialer returns a Dialer producing fresh TWS sessions for the given
// connection identity tuple.
func NewTWSDialer(host string, port int, clientID int64) Dialer {
	return func() Client {
		return NewTWSClient(host, port, clientID)
	}
}

func (c *TWSClient) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wrapper != nil && c.wrapper.isConnected() {
		return nil
	}

	wrapper := newTWSWrapper()
	ic := ibapi.NewIbClient(wrapper)

	if err := ic.Connect(c.host, c.port, c.clientID); err != nil {
		logrus.WithFields(logrus.Fields{
			"host":      c.host,
			"port":      c.port,
			"client_id": c.clientID,
		}).Errorf("tws connect failed: %v", err)
		return err
	}

	// HandShake completes once the gateway reports the next valid order id;
	// managed accounts arrive on the same exchange.
	if err := ic.HandShake(); err != nil {
		logrus.Errorf("tws handshake failed: %v", err)
		_ = ic.Disconnect()
		return err
	}

	ic.Run()

	wrapper.setConnected(true)
	c.ic = ic
	c.wrapper = wrapper

	return nil
}

func (c *TWSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ic != nil && c.wrapper != nil && c.wrapper.isConnected()
}

func (c *TWSClient) ManagedAccounts(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	ic, wrapper := c.ic, c.wrapper
	c.mu.Unlock()

	if ic == nil || wrapper == nil || !wrapper.isConnected() {
		return nil, ErrNotConnected
	}

	if accounts := wrapper.accountList(); len(accounts) > 0 {
		return accounts, nil
	}

	ic.ReqManagedAccts()

	waitCtx, cancel := context.WithTimeout(ctx, accountsWaitTimeout)
	defer cancel()

	select {
	case <-wrapper.accountsReady:
		return wrapper.accountList(), nil
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	}
}

func (c *TWSClient) QualifyContract(ctx context.Context, symbol, exchange, currency string) (*Contract, error) {
	c.mu.Lock()
	ic, wrapper := c.ic, c.wrapper
	c.mu.Unlock()

	if ic == nil || wrapper == nil || !wrapper.isConnected() {
		return nil, ErrNotConnected
	}

	reqID, wait := wrapper.registerQualify()
	defer wrapper.dropQualify(reqID)

	ic.ReqContractDetails(reqID, &ibapi.Contract{
		Symbol:       symbol,
		SecurityType: "STK",
		Exchange:     exchange,
		Currency:     currency,
	})

	select {
	case <-wait.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if wait.err != nil {
		return nil, wait.err
	}
	if len(wait.details) == 0 {
		return nil, ErrContractNotFound
	}

	resolved := wait.details[0].Contract

	return &Contract{
		ConID:           resolved.ContractID,
		Symbol:          resolved.Symbol,
		SecurityType:    resolved.SecurityType,
		Exchange:        resolved.Exchange,
		PrimaryExchange: resolved.PrimaryExchange,
		Currency:        resolved.Currency,
	}, nil
}

func (c *TWSClient) PlaceMarketOrder(_ context.Context, contract *Contract, action string, quantity int64) (*Ticket, error) {
	c.mu.Lock()
	ic, wrapper := c.ic, c.wrapper
	c.mu.Unlock()

	if ic == nil || wrapper == nil || !wrapper.isConnected() {
		return nil, ErrNotConnected
	}

	orderID := wrapper.nextOrderID()
	if orderID <= 0 {
		return nil, fmt.Errorf("gateway has not issued a valid order id")
	}

	order := ibapi.NewMarketOrder(action, float64(quantity))

	ic.PlaceOrder(orderID, &ibapi.Contract{
		ContractID:      contract.ConID,
		Symbol:          contract.Symbol,
		SecurityType:    contract.SecurityType,
		Exchange:        contract.Exchange,
		PrimaryExchange: contract.PrimaryExchange,
		Currency:        contract.Currency,
	}, order)

	// The gateway acknowledges asynchronously through OrderStatus callbacks.
	// PendingSubmit mirrors what the API reports before the first ack.
	return &Ticket{
		OrderID: orderID,
		Status:  "PendingSubmit",
	}, nil
}

func (c *TWSClient) OrderStatus(orderID int64) (*Ticket, bool) {
	c.mu.Lock()
	wrapper := c.wrapper
	c.mu.Unlock()

	if wrapper == nil {
		return nil, false
	}

	return wrapper.orderStatus(orderID)
}

func (c *TWSClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ic == nil {
		return nil
	}

	err := c.ic.Disconnect()
	if c.wrapper != nil {
		c.wrapper.setConnected(false)
	}
	c.ic = nil
	c.wrapper = nil

	return err
}

type qualifyWait struct {
	details []*ibapi.ContractDetails
	err     error
	done    chan struct{}
}

// twsWrapper receives the ibapi callback stream and fans results out to the
// synchronous calls waiting on them. It embeds the library's default wrapper
// so unhandled callbacks keep their stock logging behavior.
type twsWrapper struct {
	ibapi.Wrapper

	mu             sync.Mutex
	connected      bool
	accounts       []string
	accountsReady  chan struct{}
	accountsOnce   sync.Once
	orderIDSeed    int64
	pendingQualify map[int64]*qualifyWait
	statuses       map[int64]*Ticket
	qualifyReqSeq  int64
}

func newTWSWrapper() *twsWrapper {
	return &twsWrapper{
		accountsReady:  make(chan struct{}),
		pendingQualify: make(map[int64]*qualifyWait),
		statuses:       make(map[int64]*Ticket),
	}
}

func (w *twsWrapper) isConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *twsWrapper) setConnected(connected bool) {
	w.mu.Lock()
	w.connected = connected
	w.mu.Unlock()
}

func (w *twsWrapper) accountList() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.accounts...)
}

func (w *twsWrapper) nextOrderID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.orderIDSeed
	if id > 0 {
		w.orderIDSeed++
	}
	return id
}

func (w *twsWrapper) registerQualify() (int64, *qualifyWait) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.qualifyReqSeq++
	reqID := w.qualifyReqSeq
	wait := &qualifyWait{done: make(chan struct{})}
	w.pendingQualify[reqID] = wait

	return reqID, wait
}

func (w *twsWrapper) dropQualify(reqID int64) {
	w.mu.Lock()
	delete(w.pendingQualify, reqID)
	w.mu.Unlock()
}

func (w *twsWrapper) orderStatus(orderID int64) (*Ticket, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ticket, ok := w.statuses[orderID]
	if !ok {
		return nil, false
	}

	copied := *ticket
	return &copied, true
}

func (w *twsWrapper) ConnectionClosed() {
	logrus.Warn("tws connection closed")
	w.setConnected(false)
}

func (w *twsWrapper) NextValidID(reqID int64) {
	w.mu.Lock()
	if reqID > w.orderIDSeed {
		w.orderIDSeed = reqID
	}
	w.mu.Unlock()
}

func (w *twsWrapper) ManagedAccounts(accountsList []string) {
	w.mu.Lock()
	w.accounts = append([]string(nil), accountsList...)
	w.mu.Unlock()

	w.accountsOnce.Do(func() {
		close(w.accountsReady)
	})
}

func (w *twsWrapper) ContractDetails(reqID int64, conDetails *ibapi.ContractDetails) {
	w.mu.Lock()
	if wait, ok := w.pendingQualify[reqID]; ok {
		wait.details = append(wait.details, conDetails)
	}
	w.mu.Unlock()
}

func (w *twsWrapper) ContractDetailsEnd(reqID int64) {
	w.mu.Lock()
	wait, ok := w.pendingQualify[reqID]
	if ok {
		delete(w.pendingQualify, reqID)
	}
	w.mu.Unlock()

	if ok {
		close(wait.done)
	}
}

func (w *twsWrapper) OrderStatus(orderID int64, status string, filled float64, remaining float64, avgFillPrice float64, permID int64, parentID int64, lastFillPrice float64, clientID int64, whyHeld string, mktCapPrice float64) {
	w.mu.Lock()
	w.statuses[orderID] = &Ticket{
		OrderID:      orderID,
		Status:       status,
		Filled:       decimal.NewFromFloat(filled),
		AvgFillPrice: decimal.NewFromFloat(avgFillPrice),
	}
	w.mu.Unlock()
}

func (w *twsWrapper) Error(reqID int64, errCode int64, errString string) {
	w.mu.Lock()
	wait, ok := w.pendingQualify[reqID]
	if ok {
		delete(w.pendingQualify, reqID)
		if errCode != twsErrNoSecurityDefinition {
			wait.err = fmt.Errorf("tws error %d: %s", errCode, errString)
		}
	}
	w.mu.Unlock()

	if ok {
		close(wait.done)
		return
	}

	logrus.WithFields(logrus.Fields{
		"req_id":   reqID,
		"err_code": errCode,
	}).Warnf("tws error: %s", errString)
}
