package ibkr

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSimulatorLifecycle(t *testing.T) {
	sim := NewSimulator()

	if sim.IsConnected() {
		t.Fatal("fresh simulator reports connected")
	}

	if err := sim.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	if !sim.IsConnected() {
		t.Fatal("IsConnected() = false after connect")
	}

	accounts, err := sim.ManagedAccounts(context.Background())
	if err != nil {
		t.Fatalf("ManagedAccounts() returned error: %v", err)
	}
	if len(accounts) == 0 {
		t.Error("ManagedAccounts() returned no accounts")
	}

	if err := sim.Disconnect(); err != nil {
		t.Fatalf("Disconnect() returned error: %v", err)
	}
	if sim.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}

func TestSimulatorRequiresConnection(t *testing.T) {
	sim := NewSimulator()

	if _, err := sim.ManagedAccounts(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ManagedAccounts() error = %v, want ErrNotConnected", err)
	}
	if _, err := sim.QualifyContract(context.Background(), "AAPL", "SMART", "USD"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("QualifyContract() error = %v, want ErrNotConnected", err)
	}
	if _, err := sim.PlaceMarketOrder(context.Background(), &Contract{Symbol: "AAPL"}, "BUY", 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PlaceMarketOrder() error = %v, want ErrNotConnected", err)
	}
}

func TestSimulatorQualifyContract(t *testing.T) {
	sim := NewSimulator()
	if err := sim.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	contract, err := sim.QualifyContract(context.Background(), "AAPL", "SMART", "USD")
	if err != nil {
		t.Fatalf("QualifyContract() returned error: %v", err)
	}
	if contract.Symbol != "AAPL" || contract.Exchange != "SMART" || contract.Currency != "USD" {
		t.Errorf("contract = %+v", contract)
	}
	if contract.ConID == 0 {
		t.Error("contract.ConID = 0, want assigned id")
	}

	if _, err := sim.QualifyContract(context.Background(), "ZZZZ", "SMART", "USD"); !errors.Is(err, ErrContractNotFound) {
		t.Errorf("unknown symbol error = %v, want ErrContractNotFound", err)
	}
}

func TestSimulatorPlaceAndStatus(t *testing.T) {
	sim := NewSimulator()
	if err := sim.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	contract, err := sim.QualifyContract(context.Background(), "TSLA", "SMART", "USD")
	if err != nil {
		t.Fatal(err)
	}

	ticket, err := sim.PlaceMarketOrder(context.Background(), contract, "BUY", 4)
	if err != nil {
		t.Fatalf("PlaceMarketOrder() returned error: %v", err)
	}
	if ticket.OrderID <= 0 {
		t.Fatalf("ticket.OrderID = %d, want > 0", ticket.OrderID)
	}

	latest, ok := sim.OrderStatus(ticket.OrderID)
	if !ok {
		t.Fatal("OrderStatus() found no ticket for placed order")
	}
	if latest.Status != "Filled" {
		t.Errorf("latest.Status = %q, want Filled", latest.Status)
	}
	if !latest.Filled.Equal(decimal.NewFromInt(4)) {
		t.Errorf("latest.Filled = %s, want 4", latest.Filled)
	}

	second, err := sim.PlaceMarketOrder(context.Background(), contract, "SELL", 2)
	if err != nil {
		t.Fatal(err)
	}
	if second.OrderID <= ticket.OrderID {
		t.Errorf("order ids did not advance: %d then %d", ticket.OrderID, second.OrderID)
	}

	if _, ok := sim.OrderStatus(999999); ok {
		t.Error("OrderStatus() reported a ticket for an unknown order id")
	}
}
