package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ibkr-paper-gateway/internal/config"
	"ibkr-paper-gateway/internal/ibkr"
	"ibkr-paper-gateway/internal/service/trader"
)

func newTestMux(t *testing.T, sim *ibkr.Simulator) *http.ServeMux {
	t.Helper()

	config.Env = &config.EnvConfig{
		Env: "test",
		IBKR: config.IBKRConfig{
			Host:     "127.0.0.1",
			Port:     7497,
			ClientID: 1,
		},
	}

	traderService := trader.New(ibkr.NewSimulatorDialer(sim), trader.Options{
		Policy:      trader.PolicyPerRequest,
		Host:        "127.0.0.1",
		Port:        7497,
		ClientID:    1,
		SettleDelay: time.Millisecond,
	})

	mux := http.NewServeMux()
	NewTradingHTTPHandler(traderService).Register(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("%s %s returned non-json body %q: %v", method, path, rec.Body.String(), err)
	}

	return rec, payload
}

func TestHome(t *testing.T) {
	mux := newTestMux(t, ibkr.NewSimulator())

	rec, payload := doJSON(t, mux, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", rec.Code)
	}
	if payload["message"] != "Simple IBKR Paper Trading API" {
		t.Errorf("message = %v", payload["message"])
	}
	endpoints, ok := payload["endpoints"].(map[string]any)
	if !ok {
		t.Fatal("endpoints missing from home payload")
	}
	for _, path := range []string{"/health", "/status", "/test-connection", "/buy", "/sell"} {
		if _, ok := endpoints[path]; !ok {
			t.Errorf("home payload missing endpoint %s", path)
		}
	}
}

func TestHomeUnknownPath(t *testing.T) {
	mux := newTestMux(t, ibkr.NewSimulator())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	mux := newTestMux(t, ibkr.NewSimulator())

	rec, payload := doJSON(t, mux, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status status = %d, want 200", rec.Code)
	}
	if payload["status"] != "online" {
		t.Errorf("status = %v, want online", payload["status"])
	}
	if payload["trading_mode"] != "paper" {
		t.Errorf("trading_mode = %v, want paper", payload["trading_mode"])
	}
	if payload["connected_to_ibkr"] != false {
		t.Errorf("connected_to_ibkr = %v, want false before any connect", payload["connected_to_ibkr"])
	}
	cfg, ok := payload["config"].(map[string]any)
	if !ok {
		t.Fatal("config block missing from status payload")
	}
	if cfg["host"] != "127.0.0.1" || cfg["port"] != float64(7497) || cfg["client_id"] != float64(1) {
		t.Errorf("config block = %v", cfg)
	}
}

func TestHealth(t *testing.T) {
	mux := newTestMux(t, ibkr.NewSimulator())

	rec, payload := doJSON(t, mux, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", rec.Code)
	}
	if payload["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", payload["status"])
	}
	ts, _ := payload["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", ts, err)
	}
}

func TestTestConnectionEndpoint(t *testing.T) {
	sim := ibkr.NewSimulator()
	mux := newTestMux(t, sim)

	rec, payload := doJSON(t, mux, http.MethodGet, "/test-connection", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /test-connection status = %d, want 200", rec.Code)
	}
	if payload["success"] != true {
		t.Errorf("success = %v, want true", payload["success"])
	}
	accounts, ok := payload["accounts"].([]any)
	if !ok || len(accounts) == 0 {
		t.Errorf("accounts = %v, want non-empty list", payload["accounts"])
	}
}

func TestTestConnectionEndpointFailure(t *testing.T) {
	sim := ibkr.NewSimulator()
	sim.ConnectErr = errConnRefused
	mux := newTestMux(t, sim)

	// Failures are reported in-band, not as an HTTP error.
	rec, payload := doJSON(t, mux, http.MethodGet, "/test-connection", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /test-connection status = %d, want 200", rec.Code)
	}
	if payload["success"] != false {
		t.Errorf("success = %v, want false", payload["success"])
	}
	if payload["error"] != "Failed to establish connection" {
		t.Errorf("error = %v", payload["error"])
	}
}

var errConnRefused = errors.New("connection refused")

func TestBuy(t *testing.T) {
	sim := ibkr.NewSimulator()
	mux := newTestMux(t, sim)

	rec, payload := doJSON(t, mux, http.MethodPost, "/buy", `{"symbol":"aapl","quantity":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /buy status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if payload["success"] != true {
		t.Errorf("success = %v", payload["success"])
	}
	if payload["symbol"] != "AAPL" {
		t.Errorf("symbol = %v, want AAPL", payload["symbol"])
	}
	if payload["action"] != "BUY" {
		t.Errorf("action = %v, want BUY", payload["action"])
	}
	if payload["quantity"] != float64(5) {
		t.Errorf("quantity = %v, want 5", payload["quantity"])
	}
	if payload["order_type"] != "MARKET" {
		t.Errorf("order_type = %v, want MARKET", payload["order_type"])
	}
	if status, _ := payload["status"].(string); status == "" {
		t.Error("status is empty")
	}
}

func TestSell(t *testing.T) {
	sim := ibkr.NewSimulator()
	mux := newTestMux(t, sim)

	rec, payload := doJSON(t, mux, http.MethodPost, "/sell", `{"symbol":"MSFT","quantity":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /sell status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if payload["action"] != "SELL" {
		t.Errorf("action = %v, want SELL", payload["action"])
	}
}

func TestPlaceOrderMissingFields(t *testing.T) {
	for _, tc := range []struct {
		name string
		path string
		body string
	}{
		{"buy missing symbol", "/buy", `{"quantity":5}`},
		{"buy missing quantity", "/buy", `{"symbol":"AAPL"}`},
		{"buy empty body", "/buy", `{}`},
		{"sell missing symbol", "/sell", `{"quantity":5}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sim := ibkr.NewSimulator()
			mux := newTestMux(t, sim)

			rec, payload := doJSON(t, mux, http.MethodPost, tc.path, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if payload["error"] != "Missing required fields: symbol and quantity" {
				t.Errorf("error = %v", payload["error"])
			}
			if sim.ConnectCalls != 0 {
				t.Errorf("ConnectCalls = %d, validation must not touch the gateway", sim.ConnectCalls)
			}
		})
	}
}

func TestPlaceOrderInvalidJSON(t *testing.T) {
	sim := ibkr.NewSimulator()
	mux := newTestMux(t, sim)

	rec, _ := doJSON(t, mux, http.MethodPost, "/buy", `{"symbol":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed json", rec.Code)
	}
	if sim.ConnectCalls != 0 {
		t.Errorf("ConnectCalls = %d, want 0", sim.ConnectCalls)
	}
}

func TestPlaceOrderUnknownSymbol(t *testing.T) {
	sim := ibkr.NewSimulator()
	mux := newTestMux(t, sim)

	rec, payload := doJSON(t, mux, http.MethodPost, "/buy", `{"symbol":"ZZZZ","quantity":5}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if payload["error"] != "Could not qualify contract for symbol ZZZZ" {
		t.Errorf("error = %v", payload["error"])
	}
}

func TestPlaceOrderConnectFailure(t *testing.T) {
	sim := ibkr.NewSimulator()
	sim.ConnectErr = errConnRefused
	mux := newTestMux(t, sim)

	rec, payload := doJSON(t, mux, http.MethodPost, "/buy", `{"symbol":"AAPL","quantity":5}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if payload["error"] != "Failed to connect to IBKR" {
		t.Errorf("error = %v", payload["error"])
	}
}

func TestPlaceOrderQuantityCoercion(t *testing.T) {
	t.Run("string quantity", func(t *testing.T) {
		mux := newTestMux(t, ibkr.NewSimulator())

		rec, payload := doJSON(t, mux, http.MethodPost, "/buy", `{"symbol":"AAPL","quantity":"7"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if payload["quantity"] != float64(7) {
			t.Errorf("quantity = %v, want 7", payload["quantity"])
		}
	})

	t.Run("fractional quantity truncates", func(t *testing.T) {
		mux := newTestMux(t, ibkr.NewSimulator())

		rec, payload := doJSON(t, mux, http.MethodPost, "/buy", `{"symbol":"AAPL","quantity":5.9}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if payload["quantity"] != float64(5) {
			t.Errorf("quantity = %v, want 5", payload["quantity"])
		}
	})

	t.Run("null quantity", func(t *testing.T) {
		// The key is present, so this is not a validation failure; it fails
		// during coercion like any other non-numeric value.
		sim := ibkr.NewSimulator()
		mux := newTestMux(t, sim)

		rec, payload := doJSON(t, mux, http.MethodPost, "/buy", `{"symbol":"AAPL","quantity":null}`)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if payload["error"] == "Missing required fields: symbol and quantity" {
			t.Error("present-but-null quantity was treated as a missing field")
		}
		if sim.PlaceCalls != 0 {
			t.Errorf("PlaceCalls = %d, want 0", sim.PlaceCalls)
		}
	})

	t.Run("non-numeric quantity", func(t *testing.T) {
		sim := ibkr.NewSimulator()
		mux := newTestMux(t, sim)

		rec, _ := doJSON(t, mux, http.MethodPost, "/buy", `{"symbol":"AAPL","quantity":true}`)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if sim.PlaceCalls != 0 {
			t.Errorf("PlaceCalls = %d, want 0", sim.PlaceCalls)
		}
	})
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestMux(t, ibkr.NewSimulator())

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/buy"},
		{http.MethodGet, "/sell"},
		{http.MethodPost, "/status"},
		{http.MethodPost, "/health"},
		{http.MethodPost, "/test-connection"},
	} {
		rec, _ := doJSON(t, mux, tc.method, tc.path, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", tc.method, tc.path, rec.Code)
		}
	}
}
