package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ibkr-paper-gateway/internal/config"
	"ibkr-paper-gateway/internal/constant"
	"ibkr-paper-gateway/internal/entity"
	"ibkr-paper-gateway/internal/service/trader"
)

const missingFieldsMessage = "Missing required fields: symbol and quantity"

type Handler struct {
	trader *trader.Trader
}

func NewTradingHTTPHandler(traderService *trader.Trader) *Handler {
	return &Handler{trader: traderService}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/{$}", h.Home)
	mux.HandleFunc("/status", h.Status)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/test-connection", h.TestConnection)
	mux.HandleFunc("/buy", h.Buy)
	mux.HandleFunc("/sell", h.Sell)
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Simple IBKR Paper Trading API",
		"version":     config.ServiceVersion,
		"environment": config.Env.Env,
		"endpoints": map[string]string{
			"/":                "GET - API information",
			"/health":          "GET - Health check",
			"/status":          "GET - Service status",
			"/test-connection": "GET - Test IBKR connection",
			"/buy":             "POST - Place market buy order",
			"/sell":            "POST - Place market sell order",
			"/ws/orders":       "GET - Websocket stream of placed orders",
		},
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "online",
		"environment":       config.Env.Env,
		"connected_to_ibkr": h.trader.Connected(),
		"trading_mode":      constant.TradingMode,
		"config": map[string]any{
			"host":      config.Env.IBKR.Host,
			"port":      config.Env.IBKR.Port,
			"client_id": config.Env.IBKR.ClientID,
		},
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": config.Env.Env,
	})
}

func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	report := h.trader.TestConnection(r.Context())
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, entity.OrderSideBuy)
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, entity.OrderSideSell)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, side entity.OrderSide) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	defer r.Body.Close()

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	// Key presence is the only validation; a present-but-null value passes
	// here and fails during coercion instead. Positivity and side checks are
	// delegated to the gateway.
	rawSymbol, hasSymbol := fields["symbol"]
	rawQuantity, hasQuantity := fields["quantity"]
	if !hasSymbol || !hasQuantity {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": missingFieldsMessage})
		return
	}

	var symbol string
	if err := json.Unmarshal(rawSymbol, &symbol); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "invalid symbol"})
		return
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	var rawValue any
	if err := json.Unmarshal(rawQuantity, &rawValue); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "invalid quantity"})
		return
	}

	quantity, err := coerceQuantity(rawValue)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	result, err := h.trader.SubmitMarketOrder(r.Context(), symbol, side, quantity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func coerceQuantity(raw any) (int64, error) {
	switch q := raw.(type) {
	case float64:
		return int64(q), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(q), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid quantity: %q", q)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("invalid quantity type")
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
