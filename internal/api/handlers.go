package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// maxBodyBytes bounds request bodies, imports included
const maxBodyBytes = 8 << 20

// StockLookup reads catalog entries and their latest close
type StockLookup interface {
	GetStock(ctx context.Context, symbol string) (*models.Stock, error)
	GetLatestPriceData(ctx context.Context, symbol string) (*models.PriceDataDaily, error)
}

// Pinger reports backing store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	ledger *ledger.Service
	stocks StockLookup
	health Pinger
	log    zerolog.Logger
}

// NewHandler creates a new Handler. stocks and health may be nil.
func NewHandler(svc *ledger.Service, stocks StockLookup, health Pinger, log zerolog.Logger) *Handler {
	return &Handler{
		ledger: svc,
		stocks: stocks,
		health: health,
		log:    log.With().Str("component", "api").Logger(),
	}
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   *time.Time      `json:"date,omitempty"`
}

type baseValueRequest struct {
	BaseValue decimal.Decimal `json:"baseValue"`
}

type stockResponse struct {
	*models.Stock
	Close     *decimal.Decimal `json:"close"`
	CloseDate *time.Time       `json:"closeDate,omitempty"`
}

// RecordBuy handles POST /portfolios/{username}/{number}/buy
func (h *Handler) RecordBuy(w http.ResponseWriter, r *http.Request) {
	h.recordTrade(w, r, h.ledger.RecordBuy)
}

// RecordSell handles POST /portfolios/{username}/{number}/sell
func (h *Handler) RecordSell(w http.ResponseWriter, r *http.Request) {
	h.recordTrade(w, r, h.ledger.RecordSell)
}

func (h *Handler) recordTrade(w http.ResponseWriter, r *http.Request,
	record func(context.Context, models.PortfolioKey, ledger.TradeRequest) (*models.Trade, error)) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	var req ledger.TradeRequest
	if !h.decode(w, r, &req) {
		return
	}

	trade, err := record(r.Context(), key, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, trade)
}

// DepositCash handles POST /portfolios/{username}/{number}/deposit
func (h *Handler) DepositCash(w http.ResponseWriter, r *http.Request) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}

	trade, err := h.ledger.DepositCash(r.Context(), key, req.Amount, req.Date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, trade)
}

// ResetPortfolio handles POST /portfolios/{username}/{number}/reset
func (h *Handler) ResetPortfolio(w http.ResponseWriter, r *http.Request) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	if err := h.ledger.ResetPortfolio(r.Context(), key); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetBaseValue handles PUT /portfolios/{username}/{number}/base-value
func (h *Handler) SetBaseValue(w http.ResponseWriter, r *http.Request) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	var req baseValueRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ledger.SetBaseValue(r.Context(), key, req.BaseValue); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportPortfolio handles POST /portfolios/{username}/{number}/import
func (h *Handler) ImportPortfolio(w http.ResponseWriter, r *http.Request) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	var req ledger.ImportRequest
	if !h.decode(w, r, &req) {
		return
	}

	clean, err := h.ledger.ImportPortfolio(r.Context(), key, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cash":      clean.Cash,
		"baseValue": clean.BaseValue,
		"positions": len(clean.Positions),
		"trades":    len(clean.Trades),
	})
}

// ExportPortfolio handles GET /portfolios/{username}/{number}/export.
// With ?format=csv only the trade history is written.
func (h *Handler) ExportPortfolio(w http.ResponseWriter, r *http.Request) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	export, err := h.ledger.ExportPortfolio(r.Context(), key)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		respondJSON(w, http.StatusOK, export)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+key.Username+"-"+strconv.Itoa(key.Number)+`-trades.csv"`)
	if err := ledger.WriteTradesCSV(w, export.Trades); err != nil {
		h.log.Error().Err(err).Str("portfolio", key.String()).Msg("Failed to write CSV export")
	}
}

// Summarize handles GET /portfolios/{username}/{number}/summary
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	summary, err := h.ledger.Summarize(r.Context(), key)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// History handles GET /portfolios/{username}/{number}/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	history, err := h.ledger.History(r.Context(), key)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// ListTrades handles GET /portfolios/{username}/{number}/trades?page=&pageSize=
func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	page, pageSize := pagination(r)
	trades, err := h.ledger.ListTrades(r.Context(), key, page, pageSize)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trades)
}

// ListPositions handles GET /portfolios/{username}/{number}/positions?page=&pageSize=
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	key, ok := h.portfolioKey(w, r)
	if !ok {
		return
	}
	page, pageSize := pagination(r)
	positions, err := h.ledger.ListPositions(r.Context(), key, page, pageSize)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, positions)
}

// GetStock handles GET /stocks/{symbol}
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	if h.stocks == nil {
		respondErrorKind(w, http.StatusNotFound, string(ledger.KindNotFound), "stock catalog unavailable")
		return
	}
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	stock, err := h.stocks.GetStock(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondErrorKind(w, http.StatusNotFound, string(ledger.KindNotFound), "unknown symbol "+symbol)
			return
		}
		h.respondError(w, err)
		return
	}

	resp := stockResponse{Stock: stock}
	price, err := h.stocks.GetLatestPriceData(r.Context(), stock.Symbol)
	switch {
	case err == nil:
		resp.Close = &price.Close
		resp.CloseDate = &price.Date
	case !errors.Is(err, models.ErrNotFound):
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) portfolioKey(w http.ResponseWriter, r *http.Request) (models.PortfolioKey, bool) {
	vars := mux.Vars(r)
	n, err := strconv.Atoi(vars["number"])
	if err != nil {
		respondErrorKind(w, http.StatusBadRequest, string(ledger.KindValidation), "portfolio number must be an integer")
		return models.PortfolioKey{}, false
	}
	return models.PortfolioKey{Username: vars["username"], Number: n}, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondErrorKind(w, http.StatusBadRequest, string(ledger.KindValidation), "invalid request body")
		return false
	}
	return true
}

func pagination(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	return page, pageSize
}

// statusFor maps ledger error kinds to HTTP status codes
func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindValidation, ledger.KindDangerousValue:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindPositionLimitExceeded, ledger.KindTradeLimitExceeded:
		return http.StatusConflict
	case ledger.KindInsufficientFunds, ledger.KindInsufficientShares, ledger.KindFutureDatedTrade:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	kind := ledger.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		msg = "internal error"
	}
	respondErrorKind(w, status, string(kind), msg)
}

func respondErrorKind(w http.ResponseWriter, status int, kind, msg string) {
	respondJSON(w, status, map[string]string{"error": kind, "message": msg})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
