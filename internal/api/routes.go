package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
)

// RouterConfig holds the HTTP surface settings
type RouterConfig struct {
	// APIKey guards /api/v1. Empty disables the check.
	APIKey      string
	CORSOrigins []string
}

// SetupRoutes configures all API routes. Request IDs, panic recovery,
// logging and CORS wrap the router so unmatched requests pass through them too.
func SetupRoutes(handler *Handler, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	if cfg.APIKey != "" {
		api.Use(requireAPIKey(cfg.APIKey))
	}

	api.HandleFunc("/stocks/{symbol}", handler.GetStock).Methods("GET")

	p := api.PathPrefix("/portfolios/{username}/{number:[0-9]+}").Subrouter()
	p.HandleFunc("/buy", handler.RecordBuy).Methods("POST")
	p.HandleFunc("/sell", handler.RecordSell).Methods("POST")
	p.HandleFunc("/deposit", handler.DepositCash).Methods("POST")
	p.HandleFunc("/reset", handler.ResetPortfolio).Methods("POST")
	p.HandleFunc("/base-value", handler.SetBaseValue).Methods("PUT")
	p.HandleFunc("/import", handler.ImportPortfolio).Methods("POST")
	p.HandleFunc("/export", handler.ExportPortfolio).Methods("GET")
	p.HandleFunc("/summary", handler.Summarize).Methods("GET")
	p.HandleFunc("/history", handler.History).Methods("GET")
	p.HandleFunc("/trades", handler.ListTrades).Methods("GET")
	p.HandleFunc("/positions", handler.ListPositions).Methods("GET")

	var h http.Handler = middleware.Recoverer(r)
	h = middleware.RequestID(logRequests(handler.log)(h))
	if len(cfg.CORSOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", APIKeyHeader},
		})(h)
	}
	return h
}
