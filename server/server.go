// Package server exposes the ledger over a JSON HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/ledger/broker"
	"github.com/rustyeddy/ledger/id"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
	"github.com/rustyeddy/ledger/portfolio"
)

type Config struct {
	Addr string
	Log  zerolog.Logger

	Store    ledger.Store
	Broker   broker.Broker
	Valuator *portfolio.Valuator
	Quotes   *market.QuoteStore
	Session  market.Session

	// TradeRate limits POST /api/trades to this many requests per second
	// with bursts of TradeBurst. Zero disables the limit.
	TradeRate   float64
	TradeBurst  int
	CORSOrigins []string

	Now          func() time.Time
	NewAccountID func() string
}

type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	store    ledger.Store
	broker   broker.Broker
	valuator *portfolio.Valuator
	quotes   *market.QuoteStore
	session  market.Session
	limiter  *rate.Limiter
	now      func() time.Time
	newID    func() string
}

func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		store:    cfg.Store,
		broker:   cfg.Broker,
		valuator: cfg.Valuator,
		quotes:   cfg.Quotes,
		session:  cfg.Session,
		now:      cfg.Now,
		newID:    cfg.NewAccountID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = id.NewAccountID
	}
	if cfg.TradeRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.TradeRate), cfg.TradeBurst)
	}

	s.setupMiddleware(cfg.CORSOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.With(s.tradeLimit).Post("/trades", s.handleTrade)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAccount)
				r.Get("/portfolio", s.handlePortfolio)
				r.Get("/dashboard", s.handleDashboard)
				r.Get("/transactions", s.handleTransactions)
			})
		})
		r.Get("/transactions/{id}", s.handleGetTransaction)

		r.Route("/stocks", func(r chi.Router) {
			r.Get("/", s.handleListStocks)
			r.Get("/{symbol}", s.handleGetStock)
			r.Put("/{symbol}/quote", s.handleSetQuote)
		})

		r.Get("/market/status", s.handleMarketStatus)
	})
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// tradeLimit rejects trade submissions above the configured rate.
func (s *Server) tradeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusTooManyRequests, "trade rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
