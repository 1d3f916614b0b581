// Package gateway exposes the margin engine over HTTP. It serves pool and
// account state from the store, applies registry token configs and drives
// the liquidation lifecycle.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"margind/config"
	"margind/native/margin"
	"margind/observability/metrics"
	"margind/storage"
)

// Clock supplies the current unix time in seconds. Tests substitute a fixed
// clock to make valuation and liquidation timing deterministic.
type Clock func() int64

// Options configures a gateway server.
type Options struct {
	Store    *storage.Store
	Registry *config.Registry
	Invoker  *margin.Invoker
	Logger   *slog.Logger

	// RequestsPerSecond and Burst bound the global request rate. Zero
	// disables limiting.
	RequestsPerSecond float64
	Burst             int

	// Clock overrides time.Now for testing.
	Clock Clock
}

// Server handles the HTTP API.
type Server struct {
	store    *storage.Store
	registry *config.Registry
	invoker  *margin.Invoker
	log      *slog.Logger
	limiter  *rate.Limiter
	metrics  *metrics.GatewayMetrics
	engine   *metrics.EngineMetrics
	now      Clock
}

// NewServer wires the gateway against its store and registry.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	now := opts.Clock
	if now == nil {
		now = unixNow
	}
	return &Server{
		store:    opts.Store,
		registry: opts.Registry,
		invoker:  opts.Invoker,
		log:      logger,
		limiter:  limiter,
		metrics:  metrics.Gateway(),
		engine:   metrics.Engine(),
		now:      now,
	}
}

// Handler builds the chi router for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.throttle)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/pools", s.listPools)
		v1.Get("/pools/{mint}", s.getPool)
		v1.Post("/pools/{mint}/accrue", s.accruePool)
		v1.Post("/pools/{mint}/deposit", s.poolDeposit)
		v1.Post("/pools/{mint}/withdraw", s.poolWithdraw)

		v1.Post("/accounts", s.createAccount)
		v1.Get("/accounts/{address}", s.getAccount)
		v1.Get("/accounts/{address}/valuation", s.accountValuation)
		v1.Post("/accounts/{address}/positions", s.registerPosition)
		v1.Delete("/accounts/{address}/positions/{mint}", s.unregisterPosition)
		v1.Post("/accounts/{address}/invoke", s.invokeAdapter)
		v1.Post("/accounts/{address}/liquidation/begin", s.liquidateBegin)
		v1.Post("/accounts/{address}/liquidation/end", s.liquidateEnd)
		v1.Get("/liquidations", s.listLiquidations)

		v1.Put("/balances/{custodian}", s.putBalance)
		v1.Get("/balances/{custodian}", s.getBalance)
	})

	return otelhttp.NewHandler(r, "margind-gateway")
}

func unixNow() int64 {
	return timeNow().Unix()
}
