package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nhbstake/core/events"
	"nhbstake/native/common"
	"nhbstake/native/stake"
	"nhbstake/observability"
	"nhbstake/observability/metrics"
	"nhbstake/services/staked/ops"
)

const (
	maxBodySize = 1 << 20
)

type httpObserver interface {
	Observe(route, op string, status int, duration time.Duration)
	RecordThrottle(reason string)
}

// Config defines HTTP server parameters.
type Config struct {
	RateLimit RateLimit
	Quota     common.Quota
	Clock     clockwork.Clock
	Logger    *slog.Logger
	// Events receives every committed engine event in addition to metrics.
	Events events.Emitter
}

// Server exposes the stake engine over HTTP. Engine calls are serialised.
type Server struct {
	mu       sync.Mutex
	engine   *stake.Engine
	recorder *events.Recorder

	quota        *common.QuotaBook
	limiter      *senderLimiter
	clock        clockwork.Clock
	logger       *slog.Logger
	httpMetrics  httpObserver
	stakeMetrics *metrics.StakeMetrics

	router http.Handler
}

// New wires engine behind the HTTP router and takes over its event emitter.
func New(engine *stake.Engine, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	srv := &Server{
		engine:       engine,
		recorder:     &events.Recorder{},
		quota:        common.NewQuotaBook(cfg.Quota),
		limiter:      newSenderLimiter(cfg.RateLimit),
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		httpMetrics:  observability.HTTP(),
		stakeMetrics: metrics.Stake(),
	}
	engine.SetEmitter(observability.CountingEmitter{
		Next: events.Fanout{srv.recorder, srv.stakeMetrics, cfg.Events},
	})
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(chimw.Recoverer)

	r.With(traced("health"), s.observe("healthz")).Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.With(traced("catalog"), s.observe("catalog")).Get("/", s.handleCatalog)
		api.With(traced("query"), s.observe("query")).Get("/query/{name}", s.handleQuery)
		api.With(traced("ops"), s.observe("ops"), requireSender, s.rateLimit).Post("/ops/{op}", s.handleApply)
	})
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("staked: http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"operations": ops.Operations(),
		"queries":    ops.Queries(),
	})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")
	if !ops.Known(op) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown operation %q", op), "validation")
		return
	}
	sender, _ := senderFrom(r.Context())

	var req ops.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error(), "validation")
		return
	}

	if err := s.quota.Charge(sender, s.clock.Now().Unix(), ops.Stakers(op, req)); err != nil {
		s.httpMetrics.RecordThrottle("quota_exceeded")
		writeEngineError(w, err)
		return
	}

	result, err := s.apply(op, sender, req)
	s.stakeMetrics.ObserveOperation(op, err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) apply(op string, sender [20]byte, req ops.Request) (ops.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder.Drain()
	receipt, err := ops.Apply(s.engine, op, sender, req)
	emitted := s.recorder.Drain()
	if err != nil {
		return ops.Result{}, err
	}
	return ops.NewResult(receipt, emitted), nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !ops.KnownQuery(name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown query %q", name), "validation")
		return
	}
	values := r.URL.Query()
	args := ops.QueryArgs{Address: values.Get("address"), Asset: values.Get("asset")}
	if raw := values.Get("period"); raw != "" {
		period, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid period", "validation")
			return
		}
		args.Period = period
	}

	s.mu.Lock()
	view, err := ops.Query(s.engine, name, args)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
