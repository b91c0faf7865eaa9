package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"nhbstake/crypto"
	"nhbstake/observability/logging"
	"nhbstake/services/staked/ops"
)

const (
	headerSender    = "X-Stake-Sender"
	headerRequestID = "X-Request-ID"
)

type requestIDKey struct{}
type senderKey struct{}

// RequestID returns the request identifier stored on ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func senderFrom(ctx context.Context) ([20]byte, bool) {
	sender, ok := ctx.Value(senderKey{}).([20]byte)
	return sender, ok
}

// withRequestID propagates a caller supplied request ID or mints a fresh one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// requireSender decodes the bech32 caller address from X-Stake-Sender.
func requireSender(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(headerSender))
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing "+headerSender+" header", "authorization")
			return
		}
		sender, err := crypto.DecodeRaw(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+headerSender+" header", "validation")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), senderKey{}, sender)))
	})
}

type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type senderLimiter struct {
	limit    RateLimit
	mu       sync.Mutex
	visitors map[[20]byte]*rate.Limiter
}

func newSenderLimiter(limit RateLimit) *senderLimiter {
	return &senderLimiter{limit: limit, visitors: make(map[[20]byte]*rate.Limiter)}
}

func (l *senderLimiter) allow(sender [20]byte) bool {
	if l == nil || l.limit.RequestsPerMinute <= 0 {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.visitors[sender]
	if !ok {
		burst := l.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(l.limit.RequestsPerMinute/60.0), burst)
		l.visitors[sender] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sender, _ := senderFrom(r.Context())
		if !s.limiter.allow(sender) {
			s.httpMetrics.RecordThrottle("rate_limit")
			writeError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "throttled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// traced starts a server span named staked.<route> for every request.
func traced(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "staked."+route)
	}
}

// observe records module metrics and logs the outcome of a route.
func (s *Server) observe(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := s.clock.Now()
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("request.id", RequestID(r.Context())))
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			elapsed := s.clock.Since(start)
			method := routeLabel(route, r)
			s.httpMetrics.Observe(route, method, recorder.status, elapsed)
			attrs := []any{
				"request_id", RequestID(r.Context()),
				"op", method,
				"status", recorder.status,
				"duration", elapsed.Round(time.Microsecond),
			}
			if raw := strings.TrimSpace(r.Header.Get(headerSender)); raw != "" {
				attrs = append(attrs, logging.MaskField("sender", raw))
			}
			if recorder.status >= http.StatusInternalServerError {
				s.logger.Error("staked request failed", attrs...)
				return
			}
			s.logger.Debug("staked request", attrs...)
		})
	}
}

// routeLabel keeps metric labels bounded to known operation and query names.
func routeLabel(route string, r *http.Request) string {
	if op := chi.URLParam(r, "op"); op != "" {
		if ops.Known(op) {
			return op
		}
		return "unknown"
	}
	if name := chi.URLParam(r, "name"); name != "" {
		if ops.KnownQuery(name) {
			return "query." + name
		}
		return "unknown"
	}
	return route
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
