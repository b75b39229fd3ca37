package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/emmdurin/georchestra-gateway/internal/logger"
	"github.com/emmdurin/georchestra-gateway/pkg/metrics"
)

// NewRouter creates and configures the chi router.
//
// The middleware stack, in order:
//   - Request ID for request tracking
//   - Real IP extraction behind the fronting proxy
//   - Request-scoped log context (trace and client fields on every line)
//   - Custom request logging using the internal logger
//   - Panic recovery
//   - Request timeout
//   - The identity-resolution pipeline
//
// Routes:
//   - GET /health - liveness probe (bypasses identity resolution)
//   - GET /metrics - Prometheus scrape endpoint, when metrics are enabled
//   - everything else - resolved and handed to the downstream handler
func NewRouter(config ServerConfig, pipeline *Pipeline, downstream http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logContext)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if metrics.IsEnabled() {
		r.Handle("/metrics", metrics.Handler())
	}

	if downstream == nil {
		downstream = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "no backend configured", http.StatusBadGateway)
		})
	}
	r.Handle("/*", pipeline.Handler(downstream))

	return r
}

// logContext seeds the request context with the fields the logger injects
// on every line emitted while serving this request.
func logContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc := logger.NewLogContext(chimiddleware.GetReqID(r.Context()), r.RemoteAddr)
		ctx := logger.WithContext(r.Context(), lc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs request start at DEBUG and completion at INFO with the
// final status and timing.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		logger.DebugCtx(r.Context(), "request started",
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
		)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.InfoCtx(r.Context(), "request completed",
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, time.Since(start).Milliseconds(),
		)
	})
}
