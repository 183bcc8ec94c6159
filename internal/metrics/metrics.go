// internal/metrics/metrics.go
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ImagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redeemd_images_received_total",
		Help: "Candidate images accepted into the image queue.",
	})

	CodesExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redeemd_codes_extracted_total",
		Help: "Codes recognized and forwarded to the redemption queue.",
	})

	OCRMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redeemd_ocr_misses_total",
		Help: "Images that produced no code (decode failure or no 16-char run).",
	})

	OCREngineErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redeemd_ocr_engine_errors_total",
		Help: "Recognition engine failures, counted separately from misses so they can be alerted on.",
	})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redeemd_redemptions_total",
		Help: "Completed submissions by terminal status.",
	}, []string{"status"})

	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redeemd_redemptions_in_flight",
		Help: "Dispatched submissions not yet completed, including those waiting for a worker.",
	})

	RecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redeemd_record_failures_total",
		Help: "Outcome log appends that failed.",
	})
)

// Serve exposes /metrics and /healthz on addr. Blocks until the listener
// fails; intended to run on its own goroutine.
func Serve(addr string, logger *slog.Logger) error {
	r := chi.NewRouter()
	r.Use(requestLogger(logger))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
