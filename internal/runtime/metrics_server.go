package runtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	loggingpkg "github.com/drblury/mpiflow/internal/runtime/logging"
)

// MetricsServer exposes the default Prometheus registry on /metrics.
type MetricsServer struct {
	srv *http.Server
	log loggingpkg.ServiceLogger
}

// ServeMetrics starts serving /metrics on addr in the background.
func ServeMetrics(addr string, log loggingpkg.ServiceLogger) *MetricsServer {
	if log == nil {
		log = loggingpkg.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &MetricsServer{
		srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log: log,
	}
	log.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
		}
	}()
	return s
}

// Handler is the mux serving /metrics.
func (s *MetricsServer) Handler() http.Handler { return s.srv.Handler }

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
