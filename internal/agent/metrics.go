package agent

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer exposes /metrics over HTTP when metrics_addr is configured.
type MetricsServer struct {
	srv *http.Server
	log *zap.Logger
}

// NewMetricsServer creates a server bound to addr.
func NewMetricsServer(addr string, log *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		srv: &http.Server{Addr: addr, Handler: mux},
		log: log.Named("metrics"),
	}
}

// Start serves until Stop is called.
func (m *MetricsServer) Start() {
	m.log.Info("serving", zap.String("addr", m.srv.Addr))
	if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.log.Error("metrics server error", zap.Error(err))
	}
}

// Stop shuts the server down gracefully.
func (m *MetricsServer) Stop(ctx context.Context) {
	_ = m.srv.Shutdown(ctx)
}
