package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/metrics"
)

// Server manages the gRPC server lifecycle for a session daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the session's Unix domain socket.
func NewServer(p Params, logger *zap.Logger, svc *api.Service) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = p.Layout.SocketPath(p.SessionName)
	}
	return Listen(socketPath, svc, logger)
}

// Listen binds socketPath with mode 0600, replacing a stale socket file.
func Listen(socketPath string, svc api.ControlServer, logger *zap.Logger) (*Server, error) {
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	api.Register(srv, svc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file. Open watch
// streams are cut off when ctx ends.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	_ = s.listener.Close()
	_ = os.Remove(s.socketPath)
}

// MetricsServer serves the Prometheus endpoint. It is inert when no address
// is configured.
type MetricsServer struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewMetricsServer(p Params, reg *prometheus.Registry, logger *zap.Logger) *MetricsServer {
	ms := &MetricsServer{logger: logger}
	if p.Session.MetricsAddr == "" {
		return ms
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	ms.srv = &http.Server{
		Addr:              p.Session.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ms
}

func (m *MetricsServer) Start() {
	if m.srv == nil {
		return
	}
	go func() {
		m.logger.Info("metrics server starting", zap.String("addr", m.srv.Addr))
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

func (m *MetricsServer) Stop(ctx context.Context) {
	if m.srv == nil {
		return
	}
	_ = m.srv.Shutdown(ctx)
}
