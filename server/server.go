// Package server exposes scheduler status. The gRPC listener carries the
// standard health service plus server reflection; the HTTP listener carries
// the same health check and the scheduler counters as Connect procedures.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/chazu/loom/scheduler"
)

// ServiceName is the health service name reporting the scheduler.
const ServiceName = "loom.scheduler"

var log = commonlog.GetLogger("loom.server")

// ErrServing is returned by a second Serve or ServeConnect.
var ErrServing = errors.New("server already serving")

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	pollInterval time.Duration
	grpcOptions  []grpc.ServerOption
}

// WithPollInterval sets how often the scheduler state is sampled.
func WithPollInterval(d time.Duration) Option {
	return func(c *serverConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithGRPCOptions passes options through to grpc.NewServer.
func WithGRPCOptions(opts ...grpc.ServerOption) Option {
	return func(c *serverConfig) { c.grpcOptions = append(c.grpcOptions, opts...) }
}

// Server reports a scheduler pool's state. The overall ("") and
// ServiceName statuses are SERVING while the pool runs and NOT_SERVING
// otherwise.
type Server struct {
	pool   *scheduler.Pool
	grpc   *grpc.Server
	health *health.Server
	mux    *http.ServeMux
	http   *http.Server
	cfg    *serverConfig

	mu          sync.Mutex
	grpcServing bool
	httpServing bool
	polling     bool
	stopped     bool
	quit        chan struct{}
	done        chan struct{}
}

// New creates a Server for pool.
func New(pool *scheduler.Pool, opts ...Option) *Server {
	cfg := &serverConfig{pollInterval: time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	gs := grpc.NewServer(cfg.grpcOptions...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{
		pool:   pool,
		grpc:   gs,
		health: hs,
		cfg:    cfg,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.mux = s.routes()
	s.http = &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	s.Refresh()
	return s
}

// GRPC returns the underlying gRPC server, for registering more services
// before Serve.
func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

// Handler returns the mux carrying the Connect procedures, for mounting on
// another HTTP server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Refresh samples the pool and updates the health status.
func (s *Server) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.pool.Running() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve accepts gRPC connections on lis until Stop. It blocks, and returns
// nil once stopped, including when Stop came first.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	if s.grpcServing {
		s.mu.Unlock()
		return ErrServing
	}
	s.grpcServing = true
	s.startPolling()
	s.mu.Unlock()

	log.Infof("serving gRPC on %s", lis.Addr())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ServeConnect accepts HTTP connections on lis for the Connect procedures
// until Stop. It blocks, and returns nil once stopped.
func (s *Server) ServeConnect(lis net.Listener) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	if s.httpServing {
		s.mu.Unlock()
		return ErrServing
	}
	s.httpServing = true
	s.startPolling()
	s.mu.Unlock()

	log.Infof("serving Connect on %s", lis.Addr())
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startPolling must be called with mu held.
func (s *Server) startPolling() {
	if !s.polling {
		s.polling = true
		go s.poll()
	}
}

func (s *Server) poll() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Refresh()
		case <-s.quit:
			return
		}
	}
}

// Stop marks every service NOT_SERVING and drains both listeners.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	polling := s.polling
	s.mu.Unlock()

	if polling {
		close(s.quit)
		<-s.done
	}
	s.health.Shutdown()
	s.grpc.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		log.Warningf("http shutdown: %v", err)
	}
	log.Info("stopped")
}
