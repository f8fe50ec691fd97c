// Package host assembles a runtime, scheduler, journal and status server
// from a loaded configuration.
package host

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/tliron/commonlog"

	"github.com/chazu/loom/config"
	"github.com/chazu/loom/journal"
	"github.com/chazu/loom/scheduler"
	"github.com/chazu/loom/server"
	"github.com/chazu/loom/vm"
)

var log = commonlog.GetLogger("loom.host")

// Host owns every long-lived component built from one Config.
type Host struct {
	Config  *config.Config
	Runtime *vm.Runtime
	Pool    *scheduler.Pool
	Journal *journal.Journal // nil when disabled
	Server  *server.Server   // nil when disabled

	listeners []net.Listener
	serveErr  chan error
}

// New builds the components. Nothing runs until Start.
func New(cfg *config.Config) (*Host, error) {
	h := &Host{Config: cfg, Runtime: vm.NewRuntime(cfg.RuntimeOptions())}

	if path := cfg.JournalPath(); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		h.Journal = j
	}

	opts := []scheduler.Option{
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithQuantum(cfg.Quantum()),
	}
	if h.Journal != nil {
		opts = append(opts, scheduler.WithJournal(h.Journal))
	}
	h.Pool = scheduler.New(h.Runtime, opts...)

	if cfg.Server.Address != "" || cfg.Server.HTTPAddress != "" {
		h.Server = server.New(h.Pool)
	}
	return h, nil
}

// Start launches the workers and, if configured, the status listeners.
func (h *Host) Start(ctx context.Context) error {
	if err := h.Pool.Start(ctx); err != nil {
		return err
	}
	if h.Server == nil {
		return nil
	}

	var grpcLis, httpLis net.Listener
	var err error
	if addr := h.Config.Server.Address; addr != "" {
		if grpcLis, err = net.Listen("tcp", addr); err != nil {
			h.Pool.Stop()
			return fmt.Errorf("listen %s: %w", addr, err)
		}
	}
	if addr := h.Config.Server.HTTPAddress; addr != "" {
		if httpLis, err = net.Listen("tcp", addr); err != nil {
			if grpcLis != nil {
				grpcLis.Close()
			}
			h.Pool.Stop()
			return fmt.Errorf("listen %s: %w", addr, err)
		}
	}

	h.serveErr = make(chan error, 2)
	h.Server.Refresh()
	if grpcLis != nil {
		h.listeners = append(h.listeners, grpcLis)
		go func() { h.serveErr <- h.Server.Serve(grpcLis) }()
	}
	if httpLis != nil {
		h.listeners = append(h.listeners, httpLis)
		go func() { h.serveErr <- h.Server.ServeConnect(httpLis) }()
	}
	return nil
}

// Addr returns the gRPC listening address, or nil.
func (h *Host) Addr() net.Addr {
	if h.Config.Server.Address == "" || len(h.listeners) == 0 {
		return nil
	}
	return h.listeners[0].Addr()
}

// HTTPAddr returns the Connect listening address, or nil.
func (h *Host) HTTPAddr() net.Addr {
	if h.Config.Server.HTTPAddress == "" || len(h.listeners) == 0 {
		return nil
	}
	return h.listeners[len(h.listeners)-1].Addr()
}

// Close stops the server and the workers, then closes the journal.
func (h *Host) Close() error {
	var errs []error
	if h.Server != nil {
		h.Server.Stop()
		for range h.listeners {
			if err := <-h.serveErr; err != nil {
				errs = append(errs, fmt.Errorf("server: %w", err))
			}
		}
		h.listeners = nil
	}
	if err := h.Pool.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if h.Journal != nil {
		if err := h.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}
	stats := h.Pool.Stats()
	log.Infof("closed: %d submitted, %d completed, %d faulted, %d abandoned",
		stats.Submitted, stats.Completed, stats.Faulted, stats.Abandoned)
	return errors.Join(errs...)
}
