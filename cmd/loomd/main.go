// loomd hosts a loom scheduler with its journal and status endpoints.
//
// It has no way to take work in: programs that run Fibers embed package
// host and call Host.Pool.Submit themselves. On its own, loomd serves
// health and scheduler counters for an idle pool, which is useful for
// checking a loom.toml and the listeners it configures.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chazu/loom/config"
	"github.com/chazu/loom/host"
	"github.com/chazu/loom/server"
)

func main() {
	dir := flag.String("C", ".", "Directory to search (upwards) for loom.toml")
	addr := flag.String("addr", "", "gRPC status address (overrides [server] address)")
	httpAddr := flag.String("http", "", "Connect status address (overrides [server] http-address)")
	verbosity := flag.Int("v", 0, "Log verbosity (overrides [logging] verbosity when non-zero)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: loomd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddress = *httpAddr
	}
	if *verbosity != 0 {
		cfg.Logging.Verbosity = *verbosity
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.ConfigureLogging()

	h, err := host.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := h.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if a := h.Addr(); a != nil {
		fmt.Printf("loomd: gRPC status on %s\n", a)
	}
	if a := h.HTTPAddr(); a != nil {
		fmt.Printf("loomd: Connect status on http://%s%s\n", a, server.StatsProcedure)
	}

	<-ctx.Done()
	if err := h.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
