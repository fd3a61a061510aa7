package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/server"
)

var simulateAddr string

// simulateCmd stands in for robot hardware: the mock backend served over
// the same wire contract the live client speaks.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a simulated robot over the robot HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAddr, "addr", ":3001", "listen address; the API is served under /api")
	simulateCmd.Flags().String("mock-data", "", "status document to serve (JSON, comments allowed)")
	simulateCmd.Flags().String("log-level", "info", "log level")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	mockCfg := cfg.Gateway(log).Mock
	mock, err := gateway.NewMock(mockCfg)
	if err != nil {
		return fmt.Errorf("mock: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", server.HealthHandler)
	r.Mount("/api", gateway.NewHandler(mock, log.WithName("simulator")))

	ln, err := net.Listen("tcp", simulateAddr)
	if err != nil {
		return err
	}
	srv := server.NewHTTPServer(simulateAddr, r)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Info("simulated robot listening", "addr", ln.Addr().String(), "latency", mockCfg.Latency.String(), "jitter", mockCfg.Jitter.String())
	return srv.Serve(ln)
}
