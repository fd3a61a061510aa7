package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshp123/agrobot/internal/config"
	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/mirror"
	"github.com/joshp123/agrobot/internal/mqttpub"
	"github.com/joshp123/agrobot/internal/rate"
	"github.com/joshp123/agrobot/internal/server"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the robot mirror with its HTTP, gRPC and MQTT surfaces",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	config.RegisterFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(cfg.Gateway(log))
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	ctrl := mirror.New(gw, cfg.Mirror(log))

	collectors := append(rate.MetricsCollectors(), mirror.MetricsCollectors()...)
	collectors = append(collectors, mirror.NewMetricsCollector(ctrl))
	registry, err := server.NewRegistry(Version, collectors...)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	defer grpcServer.Stop()
	untrack := grpcServer.TrackRobot(ctrl)
	defer untrack()

	dashboards := map[string][]byte{"agrobot/agrobot-overview.json": mirror.Dashboard()}
	if err := server.WriteDashboards(cfg.DashboardsDir, dashboards); err != nil {
		return err
	}

	httpServer := server.NewHTTPServer(cfg.HTTPAddr, server.NewHandler(server.HandlerOptions{
		Controller: ctrl,
		Registry:   registry,
		Dashboards: dashboards,
		Logger:     log,
	}))

	var publisher *mqttpub.Publisher
	if cfg.MQTT.Broker != "" {
		publisher, err = mqttpub.Connect(mqttpub.Config{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			Logger:      log.WithName("mqtt"),
		}, ctrl)
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 2)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	var runErr error
	if runErr = ctrl.Start(ctx); runErr == nil {
		log.Info("agrobot started",
			"version", Version,
			"backend", cfg.Backend,
			"http_addr", cfg.HTTPAddr,
			"grpc_addr", cfg.GRPCAddr,
			"mqtt", cfg.MQTT.Broker != "",
			"poll_interval", cfg.PollInterval.String(),
		)
		select {
		case <-ctx.Done():
			log.Info("shutting down")
		case runErr = <-errCh:
			log.Error(runErr, "server failed")
		}
	}

	ctrl.Stop()
	if publisher != nil {
		publisher.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "http shutdown")
	}
	grpcServer.Stop()
	return runErr
}
