package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"botgateway/internal/config"
	"botgateway/internal/gateway"
	"botgateway/internal/metrics"
	"botgateway/internal/server"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook and send API server",
		Long:  "Serves platform webhooks under /webhooks/{type} and the send API under /channels/{id}/messages. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	gm := metrics.NewGateway(metrics.Collector)
	gw, err := buildGateway(cfg, st, gm)
	if err != nil {
		return err
	}

	srvCfg := serverConfig(cfg, gw, st.Ping)
	logger.Info("gateway ready", "channels", gw.Types(), "addr", srvCfg.Addr, "version", version)
	return server.New(srvCfg).Start(ctx)
}

func serverConfig(cfg *config.Config, gw *gateway.Gateway, health func(context.Context) error) server.Config {
	sc := server.Config{
		Addr:         cfg.Server.Addr(),
		Gateway:      gw,
		Health:       health,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		Logger:       logger,
	}
	if cfg.Metrics.Enabled {
		sc.Metrics = metrics.Collector.Handler()
		sc.MetricsPath = cfg.Metrics.Endpoint
	}
	return sc
}
