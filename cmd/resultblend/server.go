package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitmuster/resultblend/pkg/api"
	"github.com/bitmuster/resultblend/pkg/auth"
	"github.com/bitmuster/resultblend/pkg/blend"
	"github.com/bitmuster/resultblend/pkg/config"
	"github.com/bitmuster/resultblend/pkg/history"
	"github.com/bitmuster/resultblend/pkg/metrics"
	"github.com/bitmuster/resultblend/pkg/staging"
	"github.com/bitmuster/resultblend/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServerCmd(log *logrus.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the resultblend server",
		Long:  `Start the HTTP API server with its staging store and blend history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), log, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml",
		"Path to configuration file")

	return cmd
}

func runServer(ctx context.Context, log *logrus.Logger, configPath string) error {
	log.WithField("path", configPath).Info("Loading configuration")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Info("Configuration loaded:\n" + cfg.String())

	// Blend history store.
	st, err := store.New(log, cfg)
	if err != nil {
		return err
	}

	if err := st.Start(ctx); err != nil {
		return err
	}

	defer st.Stop()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	historySvc := history.NewService(log, cfg.History, st)

	if err := historySvc.Start(ctx); err != nil {
		return err
	}

	defer historySvc.Stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	m.SetBuildInfo(Version, GitCommit, BuildDate)

	// The staging store lives for the whole process and is shared by the
	// pipeline and the API server.
	stagingStore := staging.NewStore(log)
	pipeline := blend.NewPipeline(log, stagingStore, blend.NewRobotLibrary(), st, m)
	gate := auth.NewGate(log, cfg.Auth)

	srv := api.NewServer(log, cfg, stagingStore, pipeline, gate, st, m)

	if err := srv.Start(ctx); err != nil {
		return err
	}

	defer srv.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("Received shutdown signal")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	log.Info("Shutting down...")

	return nil
}
