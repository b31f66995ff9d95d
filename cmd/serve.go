package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docquery/docquery/api"
	"github.com/docquery/docquery/internal/app"
	"github.com/docquery/docquery/internal/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("closing application", "error", closeErr)
		}
	}()

	a.Logger.Info("starting docquery",
		"version", AppVersion,
		"provider", cfg.Provider,
		"index_backend", cfg.IndexBackend,
	)

	srv := api.NewServer(api.Config{
		RAG:       a.RAG,
		Pipeline:  a.Pipeline,
		Files:     a.Files,
		Index:     a.Index,
		Memory:    a.Memory,
		Jobs:      a.Jobs,
		Pool:      a.Pool,
		Logger:    a.Logger,
		UploadDir: cfg.UploadDir,
	})

	addr := serveAddr
	if addr == "" {
		addr = cfg.Addr
	}

	return srv.Run(ctx, addr)
}
