package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kiesman99/retile/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for tile previews",
	Long: `Start an HTTP server that renders colorized previews of single tiles.

Datasets listed under "datasets" in the config file are served at
/api/v1/datasets/{name}/preview. Ad-hoc datasets can be previewed through
/api/v1/preview.

Examples:
  # Start server on default port 3000
  retile serve --config retile.yaml

  # Start server with custom bind address
  retile serve --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 3000, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	serveCmd.Flags().Int("max-tile-bytes", 64<<20, "largest raw tile an ad-hoc preview may request")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.max_tile_bytes", serveCmd.Flags().Lookup("max-tile-bytes"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	apiServer, err := server.NewServer(cmd.Context(), server.Options{
		Version:      "1.0.0",
		Fetcher:      newTransport(cfg),
		Datasets:     cfg.Datasets,
		MaxTileBytes: cfg.Server.MaxTileBytes,
		Logger:       logger.Named("server"),
	})
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, cfg.Server.Timeout),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting retile server",
		zap.String("addr", addr),
		zap.Int("datasets", len(cfg.Datasets)),
		zap.String("health", fmt.Sprintf("http://%s/api/v1/health", addr)),
	)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
