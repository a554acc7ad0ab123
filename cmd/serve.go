package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/geostitch/internal/app"
	"github.com/kiesman99/geostitch/internal/server"
)

const version = "1.0.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the configured map",
	Long: `Start an HTTP server exposing the layers of the configured map.

Tiles of every layer are served in the map's profile, re-assembled from the
layer's source when its tiling differs, and cached according to the layer's
cache policy.

Examples:
  # Start server on default port 8080
  geostitch serve --config geostitch.yaml

  # Start server on custom port
  geostitch serve --config geostitch.yaml --port 3000

  # Start server with custom bind address
  geostitch serve --config geostitch.yaml --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg.Map, log)
	if err != nil {
		return err
	}
	defer a.Close()

	apiServer := server.NewServer(version, a.Map,
		server.WithLogger(log),
		server.WithCompositor(a.Compositor),
	)

	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, cfg.Server.Timeout),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
	}()

	log.Info("starting geostitch server",
		"addr", addr,
		"map", cfg.Map.Name,
		"profile", cfg.Map.Profile,
		"layers", len(cfg.Map.Layers),
		"cache", cfg.Map.Cache.Backend,
	)
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Layers:       http://%s/api/v1/layers\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Metrics:      http://%s/metrics\n", addr)

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
