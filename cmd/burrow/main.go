package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/cleanup"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/executor"
	"github.com/cuemby/burrow/pkg/files"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/runtime"
	"github.com/cuemby/burrow/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - Sandboxed code execution service",
	Long: `Burrow runs untrusted Python and R code in single-use Docker
containers. Each execution gets a fresh container with a session directory
bind-mounted at /mnt/data; files the code produces there are tracked and
served back over the HTTP API.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sandbox daemon",
	Long: `Start the HTTP API, the execution engine and the file cleanup loop.

All settings come from the environment: PORT, API_KEY, HOST_PATH,
MAX_CONCURRENT_CONTAINERS, SANDBOX_MAX_EXECUTION_TIME, PY_CONTAINER_IMAGE,
R_CONTAINER_IMAGE and friends. Unset variables fall back to their
defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogSerialize,
	})
	logger := log.WithComponent("daemon")

	metrics.Register()

	if err := os.MkdirAll(cfg.ConfigPathAbs(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadPathAbs(), 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	st, err := store.Open(cfg.ConfigPathAbs())
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer st.Close()

	rt, err := runtime.NewDockerRuntime()
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := rt.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("Docker daemon not reachable at startup, will retry per request")
	}
	cancel()

	engine := executor.New(cfg, rt, st)
	fm := files.NewManager(cfg, st)

	reaper := cleanup.NewReaper(cfg, st)
	reaper.Start()
	defer reaper.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(cfg, engine, fm),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Int("port", cfg.Port).
			Str("prefix", cfg.APIPrefix).
			Int("max_containers", cfg.MaxConcurrentContainers).
			Msg("Burrow daemon listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Forced shutdown")
		return err
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}
