package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sessionbroker/broker/internal/adapter"
	"github.com/sessionbroker/broker/internal/config"
	"github.com/sessionbroker/broker/internal/coordinator"
	"github.com/sessionbroker/broker/internal/logging"
)

var (
	serveDir         string
	serveStdioBinary string
	serveGRPCAddr    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session broker daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory (defaults to cwd)")
	serveCmd.Flags().StringVar(&serveStdioBinary, "stdio-binary", "", "Binary for the stdio backend adapter, registered as \"stdio\" when set")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc-backend", "", "Address for the gRPC local-service backend adapter, registered as \"grpc\" when set")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := getWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	var adapters []adapter.Adapter
	if serveStdioBinary != "" {
		adapters = append(adapters, adapter.NewStdioAdapter("stdio", adapter.StdioAdapterConfig{
			Binary:      serveStdioBinary,
			EnvDenyList: cfg.EnvDenyList,
			Capabilities: adapter.Capabilities{
				Streaming:     true,
				Permissions:   true,
				SlashCommands: true,
				Availability:  adapter.AvailabilityLocal,
			},
		}))
	}
	if serveGRPCAddr != "" {
		adapters = append(adapters, adapter.NewGRPCAdapter("grpc", adapter.GRPCAdapterConfig{
			Address: serveGRPCAddr,
			Capabilities: adapter.Capabilities{
				Streaming:    true,
				Permissions:  true,
				Availability: adapter.AvailabilityService,
			},
		}))
	}
	if len(adapters) == 0 {
		logging.Warn().Msg("no backend adapters configured; sessions can be created but never connect")
	}

	co := coordinator.New(coordinator.Options{
		Config:   cfg,
		Adapters: adapters,
	})
	defer co.Close()

	if err := co.InitializeMCP(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("mcp initialization failed")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: co.Routes(),
	}

	go func() {
		logging.Info().Int("port", cfg.Port).Msg("session broker listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("session broker stopped")
	return nil
}

func getWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
