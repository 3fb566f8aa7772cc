package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"abstractrag/config"
	"abstractrag/internal/server"
	"abstractrag/internal/usecase"
	"github.com/spf13/cobra"
)

var (
	serveAddr   string
	serveIngest bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API. The index starts empty; POST /ingest loads the
configured source and POST /query answers questions.

Examples:
  abstractrag serve
  abstractrag serve --addr :9000 --ingest`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveIngest, "ingest", false, "ingest the configured source before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	gen, err := newLLM(cfg)
	if err != nil {
		return err
	}
	answer := usecase.NewAnswerUseCase(a.retrieve, gen, logger)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveIngest {
		n, err := a.load(ctx)
		if err != nil {
			return fmt.Errorf("startup ingestion failed: %w", err)
		}
		logger.Info("startup ingestion complete", "documents", n)
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	api := server.NewAPI(a.ingest, answer, a.index, a.source, server.Options{
		DefaultTopK:       cfg.Retrieve.TopK,
		RequestTimeout:    config.Seconds(cfg.Server.RequestTimeoutSecs),
		ReadHeaderTimeout: config.Seconds(cfg.Server.ReadHeaderTimeoutSecs),
		ShutdownTimeout:   config.Seconds(cfg.Server.ShutdownTimeoutSecs),
	}, logger)

	return api.Serve(ctx, addr)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
