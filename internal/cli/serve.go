package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/truthgraph/truthgraph/internal/logging"
	"github.com/truthgraph/truthgraph/internal/server"
	"github.com/truthgraph/truthgraph/internal/task"
)

var (
	serveAddr   string
	serveCorpus string
	dataDir     string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification service",
	Long: `Serve starts the TruthGraph HTTP service: it loads the evidence
corpus, builds the hybrid index, and accepts claim submissions over the
v1 API. Claims are verified asynchronously by a bounded worker pool;
clients poll task state and fetch verdicts when tasks complete.

Example:
  truthgraph serve --corpus evidence.jsonl
  truthgraph serve --corpus evidence.jsonl --addr :9000 --data-dir /var/lib/truthgraph`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveCorpus, "corpus", "", "JSONL evidence corpus (overrides config)")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "persist tasks and verdicts here (default: in-memory)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveCorpus != "" {
		cfg.Corpus.Path = serveCorpus
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, idx, err := buildVerifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if idx.Size() == 0 {
		logger.Warn().Msg("empty corpus, every claim will come back insufficient_evidence")
	}

	var store task.Store
	if dataDir != "" {
		badgerStore, err := task.NewBadgerStore(dataDir, cfg.Worker.ResultTTL)
		if err != nil {
			return fmt.Errorf("open task store: %w", err)
		}
		defer func() { _ = badgerStore.Close() }()
		store = badgerStore
	} else {
		store = task.NewMemoryStore(cfg.Worker.ResultTTL)
	}

	coordinator := task.NewCoordinator(cfg.Worker, store, p, logger)
	coordinator.Start()
	defer coordinator.Stop()

	srv := server.New(cfg.Server.Addr, coordinator, idx.Size, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
