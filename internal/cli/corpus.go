package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/truthgraph/truthgraph/internal/corpus"
	"github.com/truthgraph/truthgraph/internal/index"
	"github.com/truthgraph/truthgraph/internal/logging"
)

var buildTimeout time.Duration

// corpusCmd represents the corpus command
var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Work with evidence corpora",
}

var corpusBuildCmd = &cobra.Command{
	Use:   "build <corpus.jsonl>",
	Short: "Build an index from a corpus file and report what it would serve",
	Long: `Build reads a JSONL corpus file, fetches any url records, embeds
every document, and constructs the hybrid index, exactly as 'serve'
does at startup. Use it to validate a corpus before deploying it:
malformed records fail the build, unreachable url records are reported
as skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runCorpusBuild,
}

func init() {
	rootCmd.AddCommand(corpusCmd)
	corpusCmd.AddCommand(corpusBuildCmd)

	corpusBuildCmd.Flags().DurationVar(&buildTimeout, "timeout", 10*time.Minute, "overall build timeout")
}

func runCorpusBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
	defer cancel()

	embedSvc, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	idx := index.New(cfg.Index, cfg.Embedding.Dimension)
	fetcher := corpus.NewFetcher(cfg.Corpus)
	loader := corpus.NewLoader(embedSvc, idx, fetcher, logger)

	stats, err := loader.Load(ctx, args[0])
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	fmt.Printf("Indexed %d evidence items (%d skipped)\n", stats.Indexed, stats.Skipped)
	return nil
}
