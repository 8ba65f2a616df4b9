package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/truthgraph/truthgraph/internal/logging"
	"github.com/truthgraph/truthgraph/internal/model"
)

var (
	verifyCorpus  string
	verifyOut     string
	verifyTimeout time.Duration
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <claim text>",
	Short: "Verify a single claim synchronously",
	Long: `Verify runs one claim through the full pipeline in the foreground
and prints the verdict as JSON. It builds the index from the corpus on
every invocation; for repeated claims against the same corpus, run the
service with 'truthgraph serve' instead.

Example:
  truthgraph verify --corpus evidence.jsonl "The Eiffel Tower is in Paris"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyCorpus, "corpus", "", "JSONL evidence corpus (overrides config)")
	verifyCmd.Flags().StringVar(&verifyOut, "json", "", "write the verdict to this path instead of stdout")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 2*time.Minute, "overall timeout including corpus build")
}

func runVerify(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("claim text is empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if verifyCorpus != "" {
		cfg.Corpus.Path = verifyCorpus
	}
	if cfg.Corpus.Path == "" {
		return fmt.Errorf("no corpus configured, pass --corpus or set corpus.path")
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	p, idx, err := buildVerifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Indexed %d evidence items\n", idx.Size())
	}

	claim := model.Claim{
		ID:          uuid.NewString(),
		Text:        text,
		SubmittedAt: time.Now().UTC(),
	}

	v, err := p.Run(ctx, claim, nil)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}

	if verifyOut != "" {
		if err := os.WriteFile(verifyOut, append(out, '\n'), 0o644); err != nil {
			return fmt.Errorf("write verdict: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Wrote verdict: %s\n", verifyOut)
		}
		return nil
	}

	fmt.Println(string(out))
	return nil
}
