// Package pipeline orchestrates one verification run: retrieve candidate
// evidence, score it against the claim, aggregate into a verdict. A run
// moves through retrieving → scoring → aggregating → done, checking its
// cancellation token at each stage boundary, and prefers a partial verdict
// over no verdict when the deadline arrives mid-scoring.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/truthgraph/truthgraph/internal/embed"
	"github.com/truthgraph/truthgraph/internal/index"
	"github.com/truthgraph/truthgraph/internal/model"
	"github.com/truthgraph/truthgraph/internal/nli"
	"github.com/truthgraph/truthgraph/internal/verdict"
)

var (
	// ErrCancelled is returned when the run's cancel token fires.
	ErrCancelled = errors.New("verification cancelled")

	// ErrNoResults is returned when the deadline expired before any
	// evidence was retrieved. With evidence in hand a partial verdict is
	// always preferred to this error.
	ErrNoResults = errors.New("deadline expired with no evidence and no results")
)

// Embedder is the slice of the embedding service the pipeline needs
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the slice of the evidence index the pipeline needs
type Retriever interface {
	Search(ctx context.Context, q index.Query) ([]model.RetrievedEvidence, error)
	Evidence(id string) (model.EvidenceItem, bool)
}

// Options bound a single run
type Options struct {
	MaxEvidence         int
	ConfidenceThreshold float64 // Verdicts below this confidence are flagged
	Deadline            time.Duration
	ScoringConcurrency  int
	ScoringBatch        int // Pairs per scoring call fanned out concurrently
	Mode                index.Mode
}

// Pipeline runs claim verification. It is safe for concurrent use; all
// per-run state lives on the stack of Run.
type Pipeline struct {
	embedder   Embedder
	retriever  Retriever
	scorer     nli.Scorer
	aggregator *verdict.Aggregator
	opts       Options
	logger     zerolog.Logger
}

// New creates a verification pipeline
func New(embedder Embedder, retriever Retriever, scorer nli.Scorer, aggregator *verdict.Aggregator, opts Options, logger zerolog.Logger) *Pipeline {
	if opts.MaxEvidence <= 0 {
		opts.MaxEvidence = 10
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.5
	}
	if opts.Deadline <= 0 {
		opts.Deadline = 45 * time.Second
	}
	if opts.ScoringConcurrency <= 0 {
		opts.ScoringConcurrency = 4
	}
	if opts.ScoringBatch <= 0 {
		opts.ScoringBatch = 4
	}
	if opts.Mode == "" {
		opts.Mode = index.ModeHybrid
	}

	return &Pipeline{
		embedder:   embedder,
		retriever:  retriever,
		scorer:     scorer,
		aggregator: aggregator,
		opts:       opts,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run verifies a single claim. The returned verdict has Partial set when
// the deadline cut scoring short. Cancellation via the token exits early
// without producing a verdict.
func (p *Pipeline) Run(ctx context.Context, claim model.Claim, cancel *CancelToken) (model.Verdict, error) {
	if cancel.Cancelled() {
		return model.Verdict{}, ErrCancelled
	}

	runCtx, stop := context.WithTimeout(ctx, p.opts.Deadline)
	defer stop()

	logger := p.logger.With().Str("claim_id", claim.ID).Logger()
	started := time.Now()

	// Stage: retrieving.
	retrieved, mode, err := p.retrieve(runCtx, claim)
	if err != nil {
		return model.Verdict{}, err
	}
	logger.Debug().Int("evidence", len(retrieved)).Str("mode", string(mode)).
		Dur("elapsed", time.Since(started)).Msg("retrieval complete")

	if cancel.Cancelled() {
		return model.Verdict{}, ErrCancelled
	}

	// Stage: scoring.
	results, partial, err := p.score(runCtx, claim, retrieved)
	if err != nil {
		return model.Verdict{}, err
	}

	if cancel.Cancelled() {
		return model.Verdict{}, ErrCancelled
	}

	// Stage: aggregating.
	v := p.aggregator.Aggregate(claim, results)
	v.Partial = partial
	v.LowConfidence = v.Confidence < p.opts.ConfidenceThreshold
	if v.LowConfidence {
		logger.Warn().Str("label", string(v.Label)).Float64("confidence", v.Confidence).
			Float64("threshold", p.opts.ConfidenceThreshold).Msg("verdict below confidence threshold")
	}

	logger.Info().Str("label", string(v.Label)).Float64("confidence", v.Confidence).
		Bool("partial", v.Partial).Dur("elapsed", time.Since(started)).Msg("verification done")

	return v, nil
}

// retrieve embeds the claim and searches the index. A transient embedding
// failure degrades to lexical-only retrieval instead of failing the run;
// a permanently unavailable model is fatal.
func (p *Pipeline) retrieve(ctx context.Context, claim model.Claim) ([]model.RetrievedEvidence, index.Mode, error) {
	mode := p.opts.Mode
	var vector []float32

	if mode != index.ModeLexical {
		vectors, err := p.embedder.Embed(ctx, []string{claim.Text})
		switch {
		case err == nil:
			vector = vectors[0]
		case errors.Is(err, embed.ErrModelUnavailable):
			return nil, mode, fmt.Errorf("embed claim: %w", err)
		case ctx.Err() != nil:
			return nil, mode, fmt.Errorf("embed claim: %w", ErrNoResults)
		default:
			p.logger.Warn().Err(err).Msg("claim embedding failed, falling back to lexical retrieval")
			mode = index.ModeLexical
		}
	}

	retrieved, err := p.retriever.Search(ctx, index.Query{
		Text:   claim.Text,
		Vector: vector,
		K:      p.opts.MaxEvidence,
		Mode:   mode,
	})
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, index.ErrIndexUnavailable) {
			return nil, mode, fmt.Errorf("search: %w", ErrNoResults)
		}
		return nil, mode, fmt.Errorf("search: %w", err)
	}

	return retrieved, mode, nil
}

// score fans the retrieved evidence out to the NLI scorer in bounded
// concurrent batches. At the deadline it returns whatever completed with
// partial=true. A fatal scorer error aborts the run; batch-local errors
// drop the batch.
func (p *Pipeline) score(ctx context.Context, claim model.Claim, retrieved []model.RetrievedEvidence) ([]model.NLIResult, bool, error) {
	if len(retrieved) == 0 {
		return []model.NLIResult{}, false, nil
	}

	pairs := make([]nli.Pair, 0, len(retrieved))
	for _, r := range retrieved {
		item, ok := p.retriever.Evidence(r.EvidenceID)
		if !ok {
			// The corpus was rebuilt mid-run; drop the orphaned hit.
			p.logger.Warn().Str("evidence_id", r.EvidenceID).Msg("retrieved evidence missing from index")
			continue
		}
		pairs = append(pairs, nli.Pair{
			ClaimText:    claim.Text,
			EvidenceText: item.Text,
			EvidenceID:   r.EvidenceID,
			Similarity:   r.Score,
		})
	}

	var (
		mu      sync.Mutex
		results []model.NLIResult
		fatal   error
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ScoringConcurrency)

	batches := 0
	for start := 0; start < len(pairs); start += p.opts.ScoringBatch {
		end := start + p.opts.ScoringBatch
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]
		batches++

		g.Go(func() error {
			scored, err := p.scorer.Score(gctx, batch)
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				if errors.Is(err, nli.ErrModelUnavailable) {
					fatal = err
					return err // Stops the group early
				}
				failed++
				p.logger.Warn().Err(err).Int("pairs", len(batch)).Msg("scoring batch dropped")
				return nil
			}

			mu.Lock()
			results = append(results, scored...)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	if fatal != nil {
		return nil, false, fmt.Errorf("score: %w", fatal)
	}

	// Fan-in order depends on batch timing; fix it for stable output.
	sort.Slice(results, func(i, j int) bool { return results[i].EvidenceID < results[j].EvidenceID })

	if ctx.Err() != nil {
		// Deadline: best effort. Only give up when there is nothing at all.
		if len(results) == 0 && len(pairs) == 0 {
			return nil, false, ErrNoResults
		}
		return results, len(results) < len(pairs), nil
	}

	if failed == batches && batches > 0 {
		return nil, false, fmt.Errorf("score: all %d batches failed", batches)
	}

	return results, len(results) < len(pairs), nil
}
