package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/truthgraph/truthgraph/internal/cache"
	"github.com/truthgraph/truthgraph/internal/corpus"
	"github.com/truthgraph/truthgraph/internal/embed"
	"github.com/truthgraph/truthgraph/internal/index"
	"github.com/truthgraph/truthgraph/internal/model"
	"github.com/truthgraph/truthgraph/internal/nli"
	"github.com/truthgraph/truthgraph/internal/pipeline"
	"github.com/truthgraph/truthgraph/internal/verdict"
)

// loadConfig layers the config file over built-in defaults and pulls API
// keys from the environment. Keys never come from the file.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	cfg.Embedding.APIKey = apiKey
	cfg.NLI.APIKey = apiKey

	return cfg, nil
}

// buildEmbedder constructs the embedding service, with the cache layered
// in when enabled.
func buildEmbedder(cfg *model.Config) (*embed.Service, error) {
	client, err := embed.NewClient(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}

	var inner embed.Embedder = client
	if cfg.Cache.Enabled && cfg.Embedding.CacheVector {
		c := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		inner = embed.NewCachedEmbedder(client, c, cfg.Embedding.Model)
	}

	return embed.NewService(inner, cfg.Embedding.BatchSize), nil
}

// buildVerifier wires the full verification stack: embedder, evidence
// index with the corpus loaded, entailment scorer, aggregator, pipeline.
func buildVerifier(ctx context.Context, cfg *model.Config, logger zerolog.Logger) (*pipeline.Pipeline, *index.Index, error) {
	embedSvc, err := buildEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}

	idx := index.New(cfg.Index, cfg.Embedding.Dimension)

	if cfg.Corpus.Path != "" {
		fetcher := corpus.NewFetcher(cfg.Corpus)
		loader := corpus.NewLoader(embedSvc, idx, fetcher, logger)
		if _, err := loader.Load(ctx, cfg.Corpus.Path); err != nil {
			return nil, nil, fmt.Errorf("load corpus: %w", err)
		}
	}

	nliClient, err := nli.NewClient(cfg.NLI)
	if err != nil {
		return nil, nil, fmt.Errorf("nli client: %w", err)
	}
	scorer := nli.NewService(nliClient, cfg.NLI.BatchSize, cfg.NLI.TokenBudget)

	aggregator := verdict.NewAggregator(cfg.Pipeline.SignificanceThreshold, cfg.Pipeline.TruncationDiscount)

	p := pipeline.New(embedSvc, idx, scorer, aggregator, pipeline.Options{
		MaxEvidence:         cfg.Pipeline.MaxEvidence,
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		Deadline:            cfg.Pipeline.Deadline,
		ScoringConcurrency:  cfg.Pipeline.ScoringConcurrency,
		ScoringBatch:        cfg.NLI.BatchSize,
	}, logger)

	return p, idx, nil
}
