// Package corpus builds the evidence index from external sources. The
// pipeline only consumes a built index; everything here runs at
// corpus-build time.
package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/truthgraph/truthgraph/internal/model"
)

// Embedder is the slice of the embedding service the loader needs
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Rebuilder is the slice of the evidence index the loader needs
type Rebuilder interface {
	Rebuild(items []model.EvidenceItem) error
}

// Record is one line of a JSONL corpus file. Either text or url must be
// set; url records are fetched and their extracted text indexed.
type Record struct {
	ID          string   `json:"id"`
	Text        string   `json:"text,omitempty"`
	URL         string   `json:"url,omitempty"`
	Source      string   `json:"source,omitempty"`
	SparseTerms []string `json:"sparse_terms,omitempty"`
}

// Loader reads evidence records, embeds them, and rebuilds the index
type Loader struct {
	embedder Embedder
	index    Rebuilder
	fetcher  *Fetcher
	logger   zerolog.Logger
}

// NewLoader creates a corpus loader. The fetcher may be nil when remote
// records are not expected.
func NewLoader(embedder Embedder, index Rebuilder, fetcher *Fetcher, logger zerolog.Logger) *Loader {
	return &Loader{
		embedder: embedder,
		index:    index,
		fetcher:  fetcher,
		logger:   logger.With().Str("component", "corpus").Logger(),
	}
}

// Stats summarizes one load
type Stats struct {
	Indexed int
	Skipped int
}

// Load reads a JSONL evidence file, resolves remote records, embeds all
// texts, and atomically rebuilds the index. Unresolvable records are
// skipped with a warning; embedding or index construction failures fail
// the whole load.
func (l *Loader) Load(ctx context.Context, path string) (Stats, error) {
	var stats Stats

	records, err := l.readRecords(path)
	if err != nil {
		return stats, err
	}

	items := make([]model.EvidenceItem, 0, len(records))
	for _, rec := range records {
		text := strings.TrimSpace(rec.Text)
		source := rec.Source

		if text == "" && rec.URL != "" {
			if l.fetcher == nil {
				l.logger.Warn().Str("id", rec.ID).Msg("url record but fetching disabled, skipped")
				stats.Skipped++
				continue
			}
			fetched, err := l.fetcher.Fetch(ctx, rec.URL)
			if err != nil {
				l.logger.Warn().Err(err).Str("id", rec.ID).Str("url", rec.URL).Msg("fetch failed, record skipped")
				stats.Skipped++
				continue
			}
			text = fetched
			if source == "" {
				source = rec.URL
			}
		}

		if text == "" {
			l.logger.Warn().Str("id", rec.ID).Msg("empty record skipped")
			stats.Skipped++
			continue
		}

		items = append(items, model.EvidenceItem{
			ID:          rec.ID,
			Text:        text,
			Source:      source,
			SparseTerms: rec.SparseTerms,
		})
	}

	if len(items) > 0 {
		texts := make([]string, len(items))
		for i, item := range items {
			texts[i] = item.Text
		}

		vectors, err := l.embedder.Embed(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embed corpus: %w", err)
		}
		for i := range items {
			items[i].Embedding = vectors[i]
		}
	}

	if err := l.index.Rebuild(items); err != nil {
		return stats, fmt.Errorf("rebuild index: %w", err)
	}

	stats.Indexed = len(items)
	l.logger.Info().Int("indexed", stats.Indexed).Int("skipped", stats.Skipped).Msg("corpus built")
	return stats, nil
}

// readRecords parses the JSONL file, skipping blank lines and # comments
func (l *Loader) readRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer func() { _ = file.Close() }()

	var records []Record
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", lineNo, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("corpus line %d: missing id", lineNo)
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("corpus line %d: duplicate id %q", lineNo, rec.ID)
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}

	return records, nil
}
