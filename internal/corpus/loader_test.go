package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/truthgraph/truthgraph/internal/model"
)

type mockEmbedder struct {
	texts []string
	err   error
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.texts = append(m.texts, texts...)
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

type mockRebuilder struct {
	items []model.EvidenceItem
	err   error
}

func (m *mockRebuilder) Rebuild(items []model.EvidenceItem) error {
	if m.err != nil {
		return m.err
	}
	m.items = items
	return nil
}

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeCorpus(t, `
# comment line
{"id":"e1","text":"the eiffel tower is in paris","source":"wiki"}

{"id":"e2","text":"bananas are yellow","sparse_terms":["fruit"]}
`)

	embedder := &mockEmbedder{}
	rebuilder := &mockRebuilder{}
	loader := NewLoader(embedder, rebuilder, nil, zerolog.Nop())

	stats, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stats.Indexed != 2 || stats.Skipped != 0 {
		t.Errorf("expected 2 indexed 0 skipped, got %+v", stats)
	}

	if len(rebuilder.items) != 2 {
		t.Fatalf("expected 2 items in rebuild, got %d", len(rebuilder.items))
	}
	if rebuilder.items[0].ID != "e1" || rebuilder.items[0].Source != "wiki" {
		t.Errorf("unexpected first item: %+v", rebuilder.items[0])
	}
	if len(rebuilder.items[0].Embedding) != 2 {
		t.Error("expected embedding attached to indexed item")
	}
	if len(rebuilder.items[1].SparseTerms) != 1 || rebuilder.items[1].SparseTerms[0] != "fruit" {
		t.Errorf("sparse terms not carried through: %+v", rebuilder.items[1])
	}

	if len(embedder.texts) != 2 {
		t.Errorf("expected both texts embedded, got %v", embedder.texts)
	}
}

func TestLoad_MissingID(t *testing.T) {
	path := writeCorpus(t, `{"text":"no id here"}`)

	loader := NewLoader(&mockEmbedder{}, &mockRebuilder{}, nil, zerolog.Nop())
	if _, err := loader.Load(context.Background(), path); err == nil {
		t.Fatal("expected error for record without id")
	}
}

func TestLoad_DuplicateID(t *testing.T) {
	path := writeCorpus(t, `{"id":"dup","text":"first"}
{"id":"dup","text":"second"}`)

	loader := NewLoader(&mockEmbedder{}, &mockRebuilder{}, nil, zerolog.Nop())
	if _, err := loader.Load(context.Background(), path); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestLoad_MalformedLine(t *testing.T) {
	path := writeCorpus(t, `{"id":"ok","text":"fine"}
{not json`)

	loader := NewLoader(&mockEmbedder{}, &mockRebuilder{}, nil, zerolog.Nop())
	if _, err := loader.Load(context.Background(), path); err == nil {
		t.Fatal("expected error for malformed JSON line")
	}
}

func TestLoad_SkipsEmptyAndURLWithoutFetcher(t *testing.T) {
	path := writeCorpus(t, `{"id":"e1","text":"real evidence"}
{"id":"e2","text":"   "}
{"id":"e3","url":"https://example.com/page"}`)

	rebuilder := &mockRebuilder{}
	loader := NewLoader(&mockEmbedder{}, rebuilder, nil, zerolog.Nop())

	stats, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stats.Indexed != 1 || stats.Skipped != 2 {
		t.Errorf("expected 1 indexed 2 skipped, got %+v", stats)
	}
	if len(rebuilder.items) != 1 || rebuilder.items[0].ID != "e1" {
		t.Errorf("unexpected items: %+v", rebuilder.items)
	}
}

func TestLoad_EmbedFailureFailsLoad(t *testing.T) {
	path := writeCorpus(t, `{"id":"e1","text":"evidence"}`)

	wantErr := errors.New("model down")
	loader := NewLoader(&mockEmbedder{err: wantErr}, &mockRebuilder{}, nil, zerolog.Nop())

	if _, err := loader.Load(context.Background(), path); !errors.Is(err, wantErr) {
		t.Fatalf("expected embed error to fail the load, got %v", err)
	}
}

func TestLoad_RebuildFailureFailsLoad(t *testing.T) {
	path := writeCorpus(t, `{"id":"e1","text":"evidence"}`)

	wantErr := errors.New("dimension mismatch")
	loader := NewLoader(&mockEmbedder{}, &mockRebuilder{err: wantErr}, nil, zerolog.Nop())

	if _, err := loader.Load(context.Background(), path); !errors.Is(err, wantErr) {
		t.Fatalf("expected rebuild error to fail the load, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	loader := NewLoader(&mockEmbedder{}, &mockRebuilder{}, nil, zerolog.Nop())
	if _, err := loader.Load(context.Background(), "/no/such/file.jsonl"); err == nil {
		t.Fatal("expected error for missing corpus file")
	}
}

func TestExtractText(t *testing.T) {
	html := `<html><head><style>body{}</style><script>var x=1;</script></head>
<body><h1>Title</h1><p>First paragraph.</p><noscript>ignored</noscript></body></html>`

	got := extractText(html)
	if got != "Title First paragraph." {
		t.Errorf("unexpected extraction: %q", got)
	}
}
