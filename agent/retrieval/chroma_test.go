package retrieval

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kelseyhightower/envconfig"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
)

type fakeEmbedder struct {
	err   error
	calls atomic.Int32
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type fakeIndex struct {
	hits     []indexHit
	queryErr error
	addErr   error

	gotK     int
	gotQuery []float32
	added    []indexDoc
	closed   bool
}

func (f *fakeIndex) Query(_ context.Context, vector []float32, k int) ([]indexHit, error) {
	f.gotK = k
	f.gotQuery = vector
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.hits, nil
}

func (f *fakeIndex) Upsert(_ context.Context, docs []indexDoc) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, docs...)
	return nil
}

func (f *fakeIndex) Close() error {
	f.closed = true
	return nil
}

func newTestRetriever(t *testing.T, idx *fakeIndex, emb Embedder) *ChromaRetriever {
	t.Helper()

	r, err := NewChromaRetriever(ChromaConfig{
		URL:        "http://localhost:8001",
		Collection: "company_policy",
		TopK:       3,
		MinScore:   0.25,
	}, emb, withIndex(idx))
	if err != nil {
		t.Fatalf("NewChromaRetriever() error = %v", err)
	}
	return r
}

func TestChromaRetrieverRetrieveFiltersAndSorts(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{hits: []indexHit{
		{Content: "Delivery takes 3 days.", Source: "policy.txt", Distance: 0.4},
		{Content: "Unrelated text.", Source: "policy.txt", Distance: 0.9},
		{Content: "Returns within 14 days.", Source: "returns.txt", Distance: 0.1},
		{Content: "   ", Source: "policy.txt", Distance: 0.05},
	}}

	r := newTestRetriever(t, idx, &fakeEmbedder{})
	chunks, err := r.Retrieve(context.Background(), "how long is delivery", 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if idx.gotK != 2 {
		t.Fatalf("query k = %d, want 2", idx.gotK)
	}
	if len(idx.gotQuery) == 0 {
		t.Fatal("expected the query embedding to reach the index")
	}
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if chunks[0].Content != "Returns within 14 days." || chunks[0].Source != "returns.txt" {
		t.Fatalf("chunks[0] = %+v", chunks[0])
	}
	if chunks[0].Score < chunks[1].Score {
		t.Fatalf("chunks not sorted by score: %+v", chunks)
	}
	for _, c := range chunks {
		if c.Score < 0.25 {
			t.Fatalf("chunk below min score returned: %+v", c)
		}
	}
}

func TestChromaRetrieverDefaultTopK(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	r := newTestRetriever(t, idx, &fakeEmbedder{})
	if _, err := r.Retrieve(context.Background(), "hours", 0); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if idx.gotK != 3 {
		t.Fatalf("query k = %d, want configured 3", idx.gotK)
	}
}

func TestChromaRetrieverMissingCollectionIsEmpty(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, &fakeIndex{queryErr: ErrCollectionNotFound}, &fakeEmbedder{})

	chunks, err := r.Retrieve(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %+v", chunks)
	}
}

func TestChromaRetrieverUnavailable(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, &fakeIndex{queryErr: errors.New("502 bad gateway")}, &fakeEmbedder{})

	_, err := r.Retrieve(context.Background(), "price", 3)
	if !errors.Is(err, contractx.ErrRetrievalUnavailable) {
		t.Fatalf("Retrieve() error = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestChromaRetrieverEmbedFailure(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	r := newTestRetriever(t, idx, &fakeEmbedder{err: errors.New("quota")})

	_, err := r.Retrieve(context.Background(), "price", 3)
	if !errors.Is(err, contractx.ErrRetrievalUnavailable) {
		t.Fatalf("Retrieve() error = %v, want ErrRetrievalUnavailable", err)
	}
	if idx.gotK != 0 {
		t.Fatal("index should not be queried without an embedding")
	}
}

func TestChromaRetrieverEmptyQuery(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	r := newTestRetriever(t, &fakeIndex{}, emb)

	chunks, err := r.Retrieve(context.Background(), "   ", 3)
	if err != nil || len(chunks) != 0 {
		t.Fatalf("Retrieve() = %v, %v; want empty, nil", chunks, err)
	}
	if emb.calls.Load() != 0 {
		t.Fatal("embedder should not be called for an empty query")
	}
}

func TestChromaRetrieverIngest(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	r := newTestRetriever(t, idx, &fakeEmbedder{})

	n, err := r.Ingest(context.Background(), "policy.txt", []string{"first", "second"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Ingest() = %d, want 2", n)
	}
	if len(idx.added) != 2 || idx.added[1].ID != "policy.txt#1" {
		t.Fatalf("unexpected docs: %+v", idx.added)
	}
	if idx.added[0].Source != "policy.txt" || idx.added[1].Chunk != 1 {
		t.Fatalf("unexpected metadata: %+v", idx.added)
	}
	for i, d := range idx.added {
		if len(d.Vector) == 0 {
			t.Fatalf("doc %d has no embedding", i)
		}
	}

	if err := r.Close(); err != nil || !idx.closed {
		t.Fatalf("Close() = %v, closed = %v", err, idx.closed)
	}
}

func TestChromaRetrieverIngestFailure(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, &fakeIndex{addErr: errors.New("disk full")}, &fakeEmbedder{})
	if _, err := r.Ingest(context.Background(), "policy.txt", []string{"first"}); err == nil {
		t.Fatal("expected ingest error")
	}
}

func TestNewChromaRetrieverValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromaRetriever(ChromaConfig{URL: "", Collection: "x"}, &fakeEmbedder{}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewChromaRetriever(ChromaConfig{URL: "localhost", Collection: "x"}, &fakeEmbedder{}); err == nil {
		t.Fatal("expected error for relative url")
	}
	if _, err := NewChromaRetriever(ChromaConfig{URL: "http://localhost:8001", Collection: "x"}, nil); err == nil {
		t.Fatal("expected error for nil embedder")
	}
	if _, err := NewChromaRetriever(ChromaConfig{URL: "http://localhost:8001", Collection: " "}, &fakeEmbedder{}); err == nil || !strings.Contains(err.Error(), "collection") {
		t.Fatalf("expected collection error, got %v", err)
	}
}

func TestEmbedderFunctionUsesEmbedder(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	ef := embedderFunction{embedder: emb}

	docs, err := ef.EmbedDocuments(context.Background(), []string{"a", "b"})
	if err != nil || len(docs) != 2 {
		t.Fatalf("EmbedDocuments() = %d, %v", len(docs), err)
	}
	if _, err := ef.EmbedQuery(context.Background(), "a"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if emb.calls.Load() != 2 {
		t.Fatalf("embedder calls = %d, want 2", emb.calls.Load())
	}
}

func TestChromaConfigDefaultsAwayFromServerPort(t *testing.T) {
	var cfg ChromaConfig
	if err := envconfig.Process("LEADFLOW_TEST_CHROMA", &cfg); err != nil {
		t.Fatalf("envconfig.Process() error = %v", err)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		t.Fatalf("default url %q: %v", cfg.URL, err)
	}
	if u.Port() != "8001" {
		t.Fatalf("default chroma port = %q, want 8001 so it does not collide with the server on 8000", u.Port())
	}
}
