package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	chromaemb "github.com/amikos-tech/chroma-go/pkg/embeddings"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
)

const defaultTopK = 3

var (
	ErrCollectionNotFound = errors.New("chroma collection not found")
	ErrEmptyQuery         = errors.New("query is empty")
)

type ChromaConfig struct {
	URL        string        `envconfig:"URL" default:"http://localhost:8001"`
	Collection string        `envconfig:"COLLECTION" default:"company_policy"`
	TopK       int           `envconfig:"TOP_K" split_words:"true" default:"3"`
	MinScore   float64       `envconfig:"MIN_SCORE" split_words:"true" default:"0.25"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

// ChromaOption customizes ChromaRetriever.
type ChromaOption func(*ChromaRetriever)

func withIndex(idx policyIndex) ChromaOption {
	return func(r *ChromaRetriever) {
		if idx != nil {
			r.index = idx
		}
	}
}

type indexHit struct {
	Content  string
	Source   string
	Distance float64
}

type indexDoc struct {
	ID      string
	Content string
	Source  string
	Chunk   int
	Vector  []float32
}

// policyIndex is the vector collection behind the retriever. Query returns
// ErrCollectionNotFound while nothing has been ingested.
type policyIndex interface {
	Query(ctx context.Context, vector []float32, k int) ([]indexHit, error)
	Upsert(ctx context.Context, docs []indexDoc) error
	Close() error
}

// ChromaRetriever answers similarity queries against a Chroma collection.
// Scores are cosine similarity, 1 - distance.
type ChromaRetriever struct {
	index    policyIndex
	topK     int
	minScore float64
	embedder Embedder
}

var _ contractx.Retriever = (*ChromaRetriever)(nil)

func NewChromaRetriever(cfg ChromaConfig, embedder Embedder, opts ...ChromaOption) (*ChromaRetriever, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("chroma url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid chroma url: %w", err)
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}

	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		return nil, errors.New("chroma collection is required")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	r := &ChromaRetriever{
		topK:     topK,
		minScore: cfg.MinScore,
		embedder: embedder,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if r.index == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		idx, err := newChromaIndex(baseURL, collection, timeout, embedder)
		if err != nil {
			return nil, err
		}
		r.index = idx
	}
	return r, nil
}

// Retrieve returns up to k passages with score >= MinScore, best first. An
// empty store or a missing collection is not an error.
func (r *ChromaRetriever) Retrieve(ctx context.Context, query string, k int) ([]contractx.PolicyChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if k <= 0 {
		k = r.topK
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", contractx.ErrRetrievalUnavailable, err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	hits, err := r.index.Query(ctx, vectors[0], k)
	if errors.Is(err, ErrCollectionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrRetrievalUnavailable, err)
	}

	return r.toChunks(hits, k), nil
}

func (r *ChromaRetriever) toChunks(hits []indexHit, k int) []contractx.PolicyChunk {
	chunks := make([]contractx.PolicyChunk, 0, len(hits))
	for _, h := range hits {
		content := strings.TrimSpace(h.Content)
		if content == "" {
			continue
		}
		score := 1 - h.Distance
		if score < r.minScore {
			continue
		}
		chunks = append(chunks, contractx.PolicyChunk{
			Content: content,
			Score:   score,
			Source:  h.Source,
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	return chunks
}

// Ingest embeds and stores chunks of one source document. The collection is
// created if it does not exist yet. Chunk ids are derived from source and
// position, so re-ingesting a document replaces its earlier chunks in place.
func (r *ChromaRetriever) Ingest(ctx context.Context, source string, chunks []string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := r.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
	}

	docs := make([]indexDoc, len(chunks))
	for i, c := range chunks {
		docs[i] = indexDoc{
			ID:      source + "#" + strconv.Itoa(i),
			Content: c,
			Source:  source,
			Chunk:   i,
			Vector:  vectors[i],
		}
	}

	if err := r.index.Upsert(ctx, docs); err != nil {
		return 0, fmt.Errorf("add documents: %w", err)
	}
	return len(chunks), nil
}

func (r *ChromaRetriever) Close() error {
	return r.index.Close()
}

// chromaIndex is a policyIndex over the Chroma HTTP API.
type chromaIndex struct {
	client chromago.Client
	name   string
	ef     chromaemb.EmbeddingFunction

	mu   sync.Mutex
	coll chromago.Collection
}

func newChromaIndex(baseURL, name string, timeout time.Duration, embedder Embedder) (*chromaIndex, error) {
	client, err := chromago.NewHTTPClient(
		chromago.WithBaseURL(baseURL),
		chromago.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	return &chromaIndex{
		client: client,
		name:   name,
		ef:     embedderFunction{embedder: embedder},
	}, nil
}

func (c *chromaIndex) collection(ctx context.Context, create bool) (chromago.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coll != nil {
		return c.coll, nil
	}

	if create {
		coll, err := c.client.GetOrCreateCollection(ctx, c.name,
			chromago.WithEmbeddingFunctionCreate(c.ef),
			chromago.WithCollectionMetadataCreate(
				chromago.NewMetadata(chromago.NewStringAttribute("hnsw:space", "cosine")),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("get or create collection %s: %w", c.name, err)
		}
		c.coll = coll
		return coll, nil
	}

	existing, err := c.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	found := false
	for _, coll := range existing {
		if coll != nil && coll.Name() == c.name {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrCollectionNotFound
	}

	coll, err := c.client.GetCollection(ctx, c.name, chromago.WithEmbeddingFunctionGet(c.ef))
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", c.name, err)
	}
	c.coll = coll
	return coll, nil
}

func (c *chromaIndex) Query(ctx context.Context, vector []float32, k int) ([]indexHit, error) {
	coll, err := c.collection(ctx, false)
	if err != nil {
		return nil, err
	}

	res, err := coll.Query(ctx,
		chromago.WithQueryEmbeddings(chromaemb.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, chromago.IncludeDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	docGroups := res.GetDocumentsGroups()
	if len(docGroups) == 0 {
		return nil, nil
	}
	docs := docGroups[0]

	var distances chromaemb.Distances
	if groups := res.GetDistancesGroups(); len(groups) > 0 {
		distances = groups[0]
	}
	var metas chromago.DocumentMetadatas
	if groups := res.GetMetadatasGroups(); len(groups) > 0 {
		metas = groups[0]
	}

	hits := make([]indexHit, 0, len(docs))
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		// a hit without a distance scores zero
		hit := indexHit{Content: doc.ContentString(), Distance: 1}
		if i < len(distances) {
			hit.Distance = float64(distances[i])
		}
		if i < len(metas) && metas[i] != nil {
			if source, ok := metas[i].GetString("source"); ok {
				hit.Source = source
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (c *chromaIndex) Upsert(ctx context.Context, docs []indexDoc) error {
	if len(docs) == 0 {
		return nil
	}
	coll, err := c.collection(ctx, true)
	if err != nil {
		return err
	}

	ids := make([]chromago.DocumentID, len(docs))
	texts := make([]string, len(docs))
	metas := make([]chromago.DocumentMetadata, len(docs))
	vectors := make([]chromaemb.Embedding, len(docs))
	for i, d := range docs {
		ids[i] = chromago.DocumentID(d.ID)
		texts[i] = d.Content
		metas[i] = chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("source", d.Source),
			chromago.NewIntAttribute("chunk", int64(d.Chunk)),
		)
		vectors[i] = chromaemb.NewEmbeddingFromFloat32(d.Vector)
	}

	return coll.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithMetadatas(metas...),
		chromago.WithEmbeddings(vectors...),
	)
}

func (c *chromaIndex) Close() error {
	return c.client.Close()
}

// embedderFunction lets the Chroma client embed with the configured Embedder
// instead of its bundled default model.
type embedderFunction struct {
	embedder Embedder
}

func (f embedderFunction) EmbedDocuments(ctx context.Context, texts []string) ([]chromaemb.Embedding, error) {
	vectors, err := f.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]chromaemb.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = chromaemb.NewEmbeddingFromFloat32(v)
	}
	return out, nil
}

func (f embedderFunction) EmbedQuery(ctx context.Context, text string) (chromaemb.Embedding, error) {
	vectors, err := f.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyQuery
	}
	return chromaemb.NewEmbeddingFromFloat32(vectors[0]), nil
}
