package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	llmx "github.com/tanpawarit/leadflow-voice-agent/agent/llm"
	retrievalx "github.com/tanpawarit/leadflow-voice-agent/agent/retrieval"
	configx "github.com/tanpawarit/leadflow-voice-agent/pkg/config"
	logx "github.com/tanpawarit/leadflow-voice-agent/pkg/logger"
	openrouterx "github.com/tanpawarit/leadflow-voice-agent/pkg/openrouter"
)

const (
	chunkSize    = 600
	chunkOverlap = 100
)

func main() {
	file := flag.String("file", "company_policy.txt", "policy document to ingest")
	source := flag.String("source", "", "source label stored with each chunk (defaults to the file name)")

	// configx parses the command line, so the flags above must be declared first.
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	chromaCfg := configx.MustNew[retrievalx.ChromaConfig]("CHROMA")
	embeddingCfg := configx.MustNew[retrievalx.EmbeddingConfig]("EMBEDDING")

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("failed to read policy document")
	}
	label := strings.TrimSpace(*source)
	if label == "" {
		label = filepath.Base(*file)
	}

	client := openrouterx.NewClient(llmCfg.OpenRouterFor(contractx.AgentRoleComposer))
	if client == nil {
		log.Fatal().Msg("LLM_API_KEY is required for embeddings")
	}
	embedder, err := retrievalx.NewOpenAIEmbedder(client, *embeddingCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create embedder")
	}
	store, err := retrievalx.NewChromaRetriever(*chromaCfg, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create chroma client")
	}
	defer store.Close()

	ctx := context.Background()
	chunks, err := retrievalx.SplitText(ctx, string(raw), chunkSize, chunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to split policy document")
	}
	if len(chunks) == 0 {
		log.Fatal().Str("file", *file).Msg("policy document is empty")
	}

	n, err := store.Ingest(ctx, label, chunks)
	if err != nil {
		log.Fatal().Err(err).Msg("ingest failed")
	}
	log.Info().
		Str("collection", chromaCfg.Collection).
		Str("source", label).
		Int("chunks", n).
		Msg("policy document ingested")
}
