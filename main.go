package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	controllerx "github.com/tanpawarit/leadflow-voice-agent/agent/agents/controller"
	specialistx "github.com/tanpawarit/leadflow-voice-agent/agent/agents/specialist"
	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	leadx "github.com/tanpawarit/leadflow-voice-agent/agent/lead"
	llmx "github.com/tanpawarit/leadflow-voice-agent/agent/llm"
	retrievalx "github.com/tanpawarit/leadflow-voice-agent/agent/retrieval"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
	configx "github.com/tanpawarit/leadflow-voice-agent/pkg/config"
	_ "github.com/tanpawarit/leadflow-voice-agent/pkg/logger/autoload"
	metricsx "github.com/tanpawarit/leadflow-voice-agent/pkg/metrics"
	openrouterx "github.com/tanpawarit/leadflow-voice-agent/pkg/openrouter"
	vapix "github.com/tanpawarit/leadflow-voice-agent/transport/vapi"
)

type AppConfig struct {
	Port            string        `split_words:"true" default:"8000"`
	CompanyName     string        `split_words:"true" required:"true"`
	City            string        `split_words:"true"`
	Language        string        `split_words:"true" default:"ka"`
	PhoneLocale     string        `split_words:"true" default:"GE"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS"`
	VapiPublicKey   string        `split_words:"true"`
	VapiAssistantID string        `envconfig:"VAPI_ASSISTANT_ID"`
	SessionBackend  string        `split_words:"true" default:"redis"`
	TurnTimeout     time.Duration `split_words:"true" default:"20s"`
	EndCallDelay    time.Duration `split_words:"true" default:"800ms"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	chromaCfg := configx.MustNew[retrievalx.ChromaConfig]("CHROMA")
	embeddingCfg := configx.MustNew[retrievalx.EmbeddingConfig]("EMBEDDING")
	dbCfg := configx.MustNew[leadx.DBConfig]("DB")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openRouterClient := openrouterx.NewClient(llmCfg.OpenRouterFor(contractx.AgentRoleComposer))
	if openRouterClient == nil {
		log.Fatal().Msg("LLM_API_KEY is required for policy embeddings")
	}
	embedder, err := retrievalx.NewOpenAIEmbedder(openRouterClient, *embeddingCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create embedder")
	}
	retriever, err := retrievalx.NewChromaRetriever(*chromaCfg, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create policy retriever")
	}
	defer retriever.Close()

	var models contractx.Registry
	if llmCfg.Enabled {
		models, err = specialistx.NewRegistry(ctx, *llmCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create model registry")
		}
	} else {
		log.Warn().Msg("LLM disabled, using keyword intents and quoted answers")
	}

	leads := newLeadStore(ctx, *dbCfg)
	sessions := newSessionStore(appCfg.SessionBackend)

	ctrl, err := controllerx.New(sessions, retriever, leads, models, metricsx.NewRecorder(nil), controllerx.Config{
		Company:     appCfg.CompanyName,
		Language:    appCfg.Language,
		PhoneLocale: appCfg.PhoneLocale,
		TopK:        chromaCfg.TopK,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create controller")
	}

	handler, err := vapix.NewHandler(ctrl, vapix.Config{
		PublicKey:      appCfg.VapiPublicKey,
		AssistantID:    appCfg.VapiAssistantID,
		AllowedOrigins: appCfg.CORSOrigins,
		TurnTimeout:    appCfg.TurnTimeout,
		EndCallDelay:   appCfg.EndCallDelay,
	}, promhttp.Handler())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create transport handler")
	}

	srv := &http.Server{
		Addr:              ":" + strings.TrimPrefix(appCfg.Port, ":"),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("company", appCfg.CompanyName).
			Str("city", appCfg.City).
			Str("language", appCfg.Language).
			Msg("leadflow voice agent listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

func newLeadStore(ctx context.Context, cfg leadx.DBConfig) contractx.LeadStore {
	if strings.TrimSpace(cfg.DSN) == "" {
		log.Warn().Msg("DB_DSN not set, leads are kept in memory")
		return leadx.NewMemoryStore(cfg.UniquePhone)
	}

	db, err := leadx.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open lead database")
	}
	store := leadx.NewBunStore(db, cfg)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure lead schema")
	}
	return store
}

func newSessionStore(backend string) statex.Store {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "memory":
		log.Warn().Msg("session backend is memory, sessions do not survive restarts")
		return statex.NewMemoryStore()
	case "redis", "":
		redisCfg := configx.MustNew[statex.RedisConfig]("REDIS")
		store, err := statex.NewRedisStore(statex.NewRedisClient(*redisCfg), statex.WithTTL(redisCfg.TTL))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create redis session store")
		}
		return store
	default:
		log.Fatal().Str("backend", backend).Msg("unknown session backend")
		return nil
	}
}
