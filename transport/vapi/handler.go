package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	toolx "github.com/tanpawarit/leadflow-voice-agent/agent/tool"
)

const (
	chunkObject      = "chat.completion.chunk"
	defaultModelName = "leadflow-v1"
	maxBodyBytes     = 1 << 20

	finishStop      = "stop"
	finishToolCalls = "tool_calls"

	// apologyReply is spoken when a turn fails so the caller is never left in silence.
	apologyReply = "ბოდიში, ტექნიკური პრობლემა მაქვს. სცადეთ თავიდან."
)

// TurnHandler is the conversation side the adapter drives.
type TurnHandler interface {
	HandleTurn(ctx context.Context, in contractx.TurnInput) (contractx.TurnResult, error)
	EndSession(ctx context.Context, callID string) error
}

type Config struct {
	PublicKey      string
	AssistantID    string
	AllowedOrigins []string
	ModelName      string
	TurnTimeout    time.Duration
	EndCallDelay   time.Duration
}

type Handler struct {
	turns   TurnHandler
	cfg     Config
	metrics http.Handler
	now     func() time.Time
}

// NewHandler builds the adapter. metrics may be nil, then /metrics is not mounted.
func NewHandler(turns TurnHandler, cfg Config, metrics http.Handler) (*Handler, error) {
	if turns == nil {
		return nil, errors.New("turn handler is required")
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		cfg.ModelName = defaultModelName
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 30 * time.Second
	}
	if cfg.EndCallDelay < 0 {
		cfg.EndCallDelay = 0
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}
	return &Handler{turns: turns, cfg: cfg, metrics: metrics, now: time.Now}, nil
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(CORS(h.cfg.AllowedOrigins))

	r.Get("/health", h.health)
	r.Get("/vapi-config", h.vapiConfig)
	r.Post("/chat/completions", h.chatCompletions)
	r.Post("/webhook", h.webhook)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.Logger.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) vapiConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"publicKey":   h.cfg.PublicKey,
		"assistantId": h.cfg.AssistantID,
		"tools":       toolx.Definitions(),
	})
}

func (h *Handler) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	sw, err := newSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	callID := req.ThreadID()
	text := req.LatestUserText()
	logger := log.Ctx(r.Context()).With().Str("call_id", callID).Logger()
	ctx := logger.WithContext(r.Context())

	stream := &chunkStream{
		sw:      sw,
		id:      fmt.Sprintf("chatcmpl-%d", h.now().Unix()),
		created: h.now().Unix(),
		model:   h.cfg.ModelName,
	}

	// role ack goes out before the turn runs
	if err := stream.send(chunkDelta{Role: "assistant"}, nil); err != nil {
		logger.Warn().Err(err).Msg("client gone before role ack")
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, h.cfg.TurnTimeout)
	result, err := h.turns.HandleTurn(turnCtx, contractx.TurnInput{CallID: callID, Text: text})
	cancel()

	if err != nil {
		logger.Error().Err(err).Msg("turn failed")
		_ = stream.send(chunkDelta{Content: apologyReply}, nil)
	} else {
		content := result.SpokenReply
		if strings.TrimSpace(content) == "" {
			content = result.Reply
		}
		if err := stream.send(chunkDelta{Content: content}, nil); err != nil {
			logger.Warn().Err(err).Msg("client gone before reply")
			return
		}
		if result.EndCall {
			if !sleepCtx(r.Context(), h.cfg.EndCallDelay) {
				return
			}
			invocation := toolx.EndCallInvocation(fmt.Sprintf("call_%d", h.now().UnixMilli()))
			finish := finishToolCalls
			_ = stream.send(chunkDelta{ToolCalls: []toolx.Invocation{invocation}}, &finish)
			logger.Info().Msg("end call sent")
		}
	}

	finish := finishStop
	_ = stream.send(chunkDelta{}, &finish)
	_ = sw.Done()
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	var msg ServerMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	if !callEnded(msg) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	callID := ""
	if msg.Message.Call != nil {
		callID = strings.TrimSpace(msg.Message.Call.ID)
	}
	if callID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "call id is required"})
		return
	}

	logger := log.Ctx(r.Context())
	if err := h.turns.EndSession(r.Context(), callID); err != nil {
		logger.Error().Err(err).Str("call_id", callID).Msg("end session failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "end session failed"})
		return
	}
	logger.Info().Str("call_id", callID).Msg("session ended")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func callEnded(msg ServerMessage) bool {
	switch msg.Message.Type {
	case "end-of-call-report":
		return true
	case "status-update":
		return msg.Message.Status == "ended"
	default:
		return false
	}
}

type chunkStream struct {
	sw      *sseWriter
	id      string
	created int64
	model   string
}

func (s *chunkStream) send(delta chunkDelta, finish *string) error {
	return s.sw.Send(chatChunk{
		ID:      s.id,
		Object:  chunkObject,
		Created: s.created,
		Model:   s.model,
		Choices: []chunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
