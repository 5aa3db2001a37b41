package vapi

import (
	"strings"

	"github.com/google/uuid"

	toolx "github.com/tanpawarit/leadflow-voice-agent/agent/tool"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CallRef struct {
	ID string `json:"id"`
}

// ChatRequest is the OpenAI-compatible body the voice platform posts for
// every caller turn. Only the fields the adapter reads are declared.
type ChatRequest struct {
	Model          string        `json:"model,omitempty"`
	Messages       []ChatMessage `json:"messages"`
	Call           *CallRef      `json:"call,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	CallID         string        `json:"call_id,omitempty"`
	SessionID      string        `json:"session_id,omitempty"`
}

const defaultUtterance = "Hello"

// LatestUserText returns the newest non-empty user message.
func (r ChatRequest) LatestUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		m := r.Messages[i]
		if m.Role != "user" {
			continue
		}
		if text := strings.TrimSpace(m.Content); text != "" {
			return text
		}
	}
	return defaultUtterance
}

// ThreadID identifies the call. Without any id a fresh one is minted, which
// makes the turn stateless.
func (r ChatRequest) ThreadID() string {
	candidates := []string{r.ConversationID, r.CallID, r.SessionID}
	if r.Call != nil {
		candidates = append([]string{r.Call.ID}, candidates...)
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return uuid.NewString()
}

type chunkDelta struct {
	Role      string             `json:"role,omitempty"`
	Content   string             `json:"content,omitempty"`
	ToolCalls []toolx.Invocation `json:"tool_calls,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

// ServerMessage is a voice platform webhook envelope.
type ServerMessage struct {
	Message struct {
		Type   string   `json:"type"`
		Status string   `json:"status,omitempty"`
		Call   *CallRef `json:"call,omitempty"`
	} `json:"message"`
}
