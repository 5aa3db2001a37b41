package flownode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	normalizerx "github.com/tanpawarit/leadflow-voice-agent/agent/normalizer"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidCall    = errors.New("call id is empty")
)

type GraphInput struct {
	CallID string
	Text   string
}

type GraphOutput struct {
	Reply       string
	SpokenReply string
	EndCall     bool
	State       statex.ConversationState
	Intent      contractx.Intent
}

// TurnState is threaded through every node of one turn.
type TurnState struct {
	CallID string
	Text   string
	Now    time.Time

	Session *statex.CallSession
	Intent  contractx.Intent

	Reply   string
	EndCall bool
}

// FlowConfig carries the per-deployment settings the handlers need.
type FlowConfig struct {
	Company  string
	Language string
	Locale   normalizerx.PhoneLocale
	TopK     int
	Replies  Replies
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*TurnState, error) {
	callID := strings.TrimSpace(in.CallID)
	if callID == "" {
		return nil, ErrInvalidCall
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &TurnState{
		CallID: callID,
		Text:   text,
		Now:    nowFn().UTC(),
	}, nil
}
