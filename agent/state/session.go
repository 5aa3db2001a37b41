package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
)

// ConversationState is the controller's position in the call flow.
type ConversationState string

const (
	StateGreeting        ConversationState = "greeting"
	StateAnswering       ConversationState = "answering"
	StateQualifying      ConversationState = "qualifying"
	StateCollectingName  ConversationState = "collecting_name"
	StateCollectingPhone ConversationState = "collecting_phone"
	StateConfirmingLead  ConversationState = "confirming_lead"
	StateClosing         ConversationState = "closing"
)

// progressRank orders the non-answering states. Answering has no rank: it is
// re-entrant from anywhere and does not move Progress.
var progressRank = map[ConversationState]int{
	StateGreeting:        0,
	StateQualifying:      1,
	StateCollectingName:  2,
	StateCollectingPhone: 3,
	StateConfirmingLead:  4,
	StateClosing:         5,
}

func (s ConversationState) Valid() bool {
	if s == StateAnswering {
		return true
	}
	_, ok := progressRank[s]
	return ok
}

func (s ConversationState) IsTerminal() bool {
	return s == StateClosing
}

// IsCollecting reports whether the state is part of lead capture.
func (s ConversationState) IsCollecting() bool {
	switch s {
	case StateCollectingName, StateCollectingPhone, StateConfirmingLead:
		return true
	default:
		return false
	}
}

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Utterance is immutable once appended to the transcript.
type Utterance struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// CallSession is the per-call source of truth for the flow controller.
// It is created on the first turn and discarded once the call has ended.
type CallSession struct {
	CallID   string `json:"call_id"`
	Language string `json:"language"`

	State       ConversationState `json:"state"`
	Progress    ConversationState `json:"progress"`
	ResumeState ConversationState `json:"resume_state,omitempty"`

	Transcript []Utterance `json:"transcript,omitempty"`

	// Lead capture slots
	Name         string `json:"name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Qualified    bool   `json:"qualified,omitempty"`
	LeadID       string `json:"lead_id,omitempty"`
	LeadAttempts int    `json:"lead_attempts,omitempty"`

	Declines     int  `json:"declines,omitempty"`
	PhoneRetries int  `json:"phone_retries,omitempty"`
	EndCallSent  bool `json:"end_call_sent,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNilSession        = errors.New("nil call session")
	ErrInvalidTransition = contractx.ErrInvalidTransition
	ErrUnknownState      = errors.New("unknown conversation state")
)

func NewCallSession(callID, language string, now time.Time) *CallSession {
	return &CallSession{
		CallID:    callID,
		Language:  language,
		State:     StateGreeting,
		Progress:  StateGreeting,
		StartedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *CallSession) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Record appends a turn to the transcript. Empty text is ignored.
func (s *CallSession) Record(speaker Speaker, text string, now time.Time) {
	text = strings.TrimSpace(text)
	if s == nil || text == "" {
		return
	}
	s.Transcript = append(s.Transcript, Utterance{Speaker: speaker, Text: text, At: now.UTC()})
}

// CanTransition applies the flow rules: forward-only progress, Answering
// re-entrant from any live state, and ConfirmingLead allowed back to either
// collection state when the caller corrects a field.
func (s *CallSession) CanTransition(next ConversationState) error {
	if s == nil {
		return ErrNilSession
	}
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownState, next)
	}
	if s.State.IsTerminal() {
		if next == StateClosing {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s after close", ErrInvalidTransition, s.State, next)
	}
	if next == StateAnswering {
		return nil
	}

	progress := s.Progress
	if progress == "" {
		progress = StateGreeting
	}
	if progressRank[next] >= progressRank[progress] {
		return nil
	}
	if progress == StateConfirmingLead && (next == StateCollectingName || next == StateCollectingPhone) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s (progress=%s)", ErrInvalidTransition, s.State, next, progress)
}

func (s *CallSession) Transition(next ConversationState, now time.Time) error {
	if err := s.CanTransition(next); err != nil {
		return err
	}
	s.State = next
	if next != StateAnswering {
		s.Progress = next
		s.ResumeState = ""
	}
	s.Touch(now)
	return nil
}

// EnterAnswering moves into Answering and remembers where lead capture stopped.
func (s *CallSession) EnterAnswering(now time.Time) error {
	if s == nil {
		return ErrNilSession
	}
	if s.State.IsCollecting() {
		s.ResumeState = s.State
	}
	return s.Transition(StateAnswering, now)
}

// LeadReady reports whether all lead fields are present and no lead exists yet.
func (s *CallSession) LeadReady() bool {
	return s != nil &&
		s.State == StateConfirmingLead &&
		strings.TrimSpace(s.Name) != "" &&
		strings.TrimSpace(s.Phone) != "" &&
		s.LeadID == ""
}

func (s *CallSession) LastUtterance(speaker Speaker) (Utterance, bool) {
	if s == nil {
		return Utterance{}, false
	}
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Speaker == speaker {
			return s.Transcript[i], true
		}
	}
	return Utterance{}, false
}

func (s *CallSession) Validate() error {
	if s == nil {
		return ErrNilSession
	}
	if strings.TrimSpace(s.CallID) == "" {
		return ErrInvalidSession
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: state=%q", ErrUnknownState, s.State)
	}
	if s.Progress != "" && (!s.Progress.Valid() || s.Progress == StateAnswering) {
		return fmt.Errorf("%w: progress=%q", ErrUnknownState, s.Progress)
	}
	if s.ResumeState != "" && !s.ResumeState.IsCollecting() {
		return fmt.Errorf("resume state %q is not a collection state", s.ResumeState)
	}
	if s.State == StateConfirmingLead && (strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Phone) == "") {
		return fmt.Errorf("confirming lead requires name and phone")
	}
	return nil
}
