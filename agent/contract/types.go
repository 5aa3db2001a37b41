package contract

import "time"

type AgentRole string

const (
	AgentRoleClassifier AgentRole = "classifier"
	AgentRoleComposer   AgentRole = "composer"
)

type Intent string

const (
	IntentQuestion    Intent = "question"
	IntentBuy         Intent = "buy"
	IntentAffirm      Intent = "affirm"
	IntentDecline     Intent = "decline"
	IntentGoodbye     Intent = "goodbye"
	IntentProvideInfo Intent = "provide_info"
	IntentOther       Intent = "other"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentQuestion, IntentBuy, IntentAffirm, IntentDecline, IntentGoodbye, IntentProvideInfo, IntentOther:
		return true
	default:
		return false
	}
}

type ClassifyRequest struct {
	Utterance string `json:"utterance"`
	State     string `json:"state"`
	Language  string `json:"language"`
}

type ClassifyResponse struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// PolicyChunk is a retrieved passage. It lives for one turn only.
type PolicyChunk struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

type ComposeRequest struct {
	Question string        `json:"question"`
	Chunks   []PolicyChunk `json:"chunks"`
	Language string        `json:"language"`
	Company  string        `json:"company"`
}

type ComposeResponse struct {
	Message string `json:"message"`
}

type LeadID string

// Lead is created at most once per call, after the caller confirmed both fields.
type Lead struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Qualified bool      `json:"qualified"`
	CreatedAt time.Time `json:"created_at"`
}

type TurnInput struct {
	CallID string
	Text   string
}

type TurnResult struct {
	Reply       string
	SpokenReply string
	EndCall     bool
	State       string
}
