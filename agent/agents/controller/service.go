package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	nodex "github.com/tanpawarit/leadflow-voice-agent/agent/nodes"
	normalizerx "github.com/tanpawarit/leadflow-voice-agent/agent/normalizer"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidCall    = nodex.ErrInvalidCall
)

// savedLeadTTL bounds how long a call's saved lead id is remembered in process.
const savedLeadTTL = 2 * time.Hour

type Config struct {
	Company     string
	Language    string
	PhoneLocale string
	TopK        int
}

// Controller runs one conversation turn at a time per call through the
// compiled turn graph.
type Controller struct {
	store      statex.Store
	retriever  contractx.Retriever
	leads      contractx.LeadStore
	classifier contractx.IntentClassifier
	composer   contractx.Composer
	recorder   contractx.TurnRecorder

	flow        nodex.FlowConfig
	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
	calls       *callLocks
	ledger      *nodex.LeadLedger

	now func() time.Time
}

// New builds a controller. models may be nil, in which case intents come from
// keyword cues and answers quote the best policy passage.
func New(
	store statex.Store,
	retriever contractx.Retriever,
	leads contractx.LeadStore,
	models contractx.Registry,
	recorder contractx.TurnRecorder,
	cfg Config,
) (*Controller, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if retriever == nil {
		return nil, errors.New("policy retriever is required")
	}
	if leads == nil {
		return nil, errors.New("lead store is required")
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	company := strings.TrimSpace(cfg.Company)
	if company == "" {
		return nil, errors.New("company name is required")
	}
	language := strings.TrimSpace(cfg.Language)
	if !normalizerx.SupportedLanguage(language) {
		language = normalizerx.LanguageGeorgian
	}
	locale, ok := normalizerx.LocaleFor(cfg.PhoneLocale)
	if !ok {
		return nil, errors.New("unsupported phone locale " + cfg.PhoneLocale)
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}

	c := &Controller{
		store:     store,
		retriever: retriever,
		leads:     leads,
		recorder:  recorder,
		flow: nodex.FlowConfig{
			Company:  company,
			Language: language,
			Locale:   locale,
			TopK:     topK,
			Replies:  nodex.RepliesFor(language, company),
		},
		calls:  newCallLocks(),
		ledger: nodex.NewLeadLedger(savedLeadTTL),
		now:    time.Now,
	}
	if models != nil {
		c.classifier = models.Classifier()
		c.composer = models.Composer()
	}

	graphRunner, err := c.compileHandleTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	c.graphRunner = graphRunner

	return c, nil
}

// HandleTurn processes one caller utterance and returns the agent's reply.
// Turns of the same call are serialized.
func (c *Controller) HandleTurn(ctx context.Context, in contractx.TurnInput) (contractx.TurnResult, error) {
	callID := strings.TrimSpace(in.CallID)
	logger := log.Ctx(ctx).With().Str("call_id", callID).Logger()
	ctx = logger.WithContext(ctx)

	unlock := c.calls.lock(callID)
	defer unlock()

	start := c.now()
	out, err := c.graphRunner.Invoke(ctx, nodex.GraphInput{
		CallID: callID,
		Text:   in.Text,
	})
	if err != nil {
		return contractx.TurnResult{}, err
	}

	c.recorder.ObserveTurn(string(out.State), string(out.Intent), c.now().Sub(start).Seconds())
	logger.Info().
		Str("state", string(out.State)).
		Str("intent", string(out.Intent)).
		Bool("end_call", out.EndCall).
		Msg("turn handled")

	return contractx.TurnResult{
		Reply:       out.Reply,
		SpokenReply: out.SpokenReply,
		EndCall:     out.EndCall,
		State:       string(out.State),
	}, nil
}

// EndSession discards the call session once the platform reports the call over.
func (c *Controller) EndSession(ctx context.Context, callID string) error {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return ErrInvalidCall
	}

	unlock := c.calls.lock(callID)
	defer unlock()

	c.ledger.Forget(callID)
	return c.store.Delete(ctx, callID)
}

// callLocks hands out one mutex per active call id.
type callLocks struct {
	mu    sync.Mutex
	locks map[string]*callLock
}

type callLock struct {
	mu   sync.Mutex
	refs int
}

func newCallLocks() *callLocks {
	return &callLocks{locks: make(map[string]*callLock)}
}

func (l *callLocks) lock(callID string) func() {
	l.mu.Lock()
	cl, ok := l.locks[callID]
	if !ok {
		cl = &callLock{}
		l.locks[callID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, callID)
		}
		l.mu.Unlock()
	}
}

type noopRecorder struct{}

func (noopRecorder) ObserveTurn(string, string, float64) {}
func (noopRecorder) ObserveRetrieval(string)             {}
func (noopRecorder) ObserveLead(string)                  {}
func (noopRecorder) ObserveEndCall()                     {}
