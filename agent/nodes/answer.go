package flownode

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	normalizerx "github.com/tanpawarit/leadflow-voice-agent/agent/normalizer"
)

const (
	RetrievalHit   = "hit"
	RetrievalEmpty = "empty"
	RetrievalError = "error"

	maxQuoteRunes = 280
)

// Answer replies to a factual question from retrieved policy text only. With
// nothing retrieved the reply is exactly the fixed no-information line.
func Answer(
	ctx context.Context,
	in *TurnState,
	cfg FlowConfig,
	retriever contractx.Retriever,
	composer contractx.Composer,
	recorder contractx.TurnRecorder,
) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	st := in.Session
	if err := st.EnterAnswering(in.Now); err != nil {
		return nil, err
	}

	reply, grounded := answerFromPolicy(ctx, in.Text, cfg, retriever, composer, recorder)
	if !grounded {
		// capture picks up again on the caller's next turn
		in.Reply = reply
		return in, nil
	}
	if resume := cfg.Replies.resumePrompt(st); resume != "" {
		reply = reply + " " + resume
	}
	in.Reply = reply
	return in, nil
}

func answerFromPolicy(
	ctx context.Context,
	question string,
	cfg FlowConfig,
	retriever contractx.Retriever,
	composer contractx.Composer,
	recorder contractx.TurnRecorder,
) (string, bool) {
	logger := log.Ctx(ctx)

	chunks, err := retriever.Retrieve(ctx, question, cfg.TopK)
	if err != nil {
		logger.Warn().Err(err).Msg("policy retrieval failed")
		recorder.ObserveRetrieval(RetrievalError)
		return cfg.Replies.NoInformation, false
	}
	if len(chunks) == 0 {
		recorder.ObserveRetrieval(RetrievalEmpty)
		return cfg.Replies.NoInformation, false
	}
	recorder.ObserveRetrieval(RetrievalHit)

	if composer == nil {
		return quoteChunk(chunks[0]), true
	}

	resp, err := composer.Compose(ctx, contractx.ComposeRequest{
		Question: question,
		Chunks:   chunks,
		Language: cfg.Language,
		Company:  cfg.Company,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("answer composer failed, quoting policy")
		return quoteChunk(chunks[0]), true
	}

	msg := strings.TrimSpace(resp.Message)
	if msg == "" {
		return quoteChunk(chunks[0]), true
	}
	if !NumbersGrounded(msg, chunks) {
		logger.Warn().Str("reply", msg).Msg("composed reply has numbers missing from policy, quoting policy")
		return quoteChunk(chunks[0]), true
	}
	return msg, true
}

// NumbersGrounded reports whether every digit run in reply also occurs in
// one of the chunks.
func NumbersGrounded(reply string, chunks []contractx.PolicyChunk) bool {
	runs := normalizerx.DigitRuns(reply)
	if len(runs) == 0 {
		return true
	}

	known := make(map[string]struct{})
	for _, c := range chunks {
		for _, r := range normalizerx.DigitRuns(c.Content) {
			known[r] = struct{}{}
		}
	}
	for _, r := range runs {
		if _, ok := known[r]; !ok {
			return false
		}
	}
	return true
}

// quoteChunk returns the opening sentences of a chunk, short enough to speak.
func quoteChunk(c contractx.PolicyChunk) string {
	text := strings.Join(strings.Fields(c.Content), " ")
	if utf8.RuneCountInString(text) <= maxQuoteRunes {
		return text
	}

	runes := []rune(text)[:maxQuoteRunes]
	for i := len(runes) - 1; i > maxQuoteRunes/3; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return string(runes[:i+1])
		}
	}
	return strings.TrimSpace(string(runes)) + "…"
}
