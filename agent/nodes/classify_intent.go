package flownode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	normalizerx "github.com/tanpawarit/leadflow-voice-agent/agent/normalizer"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

// ClassifyIntent asks the model classifier first and falls back to keyword
// cues when it is absent or fails. During lead capture a "no" that carries
// the requested detail counts as provided info.
func ClassifyIntent(
	ctx context.Context,
	in *TurnState,
	classifier contractx.IntentClassifier,
	locale normalizerx.PhoneLocale,
) (*TurnState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: turn session is nil", contractx.ErrValidation)
	}

	req := contractx.ClassifyRequest{
		Utterance: in.Text,
		State:     string(captureState(in.Session)),
		Language:  in.Session.Language,
	}

	in.Intent = classify(ctx, req, classifier)
	if in.Intent == contractx.IntentDecline && carriesLeadDetail(in, locale) {
		log.Ctx(ctx).Debug().Msg("decline carries lead details, treating as provided info")
		in.Intent = contractx.IntentProvideInfo
	}
	return in, nil
}

func classify(ctx context.Context, req contractx.ClassifyRequest, classifier contractx.IntentClassifier) contractx.Intent {
	if classifier != nil {
		resp, err := classifier.Classify(ctx, req)
		if err == nil && resp.Intent.Valid() {
			return resp.Intent
		}
		log.Ctx(ctx).Warn().Err(err).Str("intent", string(resp.Intent)).Msg("intent classifier failed, using keyword cues")
	}

	resp, _ := KeywordClassifier{}.Classify(ctx, req)
	return resp.Intent
}

// captureState is the state the caller is answering: the interrupted capture
// step while answering a question, otherwise the session state.
func captureState(st *statex.CallSession) statex.ConversationState {
	if st.State == statex.StateAnswering && st.ResumeState != "" {
		return st.ResumeState
	}
	return st.State
}

// carriesLeadDetail reports whether the utterance holds the field the
// current capture step asks for.
func carriesLeadDetail(in *TurnState, locale normalizerx.PhoneLocale) bool {
	state := captureState(in.Session)
	if !state.IsCollecting() {
		return false
	}

	_, rest, hasPhone := normalizerx.ExtractPhoneNumber(in.Text, locale)
	if hasPhone {
		return true
	}
	if state == statex.StateCollectingPhone {
		return false
	}
	name, cued := ExtractName(rest)
	return cued && name != ""
}

// KeywordClassifier maps an utterance to an intent from Georgian and English
// cue lists. Phrases match whole normalized words; stems match word prefixes.
type KeywordClassifier struct{}

var _ contractx.IntentClassifier = KeywordClassifier{}

type cueSet struct {
	phrases []string
	stems   []string
}

var (
	goodbyeCues = cueSet{
		phrases: []string{"bye", "goodbye", "see you", "ნახვამდის", "კარგად ბრძანდებოდეთ", "დროებით"},
	}
	declineCues = cueSet{
		phrases: []string{"no", "nope", "not interested", "dont want", "no thanks", "არა", "არ მინდა", "არ მსურს", "არ მაინტერესებს", "არ არის საჭირო",
			"wrong", "incorrect", "not correct", "არასწორია", "არასწორი"},
	}
	questionCues = cueSet{
		phrases: []string{"what", "how", "when", "where", "which", "why", "who", "do you", "is there", "can i", "რა", "როდის", "სად", "როგორ", "რამდენი", "ვინ", "რატომ", "რომელი", "ხომ"},
		stems:   []string{"price", "cost", "hour", "deliver", "ფას", "ღირ", "მიწოდებ", "საათ", "გრაფიკ"},
	}
	buyCues = cueSet{
		phrases: []string{"buy", "purchase", "order", "interested", "sign up", "book", "მინდა", "მსურს"},
		stems:   []string{"ყიდვ", "ვყიდულობ", "შევიძენ", "შეძენ", "შეკვეთ", "დაინტერეს"},
	}
	affirmCues = cueSet{
		phrases: []string{"yes", "yeah", "yep", "sure", "ok", "okay", "correct", "right", "კი", "დიახ", "ჰო", "სწორია", "სწორი", "კარგი", "თანახმა", "ვეთანხმები"},
	}
)

func (KeywordClassifier) Classify(_ context.Context, req contractx.ClassifyRequest) (contractx.ClassifyResponse, error) {
	norm := normalizerx.NormalizeForMatch(req.Utterance)
	padded := " " + norm + " "
	tokens := strings.Fields(norm)

	match := func(c cueSet) bool {
		for _, p := range c.phrases {
			if strings.Contains(padded, " "+p+" ") {
				return true
			}
		}
		for _, s := range c.stems {
			for _, tok := range tokens {
				if strings.HasPrefix(tok, s) {
					return true
				}
			}
		}
		return false
	}

	collecting := statex.ConversationState(req.State) == statex.StateCollectingName ||
		statex.ConversationState(req.State) == statex.StateCollectingPhone

	intent := contractx.IntentOther
	switch {
	case norm == "":
	case match(goodbyeCues):
		intent = contractx.IntentGoodbye
	case match(declineCues):
		intent = contractx.IntentDecline
	case collecting && !strings.Contains(req.Utterance, "?"):
		intent = contractx.IntentProvideInfo
	case strings.Contains(req.Utterance, "?") || match(questionCues):
		intent = contractx.IntentQuestion
	case match(buyCues):
		intent = contractx.IntentBuy
	case match(affirmCues):
		intent = contractx.IntentAffirm
	case len(normalizerx.DigitRuns(normalizerx.SpokenDigitsToNumerals(req.Utterance))) > 0:
		intent = contractx.IntentProvideInfo
	}

	return contractx.ClassifyResponse{Intent: intent, Confidence: 0.5}, nil
}
