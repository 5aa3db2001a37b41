package flownode

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	normalizerx "github.com/tanpawarit/leadflow-voice-agent/agent/normalizer"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

const (
	LeadSaved  = "saved"
	LeadFailed = "failed"

	// maxLeadAttempts bounds saveLead calls per call, each after a fresh confirmation.
	maxLeadAttempts = 2
	// maxPhoneReprompts is how often an unusable number is asked for again.
	maxPhoneReprompts = 1
	maxNameWords      = 4
	maxNameRunes      = 60
)

var (
	// lead-in phrases before a name, normalized
	namePrefixes = []string{
		"my name is", "my full name is", "name is", "i am", "im", "this is", "it is", "its",
		"ჩემი სახელია", "ჩემი სახელი და გვარია", "სახელი", "მე ვარ", "მე მქვია",
	}
	// words that follow a name in Georgian, "ნინო მქვია"
	nameSuffixes = []string{"მქვია", "ვარ", "გახლავართ"}
	fillerWords  = map[string]struct{}{
		"yes": {}, "yeah": {}, "sure": {}, "ok": {}, "okay": {}, "so": {}, "well": {},
		"კი": {}, "დიახ": {}, "ჰო": {}, "კარგი": {}, "კარგით": {},
		"no": {}, "nope": {}, "არა": {},
	}
	phoneWords = []string{"phone", "number", "ნომერ", "ტელეფონ"}
)

// CollectName takes the caller's name, and the phone too when both come in
// one utterance.
func CollectName(in *TurnState, cfg FlowConfig) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	st := in.Session
	r := cfg.Replies
	fromQualifying := st.Progress == statex.StateQualifying

	if err := st.Transition(statex.StateCollectingName, in.Now); err != nil {
		return nil, err
	}
	if fromQualifying {
		st.Qualified = true
	}

	phone, rest, hasPhone := normalizerx.ExtractPhoneNumber(in.Text, cfg.Locale)
	name, cued := ExtractName(rest)
	if fromQualifying && !cued && !hasPhone {
		// a bare "yes" to the qualifying question is not a name
		name = ""
	}

	if name == "" {
		if hasPhone {
			st.Phone = phone
		}
		if fromQualifying && !hasPhone {
			in.Reply = r.AskNameAndPhone
		} else {
			in.Reply = r.AskName
		}
		return in, nil
	}

	st.Name = name
	if hasPhone {
		st.Phone = phone
	}
	if st.Phone != "" {
		return toConfirming(in, cfg)
	}

	if err := st.Transition(statex.StateCollectingPhone, in.Now); err != nil {
		return nil, err
	}
	in.Reply = r.askPhone(st.Name)
	return in, nil
}

// CollectPhone normalizes the caller's number. An unusable number is asked for
// once more; after that the call is wrapped up.
func CollectPhone(ctx context.Context, in *TurnState, cfg FlowConfig) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	st := in.Session
	r := cfg.Replies
	resuming := st.State == statex.StateAnswering
	if err := st.Transition(statex.StateCollectingPhone, in.Now); err != nil {
		return nil, err
	}

	phone, _, ok := normalizerx.ExtractPhoneNumber(in.Text, cfg.Locale)
	if !ok && resuming {
		// the last reply was an answer, not the phone question
		in.Reply = r.askPhone(st.Name)
		return in, nil
	}
	if !ok {
		_, err := normalizerx.NormalizePhoneNumber(in.Text, cfg.Locale)
		log.Ctx(ctx).Info().Err(err).Int("retries", st.PhoneRetries).Msg("caller phone rejected")

		st.PhoneRetries++
		if st.PhoneRetries > maxPhoneReprompts {
			if err := st.Transition(statex.StateClosing, in.Now); err != nil {
				return nil, err
			}
			in.Reply = r.withClosing(r.PhoneNotHeard)
			return in, nil
		}
		in.Reply = r.RepeatPhone
		return in, nil
	}

	st.Phone = phone
	st.PhoneRetries = 0
	if strings.TrimSpace(st.Name) == "" {
		return nil, fmt.Errorf("%w: phone collected before name", contractx.ErrValidation)
	}
	return toConfirming(in, cfg)
}

func toConfirming(in *TurnState, cfg FlowConfig) (*TurnState, error) {
	st := in.Session
	if err := st.Transition(statex.StateConfirmingLead, in.Now); err != nil {
		return nil, err
	}
	in.Reply = cfg.Replies.confirmLead(st.Name, st.Phone)
	return in, nil
}

// LeadSink is where a confirmed lead goes. Sessions and Ledger may be nil.
type LeadSink struct {
	Leads    contractx.LeadStore
	Sessions statex.Store
	Ledger   *LeadLedger
	Recorder contractx.TurnRecorder
}

// ConfirmLead handles the read-back answer. A confirmation saves the lead; a
// correction goes back to the field it names.
func ConfirmLead(
	ctx context.Context,
	in *TurnState,
	cfg FlowConfig,
	sink LeadSink,
) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	st := in.Session
	r := cfg.Replies

	switch in.Intent {
	case contractx.IntentAffirm, contractx.IntentBuy:
		if st.State == statex.StateAnswering && lastAgentReply(st) == r.NoInformation {
			// a yes to "anything else?" is not a confirmation, read back again
			return toConfirming(in, cfg)
		}
		return saveLead(ctx, in, cfg, sink)
	}

	phone, rest, hasPhone := normalizerx.ExtractPhoneNumber(in.Text, cfg.Locale)
	if hasPhone {
		st.Phone = phone
	}
	if name, cued := ExtractName(rest); cued && name != "" {
		st.Name = name
		return toConfirming(in, cfg)
	}
	if hasPhone {
		return toConfirming(in, cfg)
	}

	if in.Intent == contractx.IntentDecline {
		if mentionsPhone(in.Text) {
			if err := st.Transition(statex.StateCollectingPhone, in.Now); err != nil {
				return nil, err
			}
			st.Phone = ""
			in.Reply = r.askPhone(st.Name)
			return in, nil
		}
		if err := st.Transition(statex.StateCollectingName, in.Now); err != nil {
			return nil, err
		}
		st.Name = ""
		in.Reply = r.AskName
		return in, nil
	}

	return toConfirming(in, cfg)
}

func saveLead(
	ctx context.Context,
	in *TurnState,
	cfg FlowConfig,
	sink LeadSink,
) (*TurnState, error) {
	st := in.Session
	r := cfg.Replies
	logger := log.Ctx(ctx)
	recorder := sink.Recorder

	if st.LeadID == "" {
		if id, ok := sink.Ledger.Lookup(st.CallID); ok {
			logger.Warn().Str("lead_id", id).Msg("session lost its lead id, reusing saved lead")
			st.LeadID = id
		}
	}
	if st.LeadID != "" {
		if err := st.Transition(statex.StateClosing, in.Now); err != nil {
			return nil, err
		}
		in.Reply = r.withClosing(r.LeadSaved)
		return in, nil
	}

	if err := st.Transition(statex.StateConfirmingLead, in.Now); err != nil {
		return nil, err
	}
	if !st.LeadReady() {
		return nil, fmt.Errorf("%w: lead is missing name or phone", contractx.ErrValidation)
	}

	st.LeadAttempts++
	id, err := sink.Leads.SaveLead(ctx, contractx.Lead{
		Name:      st.Name,
		Phone:     st.Phone,
		Qualified: st.Qualified,
		CreatedAt: in.Now,
	})
	if err != nil {
		recorder.ObserveLead(LeadFailed)
		logger.Error().Err(err).Int("attempt", st.LeadAttempts).Msg("save lead failed")

		if st.LeadAttempts >= maxLeadAttempts {
			if err := st.Transition(statex.StateClosing, in.Now); err != nil {
				return nil, err
			}
			in.Reply = r.withClosing(r.ManagerWillCall)
			return in, nil
		}

		if err := st.Transition(statex.StateCollectingName, in.Now); err != nil {
			return nil, err
		}
		st.Name, st.Phone = "", ""
		in.Reply = r.SaveFailedRetry
		return in, nil
	}

	recorder.ObserveLead(LeadSaved)
	logger.Info().Str("lead_id", string(id)).Msg("lead saved")

	st.LeadID = string(id)
	sink.Ledger.Remember(st.CallID, st.LeadID, in.Now)
	if err := st.Transition(statex.StateClosing, in.Now); err != nil {
		return nil, err
	}
	// checkpoint so the lead id survives a failed end-of-turn write
	if sink.Sessions != nil {
		st.Touch(in.Now)
		if err := sink.Sessions.Save(ctx, st); err != nil {
			logger.Warn().Err(err).Str("lead_id", st.LeadID).Msg("session checkpoint after lead save failed")
		}
	}
	in.Reply = r.withClosing(r.LeadSaved)
	return in, nil
}

// ExtractName pulls a person's name out of an utterance. cued reports whether
// the caller introduced it explicitly ("my name is ...").
func ExtractName(text string) (name string, cued bool) {
	words := strings.Fields(stripPunct(text))
	if len(words) == 0 {
		return "", false
	}

	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(w)
	}

	for len(lower) > 0 {
		if _, ok := fillerWords[lower[0]]; !ok {
			break
		}
		words, lower = words[1:], lower[1:]
	}

	for _, p := range namePrefixes {
		pw := strings.Fields(p)
		if len(pw) <= len(lower) && equalWords(lower[:len(pw)], pw) {
			words, lower = words[len(pw):], lower[len(pw):]
			cued = true
			break
		}
	}
	for _, s := range nameSuffixes {
		if n := len(lower); n > 1 && lower[n-1] == s {
			words, lower = words[:n-1], lower[:n-1]
			cued = true
			break
		}
	}

	kept := words[:0:0]
	for _, w := range words {
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 || len(kept) > maxNameWords {
		return "", cued
	}

	name = strings.Join(kept, " ")
	if n := utf8.RuneCountInString(name); n < 2 || n > maxNameRunes {
		return "", cued
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' {
			return "", cued
		}
	}
	return name, cued
}

func stripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-':
			return r
		case '\'', '’':
			return -1
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
}

func equalWords(a, b []string) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lastAgentReply(st *statex.CallSession) string {
	u, ok := st.LastUtterance(statex.SpeakerAgent)
	if !ok {
		return ""
	}
	return u.Text
}

func mentionsPhone(text string) bool {
	norm := normalizerx.NormalizeForMatch(text)
	for _, w := range phoneWords {
		if strings.Contains(norm, w) {
			return true
		}
	}
	return false
}
