package flownode

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	normalizerx "github.com/tanpawarit/leadflow-voice-agent/agent/normalizer"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testFlow() FlowConfig {
	return FlowConfig{
		Company:  "ალფა",
		Language: normalizerx.LanguageGeorgian,
		Locale:   normalizerx.LocaleGeorgia,
		TopK:     3,
		Replies:  RepliesFor(normalizerx.LanguageGeorgian, "ალფა"),
	}
}

func newTurn(state statex.ConversationState, intent contractx.Intent, text string) *TurnState {
	st := statex.NewCallSession("c1", normalizerx.LanguageGeorgian, testNow)
	st.State = state
	if state != statex.StateAnswering {
		st.Progress = state
	}
	return &TurnState{CallID: "c1", Text: text, Now: testNow, Session: st, Intent: intent}
}

type countingRecorder struct {
	retrieval []string
	endCalls  int
}

func (r *countingRecorder) ObserveTurn(string, string, float64) {}
func (r *countingRecorder) ObserveRetrieval(outcome string) {
	r.retrieval = append(r.retrieval, outcome)
}
func (r *countingRecorder) ObserveLead(string) {}
func (r *countingRecorder) ObserveEndCall()    { r.endCalls++ }

func TestKeywordClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text  string
		state statex.ConversationState
		want  contractx.Intent
	}{
		{"ნახვამდის", statex.StateGreeting, contractx.IntentGoodbye},
		{"Okay, bye!", statex.StateCollectingName, contractx.IntentGoodbye},
		{"არა, არ მინდა", statex.StateQualifying, contractx.IntentDecline},
		{"No thanks", statex.StateGreeting, contractx.IntentDecline},
		{"რა ღირს მიწოდება?", statex.StateGreeting, contractx.IntentQuestion},
		{"ფასები მაინტერესებს", statex.StateGreeting, contractx.IntentQuestion},
		{"What are your hours", statex.StateGreeting, contractx.IntentQuestion},
		{"მინდა შეკვეთა", statex.StateGreeting, contractx.IntentBuy},
		{"I'd like to buy a sofa", statex.StateGreeting, contractx.IntentBuy},
		{"დიახ", statex.StateConfirmingLead, contractx.IntentAffirm},
		{"yes please", statex.StateQualifying, contractx.IntentAffirm},
		{"ნინო ბერიძე", statex.StateCollectingName, contractx.IntentProvideInfo},
		{"ფასი რა არის?", statex.StateCollectingPhone, contractx.IntentQuestion},
		{"599 12 34 56", statex.StateAnswering, contractx.IntentProvideInfo},
		{"ჰმმ", statex.StateGreeting, contractx.IntentOther},
		{"...", statex.StateGreeting, contractx.IntentOther},
	}
	for _, tt := range tests {
		got, err := KeywordClassifier{}.Classify(context.Background(), contractx.ClassifyRequest{
			Utterance: tt.text,
			State:     string(tt.state),
		})
		if err != nil {
			t.Fatalf("Classify(%q) error = %v", tt.text, err)
		}
		if got.Intent != tt.want {
			t.Fatalf("Classify(%q, %s) = %s, want %s", tt.text, tt.state, got.Intent, tt.want)
		}
	}
}

type stubClassifier struct {
	intent contractx.Intent
	err    error
}

func (s stubClassifier) Classify(context.Context, contractx.ClassifyRequest) (contractx.ClassifyResponse, error) {
	return contractx.ClassifyResponse{Intent: s.intent}, s.err
}

func TestClassifyIntentFallsBack(t *testing.T) {
	t.Parallel()

	in := newTurn(statex.StateGreeting, "", "მინდა შეკვეთა")
	out, err := ClassifyIntent(context.Background(), in, stubClassifier{intent: "complain"}, normalizerx.LocaleGeorgia)
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}
	if out.Intent != contractx.IntentBuy {
		t.Fatalf("intent = %s, want keyword fallback buy", out.Intent)
	}

	in = newTurn(statex.StateGreeting, "", "მინდა შეკვეთა")
	out, _ = ClassifyIntent(context.Background(), in, stubClassifier{err: contractx.ErrModelInvoke}, normalizerx.LocaleGeorgia)
	if out.Intent != contractx.IntentBuy {
		t.Fatalf("intent = %s after model error", out.Intent)
	}

	in = newTurn(statex.StateGreeting, "", "მინდა შეკვეთა")
	out, _ = ClassifyIntent(context.Background(), in, stubClassifier{intent: contractx.IntentQuestion}, normalizerx.LocaleGeorgia)
	if out.Intent != contractx.IntentQuestion {
		t.Fatalf("intent = %s, want model answer", out.Intent)
	}
}

func TestRouteTurn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		state  statex.ConversationState
		resume statex.ConversationState
		intent contractx.Intent
		want   string
	}{
		{"goodbye anywhere", statex.StateCollectingPhone, "", contractx.IntentGoodbye, NodeClose},
		{"closed call", statex.StateClosing, "", contractx.IntentBuy, NodeClose},
		{"question wins over buy state", statex.StateQualifying, "", contractx.IntentQuestion, NodeAnswer},
		{"greeting buy", statex.StateGreeting, "", contractx.IntentBuy, NodeQualify},
		{"greeting other", statex.StateGreeting, "", contractx.IntentOther, NodeGreet},
		{"greeting decline", statex.StateGreeting, "", contractx.IntentDecline, NodeDecline},
		{"answering affirm", statex.StateAnswering, "", contractx.IntentAffirm, NodeQualify},
		{"qualifying affirm", statex.StateQualifying, "", contractx.IntentAffirm, NodeCollectName},
		{"qualifying other", statex.StateQualifying, "", contractx.IntentOther, NodeQualify},
		{"collecting name", statex.StateCollectingName, "", contractx.IntentProvideInfo, NodeCollectName},
		{"collecting phone", statex.StateCollectingPhone, "", contractx.IntentProvideInfo, NodeCollectPhone},
		{"confirm decline", statex.StateConfirmingLead, "", contractx.IntentDecline, NodeConfirmLead},
		{"resume phone", statex.StateAnswering, statex.StateCollectingPhone, contractx.IntentProvideInfo, NodeCollectPhone},
	}
	for _, tt := range tests {
		in := newTurn(tt.state, tt.intent, "x")
		in.Session.ResumeState = tt.resume
		got, err := RouteTurn(context.Background(), in)
		if err != nil {
			t.Fatalf("%s: RouteTurn() error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: RouteTurn() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestExtractName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
		cued bool
	}{
		{"ჩემი სახელია ნინო ბერიძე", "ნინო ბერიძე", true},
		{"ნინო მქვია", "ნინო", true},
		{"კი, გიორგი", "გიორგი", false},
		{"My name is Anna-Maria Smith.", "Anna-Maria Smith", true},
		{"I'm Tom", "Tom", true},
		{"არა, ჩემი სახელია გიორგი", "გიორგი", true},
		{"599123456", "", false},
		{"ეს ძალიან გრძელი წინადადებაა რომელიც სახელი ნამდვილად არ არის", "", false},
	}
	for _, tt := range tests {
		got, cued := ExtractName(tt.text)
		if got != tt.want || cued != tt.cued {
			t.Fatalf("ExtractName(%q) = (%q, %v), want (%q, %v)", tt.text, got, cued, tt.want, tt.cued)
		}
	}
}

func TestNumbersGrounded(t *testing.T) {
	t.Parallel()

	chunks := []contractx.PolicyChunk{{Content: "მიწოდება 3 დღეში, ფასი 150 ლარი."}}
	if !NumbersGrounded("ფასი 150 ლარია, მიწოდება 3 დღე.", chunks) {
		t.Fatal("grounded numbers rejected")
	}
	if NumbersGrounded("ფასი 200 ლარია.", chunks) {
		t.Fatal("invented number accepted")
	}
	if !NumbersGrounded("დიახ, ვაწვდით.", nil) {
		t.Fatal("reply without numbers rejected")
	}
}

func TestAnswerEmptyRetrieval(t *testing.T) {
	t.Parallel()

	cfg := testFlow()
	rec := &countingRecorder{}
	in := newTurn(statex.StateGreeting, contractx.IntentQuestion, "რა ღირს?")

	out, err := Answer(context.Background(), in, cfg, retrieverFunc(func(context.Context, string, int) ([]contractx.PolicyChunk, error) {
		return nil, nil
	}), nil, rec)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if out.Reply != cfg.Replies.NoInformation {
		t.Fatalf("reply = %q", out.Reply)
	}
	if len(rec.retrieval) != 1 || rec.retrieval[0] != RetrievalEmpty {
		t.Fatalf("retrieval outcomes = %v", rec.retrieval)
	}
}

func TestAnswerEmptyRetrievalDuringConfirmationIsExact(t *testing.T) {
	t.Parallel()

	cfg := testFlow()
	in := newTurn(statex.StateConfirmingLead, contractx.IntentQuestion, "რა ღირს მიწოდება?")
	in.Session.Name = "ნინო ბერიძე"
	in.Session.Phone = "599123456"

	out, err := Answer(context.Background(), in, cfg, retrieverFunc(func(context.Context, string, int) ([]contractx.PolicyChunk, error) {
		return nil, nil
	}), nil, &countingRecorder{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if out.Reply != cfg.Replies.NoInformation {
		t.Fatalf("reply = %q, want exactly the no-information line", out.Reply)
	}
	if len(normalizerx.DigitRuns(out.Reply)) != 0 {
		t.Fatalf("fallback reply carries digits: %q", out.Reply)
	}
	if out.Session.State != statex.StateAnswering || out.Session.ResumeState != statex.StateConfirmingLead {
		t.Fatalf("capture not kept for the next turn: state=%s resume=%s", out.Session.State, out.Session.ResumeState)
	}
}

func TestAnswerResumesConfirmationWithoutDigits(t *testing.T) {
	t.Parallel()

	cfg := testFlow()
	in := newTurn(statex.StateConfirmingLead, contractx.IntentQuestion, "როდის მუშაობთ?")
	in.Session.Name = "ნინო ბერიძე"
	in.Session.Phone = "599123456"

	out, err := Answer(context.Background(), in, cfg, retrieverFunc(func(context.Context, string, int) ([]contractx.PolicyChunk, error) {
		return []contractx.PolicyChunk{{Content: "ვმუშაობთ ყოველდღე.", Score: 0.9}}, nil
	}), nil, &countingRecorder{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if out.Reply != "ვმუშაობთ ყოველდღე. "+cfg.Replies.ResumeConfirm {
		t.Fatalf("reply = %q", out.Reply)
	}
}

type retrieverFunc func(ctx context.Context, query string, k int) ([]contractx.PolicyChunk, error)

func (f retrieverFunc) Retrieve(ctx context.Context, query string, k int) ([]contractx.PolicyChunk, error) {
	return f(ctx, query, k)
}

func TestQuoteChunkTruncatesAtSentence(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ეს არის პოლიტიკის წინადადება. ", 20)
	got := quoteChunk(contractx.PolicyChunk{Content: long})
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("quote does not end at a sentence: %q", got)
	}
	if n := len([]rune(got)); n > maxQuoteRunes {
		t.Fatalf("quote has %d runes", n)
	}
}

func TestCheckEndCallOnce(t *testing.T) {
	t.Parallel()

	cfg := testFlow()
	rec := &countingRecorder{}
	in := newTurn(statex.StateConfirmingLead, contractx.IntentAffirm, "კი")
	in.Reply = cfg.Replies.withClosing(cfg.Replies.LeadSaved)

	out, err := CheckEndCall(in, cfg, rec)
	if err != nil {
		t.Fatalf("CheckEndCall() error = %v", err)
	}
	if !out.EndCall || out.Session.State != statex.StateClosing || !out.Session.EndCallSent {
		t.Fatalf("unexpected end call state: end=%v state=%s", out.EndCall, out.Session.State)
	}

	out.EndCall = false
	out, err = CheckEndCall(out, cfg, rec)
	if err != nil {
		t.Fatalf("second CheckEndCall() error = %v", err)
	}
	if out.EndCall || rec.endCalls != 1 {
		t.Fatalf("end call repeated: end=%v count=%d", out.EndCall, rec.endCalls)
	}
}

func TestCheckEndCallIgnoresOrdinaryReply(t *testing.T) {
	t.Parallel()

	cfg := testFlow()
	in := newTurn(statex.StateGreeting, contractx.IntentOther, "ჰმ")
	in.Reply = cfg.Replies.Greeting

	out, err := CheckEndCall(in, cfg, &countingRecorder{})
	if err != nil {
		t.Fatalf("CheckEndCall() error = %v", err)
	}
	if out.EndCall || out.Session.State != statex.StateGreeting {
		t.Fatalf("greeting treated as closing: %+v", out.Session)
	}
}

func TestCollectPhoneRequiresName(t *testing.T) {
	t.Parallel()

	in := newTurn(statex.StateCollectingPhone, contractx.IntentProvideInfo, "599 12 34 56")
	_, err := CollectPhone(context.Background(), in, testFlow())
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestConfirmLeadUpdatesPhoneInPlace(t *testing.T) {
	t.Parallel()

	in := newTurn(statex.StateConfirmingLead, contractx.IntentDecline, "არა, 555 11 22 33")
	in.Session.Name = "ნინო"
	in.Session.Phone = "599123456"

	out, err := ConfirmLead(context.Background(), in, testFlow(), LeadSink{Recorder: &countingRecorder{}})
	if err != nil {
		t.Fatalf("ConfirmLead() error = %v", err)
	}
	if out.Session.Phone != "555112233" || out.Session.State != statex.StateConfirmingLead {
		t.Fatalf("unexpected session: phone=%s state=%s", out.Session.Phone, out.Session.State)
	}
	if !strings.Contains(out.Reply, "555 112 233") {
		t.Fatalf("reply = %q", out.Reply)
	}
}

func TestFinalizeReplySpeaksDigits(t *testing.T) {
	t.Parallel()

	in := newTurn(statex.StateAnswering, contractx.IntentQuestion, "?")
	in.Reply = "  მიწოდება 3 დღეში.  "
	out, err := FinalizeReply(in)
	if err != nil {
		t.Fatalf("FinalizeReply() error = %v", err)
	}
	if out.Reply != "მიწოდება 3 დღეში." {
		t.Fatalf("reply = %q", out.Reply)
	}
	if out.SpokenReply != "მიწოდება სამი დღეში." {
		t.Fatalf("spoken = %q", out.SpokenReply)
	}

	in.Reply = " "
	if _, err := FinalizeReply(in); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty reply, got %v", err)
	}
}

func TestClassifyIntentDeclineWithLeadDetail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state statex.ConversationState
		text  string
		want  contractx.Intent
	}{
		{"phone after no", statex.StateCollectingPhone, "არა, ჩემი ნომერია 599 12 34 56", contractx.IntentProvideInfo},
		{"plain no while asking phone", statex.StateCollectingPhone, "არა, არ მინდა", contractx.IntentDecline},
		{"name after no", statex.StateCollectingName, "არა, ჩემი სახელია გიორგი", contractx.IntentProvideInfo},
		{"name does not answer the phone question", statex.StateCollectingPhone, "არა, ჩემი სახელია გიორგი", contractx.IntentDecline},
		{"corrected phone at read-back", statex.StateConfirmingLead, "არა, 555 11 22 33", contractx.IntentProvideInfo},
		{"no outside capture", statex.StateQualifying, "არა, 599 12 34 56", contractx.IntentDecline},
	}
	for _, tt := range tests {
		in := newTurn(tt.state, "", tt.text)
		out, err := ClassifyIntent(context.Background(), in, nil, normalizerx.LocaleGeorgia)
		if err != nil {
			t.Fatalf("%s: ClassifyIntent() error = %v", tt.name, err)
		}
		if out.Intent != tt.want {
			t.Fatalf("%s: intent = %s, want %s", tt.name, out.Intent, tt.want)
		}
	}
}

func TestClassifyIntentDeclineWithPhoneWhileAnswering(t *testing.T) {
	t.Parallel()

	in := newTurn(statex.StateCollectingPhone, "", "არა, 599 12 34 56")
	in.Session.Name = "ნინო"
	if err := in.Session.EnterAnswering(testNow); err != nil {
		t.Fatalf("EnterAnswering() error = %v", err)
	}

	out, err := ClassifyIntent(context.Background(), in, stubClassifier{intent: contractx.IntentDecline}, normalizerx.LocaleGeorgia)
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}
	if out.Intent != contractx.IntentProvideInfo {
		t.Fatalf("intent = %s, want provide_info", out.Intent)
	}
}

func TestConfirmLeadUpdatesNameInPlace(t *testing.T) {
	t.Parallel()

	in := newTurn(statex.StateConfirmingLead, contractx.IntentDecline, "არა, ჩემი სახელია გიორგი")
	in.Session.Name = "ნინო"
	in.Session.Phone = "599123456"

	out, err := ConfirmLead(context.Background(), in, testFlow(), LeadSink{Recorder: &countingRecorder{}})
	if err != nil {
		t.Fatalf("ConfirmLead() error = %v", err)
	}
	if out.Session.Name != "გიორგი" || out.Session.State != statex.StateConfirmingLead {
		t.Fatalf("unexpected session: name=%s state=%s", out.Session.Name, out.Session.State)
	}
	if out.Session.Phone != "599123456" {
		t.Fatalf("phone changed: %s", out.Session.Phone)
	}
}

func TestCollectPhoneAfterAnswerDoesNotCountRetry(t *testing.T) {
	t.Parallel()

	in := newTurn(statex.StateCollectingPhone, contractx.IntentAffirm, "კარგი")
	in.Session.Name = "ნინო"
	if err := in.Session.EnterAnswering(testNow); err != nil {
		t.Fatalf("EnterAnswering() error = %v", err)
	}

	out, err := CollectPhone(context.Background(), in, testFlow())
	if err != nil {
		t.Fatalf("CollectPhone() error = %v", err)
	}
	if out.Session.PhoneRetries != 0 || out.Session.State != statex.StateCollectingPhone {
		t.Fatalf("unexpected session: retries=%d state=%s", out.Session.PhoneRetries, out.Session.State)
	}
	if !strings.Contains(out.Reply, "ნინო") {
		t.Fatalf("reply = %q, want the phone question", out.Reply)
	}
}

func TestLeadLedger(t *testing.T) {
	t.Parallel()

	l := NewLeadLedger(time.Hour)
	l.Remember("c1", "lead-1", testNow)
	if id, ok := l.Lookup(" c1 "); !ok || id != "lead-1" {
		t.Fatalf("Lookup() = %q, %v", id, ok)
	}

	l.Remember("c2", "lead-2", testNow.Add(2*time.Hour))
	if _, ok := l.Lookup("c1"); ok {
		t.Fatal("expired entry kept")
	}

	l.Forget("c2")
	if _, ok := l.Lookup("c2"); ok {
		t.Fatal("forgotten entry kept")
	}

	var none *LeadLedger
	none.Remember("c3", "lead-3", testNow)
	if _, ok := none.Lookup("c3"); ok {
		t.Fatal("nil ledger remembered a lead")
	}
}
