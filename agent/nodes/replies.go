package flownode

import (
	"fmt"
	"strings"

	normalizerx "github.com/tanpawarit/leadflow-voice-agent/agent/normalizer"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

// Replies holds the fixed agent lines for one language. Every line that ends
// a call carries the closing phrase so the end-call check can see it.
type Replies struct {
	Greeting        string
	NoInformation   string
	AnythingElse    string
	Qualify         string
	AskNameAndPhone string
	AskName         string
	AskPhone        string
	RepeatPhone     string
	PhoneNotHeard   string
	ConfirmLead     string
	ResumeConfirm   string
	LeadSaved       string
	SaveFailedRetry string
	ManagerWillCall string
	DeclineNudge    string
	Goodbye         string
	Closing         string
}

var georgianReplies = Replies{
	Greeting:        "გამარჯობა! %s-ის ასისტენტი ვარ. რით შემიძლია დაგეხმაროთ?",
	NoInformation:   "სამწუხაროდ, ამ კითხვაზე ზუსტი ინფორმაცია არ მაქვს და გამოცნობას არ ვცდი. კიდევ რით შემიძლია დაგეხმაროთ?",
	AnythingElse:    "კიდევ რით შემიძლია დაგეხმაროთ?",
	Qualify:         "სიამოვნებით დაგეხმარებით. გსურთ, რომ ჩვენმა მენეჯერმა დაგიკავშირდეთ და ყველა დეტალი გაგაცნოთ?",
	AskNameAndPhone: "კარგია. ჩასაწერად მითხარით თქვენი სრული სახელი და ტელეფონის ნომერი.",
	AskName:         "გასაგებია. თქვენი სრული სახელი რა არის?",
	AskPhone:        "გმადლობთ, %s! თქვენი ტელეფონის ნომერი რა არის?",
	RepeatPhone:     "ბოდიში, ნომერი ვერ გავიგე. გთხოვთ, ნელა გაიმეოროთ.",
	PhoneNotHeard:   "სამწუხაროდ, ნომერი მაინც ვერ ჩავიწერე. შეგიძლიათ ნებისმიერ დროს დაგვიკავშირდეთ.",
	ConfirmLead:     "გადავამოწმებ: სახელი %s, ნომერი %s. სწორია?",
	ResumeConfirm:   "დავუბრუნდეთ თქვენს მონაცემებს. ჩავიწერო ისინი?",
	LeadSaved:       "იდეალურია, გმადლობთ! ჩვენი გუნდი მალე დაგიკავშირდებათ.",
	SaveFailedRetry: "ბოდიში, მონაცემების შენახვა ვერ მოხერხდა. გთხოვთ, კიდევ ერთხელ მითხრათ თქვენი სრული სახელი.",
	ManagerWillCall: "ბოდიში, ტექნიკური შეფერხებაა. ჩვენი მენეჯერი მოგვიანებით დაგიკავშირდებათ.",
	DeclineNudge:    "გასაგებია. თუ გადაიფიქრებთ, სიამოვნებით ჩავიწერ თქვენს მონაცემებს. კიდევ რით შემიძლია დაგეხმაროთ?",
	Goodbye:         "გმადლობთ საუბრისთვის.",
}

var englishReplies = Replies{
	Greeting:        "Hello! I'm the %s assistant. How can I help you?",
	NoInformation:   "Sorry, I don't have reliable information on that and I won't guess. Is there anything else I can help with?",
	AnythingElse:    "Is there anything else I can help with?",
	Qualify:         "Happy to help. Would you like our manager to contact you with all the details?",
	AskNameAndPhone: "Great. Please tell me your full name and phone number.",
	AskName:         "Got it. What is your full name?",
	AskPhone:        "Thank you, %s! What is your phone number?",
	RepeatPhone:     "Sorry, I didn't catch the number. Could you repeat it slowly?",
	PhoneNotHeard:   "Unfortunately I still couldn't record the number. You can contact us any time.",
	ConfirmLead:     "Let me check: name %s, number %s. Is that correct?",
	ResumeConfirm:   "Back to your details. Shall I record them?",
	LeadSaved:       "Perfect, thank you! Our team will contact you soon.",
	SaveFailedRetry: "Sorry, I couldn't save your details. Could you tell me your full name once more?",
	ManagerWillCall: "Sorry, we have a technical issue. Our manager will call you back later.",
	DeclineNudge:    "Understood. If you change your mind I'm happy to take your details. Anything else I can help with?",
	Goodbye:         "Thanks for the conversation.",
}

// RepliesFor returns the reply set for lang with company-specific lines
// filled in. Unknown languages get Georgian.
func RepliesFor(lang, company string) Replies {
	r := georgianReplies
	if lang == normalizerx.LanguageEnglish {
		r = englishReplies
	}
	r.Greeting = fmt.Sprintf(r.Greeting, company)
	r.Closing = normalizerx.ClosingPhrasesFor(lang, company)[0]
	return r
}

func (r Replies) askPhone(name string) string {
	return fmt.Sprintf(r.AskPhone, name)
}

func (r Replies) confirmLead(name, phone string) string {
	return fmt.Sprintf(r.ConfirmLead, name, normalizerx.FormatPhoneGroups(phone))
}

// withClosing appends the closing phrase as the last line.
func (r Replies) withClosing(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return r.Closing
	}
	return msg + "\n" + r.Closing
}

// resumePrompt is the question that picks lead capture back up after an
// interruption. It never repeats the caller's digits.
func (r Replies) resumePrompt(st *statex.CallSession) string {
	switch st.ResumeState {
	case statex.StateCollectingName:
		return r.AskName
	case statex.StateCollectingPhone:
		return r.askPhone(st.Name)
	case statex.StateConfirmingLead:
		return r.ResumeConfirm
	default:
		return ""
	}
}
