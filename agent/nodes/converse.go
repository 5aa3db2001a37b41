package flownode

import (
	"fmt"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

// maxDeclines is the number of refusals after which the agent says goodbye.
const maxDeclines = 2

func requireSession(in *TurnState) error {
	if in == nil || in.Session == nil {
		return fmt.Errorf("%w: turn session is nil", contractx.ErrValidation)
	}
	return nil
}

// Greet introduces the agent on first contact and otherwise offers help.
func Greet(in *TurnState, cfg FlowConfig) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	st := in.Session
	if _, spoke := st.LastUtterance(statex.SpeakerAgent); spoke {
		in.Reply = cfg.Replies.AnythingElse
	} else {
		in.Reply = cfg.Replies.Greeting
	}
	st.Touch(in.Now)
	return in, nil
}

// Qualify asks whether the caller wants a manager to follow up.
func Qualify(in *TurnState, cfg FlowConfig) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	st := in.Session
	if in.Intent == contractx.IntentBuy {
		st.Qualified = true
	}
	if err := st.Transition(statex.StateQualifying, in.Now); err != nil {
		return nil, err
	}
	in.Reply = cfg.Replies.Qualify
	return in, nil
}

// Decline acknowledges a refusal. The second refusal in a call ends it.
func Decline(in *TurnState, cfg FlowConfig) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	st := in.Session
	st.Declines++
	if st.Declines >= maxDeclines {
		if err := st.Transition(statex.StateClosing, in.Now); err != nil {
			return nil, err
		}
		in.Reply = cfg.Replies.withClosing(cfg.Replies.Goodbye)
		return in, nil
	}

	st.Touch(in.Now)
	in.Reply = cfg.Replies.DeclineNudge
	return in, nil
}

// Close says goodbye. Repeating it on a closed call is harmless: the end-call
// signal is tracked on the session.
func Close(in *TurnState, cfg FlowConfig) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	if err := in.Session.Transition(statex.StateClosing, in.Now); err != nil {
		return nil, err
	}
	in.Reply = cfg.Replies.withClosing(cfg.Replies.Goodbye)
	return in, nil
}
