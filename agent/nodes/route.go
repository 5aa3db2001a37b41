package flownode

import (
	"context"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

const (
	NodeGreet        = "greet"
	NodeAnswer       = "answer"
	NodeQualify      = "qualify"
	NodeCollectName  = "collect_name"
	NodeCollectPhone = "collect_phone"
	NodeConfirmLead  = "confirm_lead"
	NodeDecline      = "decline"
	NodeClose        = "close"
)

// HandlerNodes lists every branch target of RouteTurn.
var HandlerNodes = []string{
	NodeGreet,
	NodeAnswer,
	NodeQualify,
	NodeCollectName,
	NodeCollectPhone,
	NodeConfirmLead,
	NodeDecline,
	NodeClose,
}

// RouteTurn picks the handler for this turn from the session state and the
// classified intent. While answering in the middle of lead capture the
// interrupted state decides.
func RouteTurn(_ context.Context, in *TurnState) (string, error) {
	if in == nil || in.Session == nil {
		return NodeGreet, nil
	}

	st := in.Session.State
	if st == statex.StateAnswering && in.Session.ResumeState != "" {
		st = in.Session.ResumeState
	}

	switch {
	case st.IsTerminal(), in.Intent == contractx.IntentGoodbye:
		return NodeClose, nil
	case in.Intent == contractx.IntentQuestion:
		return NodeAnswer, nil
	case st == statex.StateConfirmingLead:
		return NodeConfirmLead, nil
	case in.Intent == contractx.IntentDecline:
		return NodeDecline, nil
	}

	switch st {
	case statex.StateGreeting:
		switch in.Intent {
		case contractx.IntentBuy:
			return NodeQualify, nil
		case contractx.IntentProvideInfo:
			return NodeAnswer, nil
		}
		return NodeGreet, nil
	case statex.StateAnswering:
		switch in.Intent {
		case contractx.IntentBuy, contractx.IntentAffirm:
			return NodeQualify, nil
		case contractx.IntentProvideInfo:
			return NodeAnswer, nil
		}
		return NodeGreet, nil
	case statex.StateQualifying:
		if in.Intent == contractx.IntentOther {
			return NodeQualify, nil
		}
		return NodeCollectName, nil
	case statex.StateCollectingName:
		return NodeCollectName, nil
	case statex.StateCollectingPhone:
		return NodeCollectPhone, nil
	default:
		return NodeGreet, nil
	}
}
