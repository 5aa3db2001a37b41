package flownode

import (
	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	normalizerx "github.com/tanpawarit/leadflow-voice-agent/agent/normalizer"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

// CheckEndCall looks for the closing phrase in the agent's own reply. The
// end-call signal goes out at most once per call.
func CheckEndCall(in *TurnState, cfg FlowConfig, recorder contractx.TurnRecorder) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	st := in.Session
	if !normalizerx.ContainsClosingPhrase(in.Reply, normalizerx.ClosingPhrasesFor(cfg.Language, cfg.Company)) {
		return in, nil
	}

	if err := st.Transition(statex.StateClosing, in.Now); err != nil {
		return nil, err
	}
	if !st.EndCallSent {
		st.EndCallSent = true
		in.EndCall = true
		recorder.ObserveEndCall()
	}
	return in, nil
}
