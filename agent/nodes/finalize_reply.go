package flownode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	normalizerx "github.com/tanpawarit/leadflow-voice-agent/agent/normalizer"
)

func FinalizeReply(in *TurnState) (GraphOutput, error) {
	if err := requireSession(in); err != nil {
		return GraphOutput{}, err
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: turn produced an empty reply", contractx.ErrValidation)
	}
	return GraphOutput{
		Reply:       reply,
		SpokenReply: normalizerx.NumberToSpokenWords(reply, in.Session.Language),
		EndCall:     in.EndCall,
		State:       in.Session.State,
		Intent:      in.Intent,
	}, nil
}
