package flownode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

func LoadOrCreateSession(
	ctx context.Context,
	in *TurnState,
	store statex.Store,
	language string,
) (*TurnState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.CallID)
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrStateNotFound):
		st = statex.NewCallSession(in.CallID, language, in.Now)
	default:
		return nil, err
	}

	in.Session = st
	return in, nil
}

func RecordUserTurn(in *TurnState) (*TurnState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: turn session is nil", contractx.ErrValidation)
	}
	in.Session.Record(statex.SpeakerUser, in.Text, in.Now)
	return in, nil
}
