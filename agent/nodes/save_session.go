package flownode

import (
	"context"
	"fmt"

	statex "github.com/tanpawarit/leadflow-voice-agent/agent/state"
)

func SaveSession(
	ctx context.Context,
	in *TurnState,
	store statex.Store,
) (*TurnState, error) {
	if err := requireSession(in); err != nil {
		return nil, err
	}

	in.Session.Record(statex.SpeakerAgent, in.Reply, in.Now)
	in.Session.Touch(in.Now)
	if err := in.Session.Validate(); err != nil {
		return nil, fmt.Errorf("session validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}
	return in, nil
}
