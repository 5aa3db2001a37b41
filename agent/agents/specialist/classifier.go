package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
)

var allIntents = []contractx.Intent{
	contractx.IntentQuestion,
	contractx.IntentBuy,
	contractx.IntentAffirm,
	contractx.IntentDecline,
	contractx.IntentGoodbye,
	contractx.IntentProvideInfo,
	contractx.IntentOther,
}

type classifierImpl struct {
	runner compose.Runnable[map[string]any, classifierLLMOutput]
}

type classifierLLMOutput struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

var _ contractx.IntentClassifier = (*classifierImpl)(nil)

func newClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*classifierImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: classifier prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileClassifierGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &classifierImpl{runner: runner}, nil
}

func (c *classifierImpl) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.ClassifyResponse, error) {
	payload := map[string]any{
		"utterance":      req.Utterance,
		"dialogue_state": req.State,
		"language":       req.Language,
		"intents":        allIntents,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.ClassifyResponse{}, fmt.Errorf("%w: marshal classifier payload: %v", contractx.ErrValidation, err)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return contractx.ClassifyResponse{}, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}

	intent := contractx.Intent(strings.ToLower(strings.TrimSpace(out.Intent)))
	if !intent.Valid() {
		return contractx.ClassifyResponse{}, fmt.Errorf("%w: unknown intent %q", contractx.ErrSchemaViolation, out.Intent)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return contractx.ClassifyResponse{}, fmt.Errorf("%w: confidence %v out of range", contractx.ErrSchemaViolation, out.Confidence)
	}

	return contractx.ClassifyResponse{
		Intent:     intent,
		Confidence: out.Confidence,
	}, nil
}
