package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
)

type composerImpl struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

type passage struct {
	N       int     `json:"n"`
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score"`
}

var _ contractx.Composer = (*composerImpl)(nil)

func newComposer(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*composerImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: composer prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileComposerGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &composerImpl{runner: runner}, nil
}

// Compose writes a short spoken answer from the given passages only.
func (c *composerImpl) Compose(ctx context.Context, req contractx.ComposeRequest) (contractx.ComposeResponse, error) {
	if len(req.Chunks) == 0 {
		return contractx.ComposeResponse{}, fmt.Errorf("%w: composer needs at least one passage", contractx.ErrValidation)
	}

	passages := make([]passage, 0, len(req.Chunks))
	for i, ch := range req.Chunks {
		passages = append(passages, passage{
			N:       i + 1,
			Content: ch.Content,
			Source:  ch.Source,
			Score:   ch.Score,
		})
	}

	input, err := json.Marshal(map[string]any{
		"question": req.Question,
		"passages": passages,
		"language": req.Language,
		"company":  req.Company,
	})
	if err != nil {
		return contractx.ComposeResponse{}, fmt.Errorf("%w: marshal composer payload: %v", contractx.ErrValidation, err)
	}

	msg, err := c.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return contractx.ComposeResponse{}, fmt.Errorf("%w: composer invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return contractx.ComposeResponse{}, fmt.Errorf("%w: composer message is empty", contractx.ErrSchemaViolation)
	}

	return contractx.ComposeResponse{Message: strings.TrimSpace(msg.Content)}, nil
}
