package specialist

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/leadflow-voice-agent/agent/contract"
	llmx "github.com/tanpawarit/leadflow-voice-agent/agent/llm"
	promptx "github.com/tanpawarit/leadflow-voice-agent/agent/prompt"
)

type registryImpl struct {
	classifier contractx.IntentClassifier
	composer   contractx.Composer
}

func (r *registryImpl) Classifier() contractx.IntentClassifier {
	return r.classifier
}

func (r *registryImpl) Composer() contractx.Composer {
	return r.composer
}

func NewRegistry(ctx context.Context, cfg llmx.Config) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()

	classifierModelCfg := cfg.OpenRouterFor(contractx.AgentRoleClassifier)
	classifierModel, err := classifierModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create classifier model: %v", contractx.ErrModelInvoke, err)
	}
	composerModelCfg := cfg.OpenRouterFor(contractx.AgentRoleComposer)
	composerModel, err := composerModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create composer model: %v", contractx.ErrModelInvoke, err)
	}

	classifier, err := newClassifier(ctx, classifierModel, prompts.Classifier)
	if err != nil {
		return nil, err
	}
	composer, err := newComposer(ctx, composerModel, prompts.Composer)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		classifier: classifier,
		composer:   composer,
	}, nil
}
