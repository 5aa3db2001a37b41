package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/classifier.txt
	classifierRaw string

	//go:embed template/composer.txt
	composerRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Classifier string
	Composer   string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Classifier: strings.TrimSpace(classifierRaw),
		Composer:   strings.TrimSpace(composerRaw),
	}
}
