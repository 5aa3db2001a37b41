package contract

import "context"

type IntentClassifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error)
}

type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (ComposeResponse, error)
}

type Registry interface {
	Classifier() IntentClassifier
	Composer() Composer
}

// Retriever returns an empty slice, not an error, when nothing relevant is stored.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]PolicyChunk, error)
}

type LeadStore interface {
	SaveLead(ctx context.Context, lead Lead) (LeadID, error)
}

type TurnRecorder interface {
	ObserveTurn(state string, intent string, seconds float64)
	ObserveRetrieval(outcome string)
	ObserveLead(outcome string)
	ObserveEndCall()
}
