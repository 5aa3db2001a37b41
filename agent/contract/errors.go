package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrInvalidPhone         = errors.New("invalid phone number")
	ErrRetrievalUnavailable = errors.New("policy retrieval unavailable")
	ErrPersistence          = errors.New("lead persistence failed")
	ErrTransport            = errors.New("transport failure")
	ErrInvalidTransition    = errors.New("invalid conversation transition")
)
