package domain

import "errors"

// Sentinel errors for the search core and record store.
var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation signals a malformed request (filter, mode, paging).
	ErrValidation = errors.New("validation failed")
	// ErrRecordNotFound signals a missing content record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrEmbeddingNotFound signals a record without a stored embedding for the model.
	ErrEmbeddingNotFound = errors.New("embedding not found")
	// ErrVectorDimMismatch signals a vector whose dimensionality differs from
	// the model's declared output size.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrModelNotFound signals a model id no registered provider advertises.
	ErrModelNotFound = errors.New("embedding model not found")
	// ErrNoProviderConfigured signals that no embedding provider has credentials.
	ErrNoProviderConfigured = errors.New("no embedding provider configured")
	// ErrProviderUnavailable signals a transient embedding provider failure
	// (timeout, 5xx, rate limit). Retried once before surfacing.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrEmbeddingProviderError signals a non-transient embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
)
