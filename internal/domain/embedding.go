package domain

import (
	"context"
	"fmt"
)

// KeyPrefix namespaces every key this service writes to the database.
const KeyPrefix = "mnemo:"

// ModelInfo describes one embedding model advertised by a provider.
type ModelInfo struct {
	ID          string
	Provider    string
	DisplayName string
	Dimensions  int
	MaxTokens   int
}

// Provider is the embedding provider contract. A provider advertises a model
// catalog and turns text into vectors for any model it advertises.
// Implementations perform network I/O and must honor ctx cancellation.
type Provider interface {
	Name() string
	Models() []ModelInfo
	IsConfigured() bool
	Embed(ctx context.Context, text, modelID string) (EmbeddingResult, error)
	BatchEmbed(ctx context.Context, texts []string, modelID string) (BatchEmbeddingResult, error)
}

// StoredEmbedding describes one persisted vector of a record.
type StoredEmbedding struct {
	ModelID    string
	Dimensions int
}

// Embedder vectorizes text for a single pre-resolved model. The search and
// record services consume this narrow contract; the registry produces it.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries one vector plus token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	Model        string
	Dimensions   int
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	Model        string
	Dimensions   int
	PromptTokens int
	TotalTokens  int
}

// BatchFallback embeds texts one by one. Safety net for providers without
// native batch support.
func BatchFallback(ctx context.Context, p Provider, texts []string, modelID string) (BatchEmbeddingResult, error) {
	out := BatchEmbeddingResult{
		Embeddings: make([][]float32, len(texts)),
		Model:      modelID,
	}

	for i, text := range texts {
		res, err := p.Embed(ctx, text, modelID)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		out.Embeddings[i] = res.Embedding
		out.Dimensions = res.Dimensions
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	return out, nil
}

type embeddingUsageKey struct{}

// EmbeddingUsage collects token usage for a single HTTP request.
// The handler puts a mutable pointer into the context before calling the
// service; the service writes after embedding; the handler reads it back for
// response headers.
type EmbeddingUsage struct {
	TotalTokens int
	Used        bool
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records consumed tokens.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u != nil {
		u.TotalTokens += n
		u.Used = true
	}
}
