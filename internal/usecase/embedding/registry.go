package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
)

// Registry resolves model ids to providers. Providers are held in priority
// order; resolution is deterministic for a fixed configuration.
//
// Resolution for an explicit model id: the first provider advertising it wins;
// an advertised model on an unconfigured provider is ErrNoProviderConfigured,
// an unknown model is ErrModelNotFound. Resolution without a model id: the
// configured default model, else the first model of the first configured
// provider, else ErrNoProviderConfigured.
type Registry struct {
	providers    []domain.Provider
	defaultModel string
	logger       *zap.Logger
}

// NewRegistry creates a registry over providers in priority order.
func NewRegistry(providers []domain.Provider, defaultModel string, logger *zap.Logger) *Registry {
	return &Registry{
		providers:    providers,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Resolve picks the provider and model for a request. Empty modelID means
// "use the deployment default".
func (r *Registry) Resolve(modelID string) (domain.Provider, domain.ModelInfo, error) {
	if modelID != "" {
		return r.resolveExplicit(modelID)
	}

	if r.defaultModel != "" {
		p, info, err := r.resolveExplicit(r.defaultModel)
		if err == nil {
			return p, info, nil
		}
		r.logger.Warn("Default embedding model unavailable, falling back",
			zap.String("model", r.defaultModel),
			zap.Error(err),
		)
	}

	for _, p := range r.providers {
		if !p.IsConfigured() {
			continue
		}
		models := p.Models()
		if len(models) == 0 {
			continue
		}
		return p, models[0], nil
	}

	return nil, domain.ModelInfo{}, domain.ErrNoProviderConfigured
}

func (r *Registry) resolveExplicit(modelID string) (domain.Provider, domain.ModelInfo, error) {
	advertised := false
	for _, p := range r.providers {
		info, ok := findModel(p, modelID)
		if !ok {
			continue
		}
		advertised = true
		if p.IsConfigured() {
			return p, info, nil
		}
	}

	if advertised {
		return nil, domain.ModelInfo{},
			fmt.Errorf("model %s: %w", modelID, domain.ErrNoProviderConfigured)
	}
	return nil, domain.ModelInfo{}, fmt.Errorf("model %s: %w", modelID, domain.ErrModelNotFound)
}

// EmbedderFor resolves a model and returns a single-model embedder bound to
// its provider, for consumers that should not see the catalog.
func (r *Registry) EmbedderFor(modelID string) (domain.Embedder, domain.ModelInfo, error) {
	p, info, err := r.Resolve(modelID)
	if err != nil {
		return nil, domain.ModelInfo{}, err
	}
	return &boundEmbedder{provider: p, modelID: info.ID}, info, nil
}

// Models lists every model of every configured provider, in priority order.
func (r *Registry) Models() []domain.ModelInfo {
	var out []domain.ModelInfo
	for _, p := range r.providers {
		if !p.IsConfigured() {
			continue
		}
		out = append(out, p.Models()...)
	}
	return out
}

// DefaultModel resolves what an empty model id would use right now.
func (r *Registry) DefaultModel() (domain.ModelInfo, error) {
	_, info, err := r.Resolve("")
	return info, err
}

func findModel(p domain.Provider, modelID string) (domain.ModelInfo, bool) {
	for _, info := range p.Models() {
		if info.ID == modelID {
			return info, true
		}
	}
	return domain.ModelInfo{}, false
}

// boundEmbedder adapts a provider to the single-model Embedder contract.
type boundEmbedder struct {
	provider domain.Provider
	modelID  string
}

func (b *boundEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return b.provider.Embed(ctx, text, b.modelID)
}
