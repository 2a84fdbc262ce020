package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
	"github.com/kailas-cloud/mnemo/internal/metrics"
)

// Provider serves embeddings over the OpenAI wire protocol. The same type
// covers any compatible backend (OpenAI, Voyage, Ollama, vLLM) because they
// differ only in base URL, credentials, and model catalog.
type Provider struct {
	name   string
	client *openai.Client
	models []domain.ModelInfo
	apiKey string
	user   string
	logger *zap.Logger
}

// ModelConfig describes one model a provider endpoint serves.
type ModelConfig struct {
	ID          string
	DisplayName string
	Dimensions  int
	MaxTokens   int
}

// Config holds the settings of one provider endpoint.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
	Models  []ModelConfig
	User    string
	Logger  *zap.Logger
}

// NewProvider creates an OpenAI-compatible embedding provider.
func NewProvider(cfg *Config) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	models := make([]domain.ModelInfo, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		models = append(models, domain.ModelInfo{
			ID:          m.ID,
			Provider:    cfg.Name,
			DisplayName: m.DisplayName,
			Dimensions:  m.Dimensions,
			MaxTokens:   m.MaxTokens,
		})
	}

	return &Provider{
		name:   cfg.Name,
		client: openai.NewClientWithConfig(clientCfg),
		models: models,
		apiKey: cfg.APIKey,
		user:   cfg.User,
		logger: logger,
	}
}

// Name implements domain.Provider.
func (p *Provider) Name() string { return p.name }

// Models implements domain.Provider.
func (p *Provider) Models() []domain.ModelInfo { return p.models }

// IsConfigured reports whether the endpoint has credentials. Local backends
// like Ollama need none, so any catalog without an API key placeholder counts.
func (p *Provider) IsConfigured() bool {
	return p.apiKey != "" || p.name == "ollama"
}

// Embed implements domain.Provider.
func (p *Provider) Embed(ctx context.Context, text, modelID string) (domain.EmbeddingResult, error) {
	results, usage, err := p.request(ctx, []string{text}, modelID)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    results[0],
		Model:        modelID,
		Dimensions:   len(results[0]),
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.Provider. The whole batch goes out as a single
// API call; input order is preserved in the result.
func (p *Provider) BatchEmbed(ctx context.Context, texts []string, modelID string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{Model: modelID}, nil
	}
	if p.name == "ollama" {
		// ollama's embeddings endpoint accepts one input at a time.
		return domain.BatchFallback(ctx, p, texts, modelID)
	}
	results, usage, err := p.request(ctx, texts, modelID)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   results,
		Model:        modelID,
		Dimensions:   len(results[0]),
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (p *Provider) request(ctx context.Context, texts []string, modelID string) ([][]float32, openai.Usage, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(modelID),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           p.user,
	}
	if dims := p.dimensions(modelID); dims > 0 {
		req.Dimensions = dims
	}

	start := time.Now()
	resp, err := p.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.name, modelID, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.name, modelID, "api_error").Inc()
		p.logger.Warn("Embedding API call failed",
			zap.String("provider", p.name),
			zap.String("model", modelID),
			zap.Error(err),
		)
		return nil, openai.Usage{}, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.name, modelID, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.name, modelID, "bad_response").Inc()
		return nil, openai.Usage{}, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(texts), domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(p.name, modelID, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(p.name, modelID).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(p.name, modelID, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(p.name, modelID, "total").Add(float64(resp.Usage.TotalTokens))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, openai.Usage{}, fmt.Errorf("embedding response index %d out of range: %w",
				d.Index, domain.ErrEmbeddingProviderError)
		}
		out[d.Index] = d.Embedding
	}
	return out, resp.Usage, nil
}

func (p *Provider) dimensions(modelID string) int {
	for _, m := range p.models {
		if m.ID == modelID {
			return m.Dimensions
		}
	}
	return 0
}

// parseAPIError classifies a failed API call. Rate limits, server errors,
// and network failures are transient and mapped to ErrProviderUnavailable so
// the retry layer acts on them. Everything else is a permanent provider error.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, classifyStatus(reqErr.HTTPStatusCode))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, classifyStatus(apiErr.HTTPStatusCode))
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrProviderUnavailable)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrEmbeddingProviderError)
}

func classifyStatus(status int) error {
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return domain.ErrProviderUnavailable
	}
	return domain.ErrEmbeddingProviderError
}

// extractDetail pulls the "detail" field some backends put in error bodies.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
