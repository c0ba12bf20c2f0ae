package embedder

import (
	"fmt"
	"log/slog"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override via Settings.Dimensions.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Settings selects and parameterizes an embedding backend. Populated from
// the config layer at startup.
type Settings struct {
	// Provider selects the backend: ollama, openai, azure.
	Provider string

	// Model is the embedding model name. Empty selects the backend default.
	Model string

	// APIKey is the credential for openai/azure.
	APIKey string

	// Endpoint overrides the API base URL (Ollama host, Azure resource
	// endpoint, or an OpenAI-compatible proxy).
	Endpoint string

	// APIVersion is the Azure API version (azure only).
	APIVersion string

	// Dimensions is the embedding width. 0 selects the backend default.
	Dimensions int

	// BatchSize caps texts per API call. 0 selects DefaultBatchSize.
	BatchSize int

	// MaxRetries is the per-batch retry budget. 0 selects the default.
	MaxRetries int

	// BatchesPerSecond is the batch submission rate. 0 selects the default.
	BatchesPerSecond float64
}

// DefaultDimensions returns the default embedding vector size for the given
// backend name. Callers pre-configuring the vector store (Qdrant collection
// creation) should use this rather than hardcoding a value.
func DefaultDimensions(provider string) int {
	switch provider {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs a Client for the configured backend. It validates the
// settings first so operators get a clear startup error rather than a
// cryptic failure during the first embed call.
func New(settings Settings, log *slog.Logger) (*Client, error) {
	dims := settings.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions(settings.Provider)
	}

	var backend Backend
	switch settings.Provider {
	case "", "ollama":
		host := settings.Endpoint
		if host == "" {
			host = "http://localhost:11434"
		}
		model := settings.Model
		if model == "" {
			model = defaultOllamaModel
		}
		backend = NewOllamaBackend(&OllamaConfig{Host: host, Model: model})

	case "openai":
		if settings.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai provider requires an API key")
		}
		baseURL := settings.Endpoint
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := settings.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		backend = NewOpenAIBackend(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     settings.APIKey,
			Model:      model,
			Dimensions: dims,
		})

	case "azure":
		if settings.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure provider requires an API key")
		}
		if settings.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure provider requires an endpoint")
		}
		apiVersion := settings.APIVersion
		if apiVersion == "" {
			apiVersion = "2025-04-01-preview"
		}
		model := settings.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		backend = NewOpenAIBackend(&OpenAIConfig{
			BaseURL:    settings.Endpoint + "/openai",
			APIKey:     settings.APIKey,
			Model:      model,
			Dimensions: dims,
			Azure:      true,
			APIVersion: apiVersion,
		})

	default:
		return nil, fmt.Errorf("embedder: unknown provider %q — valid values: ollama, openai, azure", settings.Provider)
	}

	warnIfChatModel(settings.Model, log)

	return NewClient(&ClientConfig{
		Backend:          backend,
		Dimensions:       dims,
		BatchSize:        settings.BatchSize,
		MaxRetries:       settings.MaxRetries,
		BatchesPerSecond: settings.BatchesPerSecond,
		Logger:           log,
	})
}
