// Package provider selects and constructs the LLM chat-model backend at
// runtime. Supported backends: Ollama, OpenAI, Azure OpenAI, AWS Bedrock,
// Google Gemini.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama configures the Ollama backend.
type ProviderOllama struct {
	// Host is the Ollama server base URL.
	Host string

	// Model is the Ollama model name (e.g. "llama3").
	Model string
}

// ProviderOpenAI configures the OpenAI backend.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// Model is the model name (e.g. "gpt-4o").
	Model string
}

// ProviderAzureOpenAI configures the Azure OpenAI backend.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure OpenAI API key.
	APIKey string

	// Endpoint is the Azure resource endpoint URL.
	Endpoint string

	// Deployment is the Azure deployment name.
	Deployment string

	// APIVersion is the Azure REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderBedrock configures the AWS Bedrock backend. Credentials are
// resolved via the standard AWS SDK chain.
type ProviderBedrock struct {
	// AWSRegion is the AWS region hosting the model.
	AWSRegion string

	// ModelID is the Bedrock model identifier.
	ModelID string
}

// ProviderGemini configures the Google Gemini backend.
type ProviderGemini struct {
	// APIKey is the AI Studio API key.
	APIKey string

	// Model is the Gemini model name (e.g. "gemini-1.5-pro").
	Model string
}

// SharedTuning holds generation parameters common to all backends.
type SharedTuning struct {
	// MaxTokens caps tokens generated per response.
	MaxTokens int

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// HealthCheckConfig describes how to probe the backend for readiness
// without burning tokens. A zero value means no cheap probe is available.
type HealthCheckConfig struct {
	// URL is an endpoint that answers cheaply when the backend is up.
	URL string

	// Header carries an optional auth header name/value pair.
	Header, HeaderValue string
}

// Config holds all provider-level configuration. Only the section matching
// Backend is consulted; the others may be zero.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Bedrock     ProviderBedrock
	Gemini      ProviderGemini

	// Tuning holds shared generation parameters.
	Tuning SharedTuning
}

// Validate checks that the selected backend's section is complete. Error
// messages name the environment variable an operator would set, since env
// configuration is the common path.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for the ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for the openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for the openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for the azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for the azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for the azure backend")
		}
	case BackendBedrock:
		if c.Bedrock.ModelID == "" {
			return fmt.Errorf("provider: BEDROCK_MODEL_ID is required for the bedrock backend")
		}
		if c.Bedrock.AWSRegion == "" {
			return fmt.Errorf("provider: AWS_REGION is required for the bedrock backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for the gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for the gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: ollama, openai, azure, bedrock, gemini", c.Backend)
	}
	return nil
}

// HealthCheck returns the cheap readiness probe for the configured backend,
// or a zero value when none exists.
func (c *Config) HealthCheck() HealthCheckConfig {
	switch c.Backend {
	case BackendOllama:
		host := c.Ollama.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		return HealthCheckConfig{URL: host + "/api/tags"}
	case BackendOpenAI:
		return HealthCheckConfig{
			URL:         "https://api.openai.com/v1/models",
			Header:      "Authorization",
			HeaderValue: "Bearer " + c.OpenAI.APIKey,
		}
	case BackendAzure:
		return HealthCheckConfig{
			URL:         strings.TrimSuffix(c.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" + c.AzureOpenAI.APIVersion,
			Header:      "api-key",
			HeaderValue: c.AzureOpenAI.APIKey,
		}
	default:
		return HealthCheckConfig{}
	}
}

// azureReasoningPrefixes identifies Azure deployments of reasoning models,
// which reject the temperature parameter.
var azureReasoningPrefixes = []string{"o1", "o3", "o4", "codex"}

// isAzureReasoningModel reports whether the deployment name looks like an
// o-series or codex-class reasoning model.
func isAzureReasoningModel(deployment string) bool {
	lower := strings.ToLower(deployment)
	for _, prefix := range azureReasoningPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
