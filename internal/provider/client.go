package provider

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// ClientConfig points an OpenAI-compatible client at an inference provider.
type ClientConfig struct {
	APIBase    string // e.g. "https://api.groq.com/openai/v1"
	APIKey     string
	HTTPClient *http.Client
}

// NewClient builds the go-openai client used by both gateways.
// Groq exposes the OpenAI wire format, so only the base URL differs.
func NewClient(cfg ClientConfig) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		oc.BaseURL = cfg.APIBase
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(oc)
}

// Healthy checks that the provider is reachable and accepts the API key.
func Healthy(ctx context.Context, client *openai.Client) error {
	if _, err := client.ListModels(ctx); err != nil {
		return fmt.Errorf("inference API not reachable: %w", err)
	}
	return nil
}
