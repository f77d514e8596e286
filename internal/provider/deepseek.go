package provider

import (
	"context"
	"net/http"
	"strings"

	"courier.chat/relay/core/config"
	"courier.chat/relay/internal/model"
)

const deepseekDefaultBaseURL = "https://api.deepseek.com"

// DeepSeek streams from a DeepSeek-compatible chat-completions endpoint.
// Reasoning models interleave reasoning_content deltas with content deltas;
// both are relayed, and the reasoning-to-content transition yields the think
// time.
type DeepSeek struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

func NewDeepSeek(cfg config.ProviderConfig) *DeepSeek {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = deepseekDefaultBaseURL
	}
	return &DeepSeek{
		client:  newHTTPClient(),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (d *DeepSeek) Name() string              { return model.ProviderDeepSeek }
func (d *DeepSeek) SupportsAttachments() bool { return false }

func (d *DeepSeek) Stream(ctx context.Context, req Request, emit EmitFunc) error {
	payload := chatPayload(req.Model, req.Messages, req.Options)
	tr := &chatTranslator{emit: emit}
	return streamChatCompletions(ctx, d.client, d.baseURL+"/chat/completions", d.apiKey, payload, tr)
}
