package provider

import (
	"context"
	"net/http"
	"strings"

	"courier.chat/relay/core/config"
	"courier.chat/relay/internal/model"
)

// Local streams from a local inference server (llama-server style,
// OpenAI-compatible SSE, no auth). Local servers often omit usage; the
// persistence path estimates it in that case.
type Local struct {
	client  *http.Client
	baseURL string
}

func NewLocal(cfg config.ProviderConfig) *Local {
	return &Local{
		client:  newHTTPClient(),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

func (l *Local) Name() string              { return model.ProviderLocal }
func (l *Local) SupportsAttachments() bool { return false }

func (l *Local) Stream(ctx context.Context, req Request, emit EmitFunc) error {
	payload := chatPayload(req.Model, req.Messages, req.Options)
	tr := &chatTranslator{emit: emit}
	return streamChatCompletions(ctx, l.client, l.baseURL+"/v1/chat/completions", "", payload, tr)
}
