package provider

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"courier.chat/relay/core/config"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/stream"
)

const xaiDefaultBaseURL = "https://api.x.ai/v1"

// XAI streams from an xAI-compatible endpoint. Live search is requested via
// search_parameters and surfaced as a single search event built from response
// citations. If a search-augmented request fails before producing any output,
// it is retried once without search.
type XAI struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

func NewXAI(cfg config.ProviderConfig) *XAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = xaiDefaultBaseURL
	}
	return &XAI{
		client:  newHTTPClient(),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (x *XAI) Name() string              { return model.ProviderXAI }
func (x *XAI) SupportsAttachments() bool { return true }

func (x *XAI) Stream(ctx context.Context, req Request, emit EmitFunc) error {
	searchMode := req.Options.XAISearchMode
	if searchMode == "" {
		searchMode = model.XAISearchAuto
	}
	withSearch := req.Options.WebSearch && searchMode != model.XAISearchOff

	emitted := false
	countingEmit := func(ev stream.Event) error {
		emitted = true
		return emit(ev)
	}

	err := x.call(ctx, req, countingEmit, withSearch, searchMode)
	if err == nil || !withSearch || emitted {
		return err
	}

	// Capability fallback: one retry without search, only while the stream
	// is still clean.
	slog.WarnContext(ctx, "search-augmented request failed, retrying without search",
		"model", req.Model, "error", err)
	return x.call(ctx, req, emit, false, "")
}

func (x *XAI) call(ctx context.Context, req Request, emit EmitFunc, withSearch bool, searchMode string) error {
	payload := chatPayload(req.Model, req.Messages, req.Options)
	if req.Options.ReasoningEffort != "" {
		payload["reasoning_effort"] = req.Options.ReasoningEffort
	}
	if withSearch {
		payload["search_parameters"] = map[string]any{"mode": searchMode}
	}

	tr := &chatTranslator{
		emit:           emit,
		searchProvider: model.ProviderXAI,
		searchQuery:    latestUserContent(req.Messages),
	}
	return streamChatCompletions(ctx, x.client, x.baseURL+"/chat/completions", x.apiKey, payload, tr)
}
