// Package provider holds the upstream adapters. Each adapter translates the
// canonical message list into its provider's request shape and translates the
// provider's native stream into chat events, hiding authentication and
// endpoint details from the orchestrator.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"courier.chat/relay/core/config"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/stream"
	"courier.chat/relay/internal/websearch"
)

const defaultHTTPTimeout = 300 * time.Second

// Options are the per-turn generation knobs resolved from session state.
// Adapters map only the knobs their provider understands and ignore the rest.
type Options struct {
	ReasoningEffort string
	EnableThinking  bool
	ThinkingBudget  int
	ThinkingLevel   string
	OutputTokens    int
	OutputEffort    string
	WebSearch       bool
	XAISearchMode   string
	EnableTools     bool
}

// Request is one upstream generation call.
type Request struct {
	Model    string
	Messages []model.Message
	Options  Options
}

// EmitFunc receives translated events in arrival order. Returning an error
// stops the upstream read.
type EmitFunc func(stream.Event) error

// Adapter streams one provider's output as chat events.
type Adapter interface {
	Name() string
	SupportsAttachments() bool
	Stream(ctx context.Context, req Request, emit EmitFunc) error
}

// UpstreamError is a non-success HTTP response from a provider. The body is
// carried verbatim so the failure is never swallowed.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Registry is the closed set of dispatchable adapters, keyed by provider
// name. Adding a provider means one adapter and one registration here.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds adapters for every configured provider. The searcher is
// optional; without it the poe adapter skips pre-fetch search injection.
func NewRegistry(cfg config.ProvidersConfig, searcher websearch.Searcher) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	if cfg.DeepSeek.Enabled() {
		r.register(NewDeepSeek(cfg.DeepSeek))
	}
	if cfg.XAI.Enabled() {
		r.register(NewXAI(cfg.XAI))
	}
	if cfg.Poe.Enabled() {
		r.register(NewPoe(cfg.Poe, searcher))
	}
	if cfg.Local.Enabled() {
		r.register(NewLocal(cfg.Local))
	}
	return r
}

func (r *Registry) register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for the given provider name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names lists the registered providers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// EstimateTokens applies the fixed chars-per-token heuristic used across
// budget trimming, usage fallback and compaction triggering. Several
// thresholds are tuned against it; changing it changes trimming behavior.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// mapUsage translates an upstream usage object into the canonical shape.
// Usage that does not resolve to all three numeric fields is discarded.
func mapUsage(raw map[string]any) *model.Usage {
	prompt, ok1 := usageField(raw, "prompt_tokens", "input_tokens")
	completion, ok2 := usageField(raw, "completion_tokens", "output_tokens")
	total, ok3 := usageField(raw, "total_tokens")
	if !ok1 || !ok2 || !ok3 {
		return nil
	}
	return &model.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
}

func usageField(raw map[string]any, names ...string) (int, bool) {
	for _, name := range names {
		if v, ok := raw[name].(float64); ok {
			return int(v), true
		}
	}
	return 0, false
}

// latestUserContent returns the content of the last user message, used as
// the search query for pre-fetch injection.
func latestUserContent(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

func trimBody(body []byte) string {
	return strings.TrimSpace(string(body))
}
