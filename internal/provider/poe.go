package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"courier.chat/relay/core/config"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/sse"
	"courier.chat/relay/internal/stream"
	"courier.chat/relay/internal/websearch"
)

const (
	poeDefaultBaseURL   = "https://api.poe.com"
	poeSearchResultsMax = 5
)

// Poe streams from a Poe-compatible bot endpoint. Poe bots cannot search on
// their own, so when web search is enabled the adapter pre-fetches results
// for the latest user message, prepends them as a system message, and emits
// the search event before any content.
type Poe struct {
	client   *http.Client
	apiKey   string
	baseURL  string
	searcher websearch.Searcher
}

func NewPoe(cfg config.ProviderConfig, searcher websearch.Searcher) *Poe {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = poeDefaultBaseURL
	}
	return &Poe{
		client:   newHTTPClient(),
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		searcher: searcher,
	}
}

func (p *Poe) Name() string              { return model.ProviderPoe }
func (p *Poe) SupportsAttachments() bool { return true }

func (p *Poe) Stream(ctx context.Context, req Request, emit EmitFunc) error {
	messages := req.Messages

	if req.Options.WebSearch && p.searcher != nil {
		query := latestUserContent(messages)
		if query != "" {
			results, err := p.searcher.Search(ctx, query, poeSearchResultsMax)
			switch {
			case err != nil:
				// Search is augmentation, not a dependency of the turn.
				slog.WarnContext(ctx, "pre-fetch search failed, continuing without results",
					"model", req.Model, "error", err)
			case len(results) > 0:
				messages = prependSearchContext(messages, query, results)
				ev := stream.Event{Type: stream.TypeSearch, Search: &model.SearchBundle{
					Provider: model.ProviderPoe,
					Query:    query,
					Results:  results,
				}}
				if err := emit(ev); err != nil {
					return err
				}
			}
		}
	}

	return p.call(ctx, req.Model, messages, emit)
}

// poeEvent is the data payload of a Poe protocol record; the record's event
// name discriminates (text, replace_response, error, done).
type poeEvent struct {
	Text       string `json:"text"`
	AllowRetry bool   `json:"allow_retry"`
}

func (p *Poe) call(ctx context.Context, botName string, messages []model.Message, emit EmitFunc) error {
	query := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == model.RoleAssistant {
			role = "bot"
		}
		query = append(query, map[string]any{"role": role, "content": m.Content})
	}
	body, err := json.Marshal(map[string]any{
		"version": "1.0",
		"type":    "query",
		"query":   query,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/bot/"+botName, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &UpstreamError{Status: resp.StatusCode, Body: trimBody(respBody)}
	}

	// sent tracks everything already emitted as deltas so replace_response
	// can be reconciled with the append-only downstream protocol.
	var sent strings.Builder
	return sse.Read(resp.Body, func(rec sse.Record) error {
		var payload poeEvent
		if rec.Data != "" {
			if err := json.Unmarshal([]byte(rec.Data), &payload); err != nil {
				return nil
			}
		}
		switch rec.Event {
		case "text":
			if payload.Text == "" {
				return nil
			}
			sent.WriteString(payload.Text)
			return emit(stream.Delta(payload.Text))
		case "replace_response":
			// Only a replacement that extends what the client already has
			// can be expressed as a delta; anything else is dropped and the
			// subsequent text events re-converge.
			if rest, ok := strings.CutPrefix(payload.Text, sent.String()); ok && rest != "" {
				sent.WriteString(rest)
				return emit(stream.Delta(rest))
			}
			return nil
		case "error":
			return fmt.Errorf("upstream error: %s", payload.Text)
		case "done":
			return sse.ErrStop
		default:
			return nil
		}
	})
}

func prependSearchContext(messages []model.Message, query string, results []model.SearchResult) []model.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Web search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	b.WriteString("Use these results to ground your answer and cite source URLs where relevant.")

	out := make([]model.Message, 0, len(messages)+1)
	out = append(out, model.Message{Role: model.RoleSystem, Content: b.String()})
	out = append(out, messages...)
	return out
}
