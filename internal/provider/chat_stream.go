package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/sse"
	"courier.chat/relay/internal/stream"
)

// completionChunk is the incremental shape shared by all chat-completions
// compatible upstreams. Citations only appear on xAI responses.
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage     map[string]any `json:"usage"`
	Citations []string       `json:"citations"`
}

// chatTranslator folds completion chunks into chat events. It tracks the
// reasoning-to-content transition so think time is reported once, and emits
// citations as a single search event the first time they appear.
type chatTranslator struct {
	emit EmitFunc

	searchProvider string
	searchQuery    string

	reasoningStart time.Time
	thinkingDone   bool
	citationsSent  bool
	usageSent      bool
}

func (t *chatTranslator) chunk(c completionChunk) error {
	if len(c.Citations) > 0 && !t.citationsSent {
		t.citationsSent = true
		results := make([]model.SearchResult, 0, len(c.Citations))
		for _, u := range c.Citations {
			results = append(results, model.SearchResult{URL: u})
		}
		if err := t.emit(stream.Event{Type: stream.TypeSearch, Search: &model.SearchBundle{
			Provider: t.searchProvider,
			Query:    t.searchQuery,
			Results:  results,
		}}); err != nil {
			return err
		}
	}

	for _, choice := range c.Choices {
		if rc := choice.Delta.ReasoningContent; rc != "" {
			if t.reasoningStart.IsZero() {
				t.reasoningStart = time.Now()
			}
			if err := t.emit(stream.Reasoning(rc)); err != nil {
				return err
			}
		}
		if content := choice.Delta.Content; content != "" {
			if !t.reasoningStart.IsZero() && !t.thinkingDone {
				t.thinkingDone = true
				ms := time.Since(t.reasoningStart).Milliseconds()
				if err := t.emit(stream.Event{Type: stream.TypeMeta, Meta: &stream.Meta{ThinkingMs: ms}}); err != nil {
					return err
				}
			}
			if err := t.emit(stream.Delta(content)); err != nil {
				return err
			}
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			if err := t.emit(stream.Event{Type: stream.TypeMeta, Meta: &stream.Meta{StopReason: *choice.FinishReason}}); err != nil {
				return err
			}
		}
	}

	if c.Usage != nil && !t.usageSent {
		if usage := mapUsage(c.Usage); usage != nil {
			t.usageSent = true
			if err := t.emit(stream.Event{Type: stream.TypeUsage, Usage: usage}); err != nil {
				return err
			}
		}
	}
	return nil
}

// streamChatCompletions issues a streaming chat-completions call and feeds
// each chunk through the translator. A non-2xx response is returned as an
// UpstreamError carrying status and body.
func streamChatCompletions(ctx context.Context, client *http.Client, url, apiKey string, payload map[string]any, tr *chatTranslator) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &UpstreamError{Status: resp.StatusCode, Body: trimBody(respBody)}
	}

	return sse.Read(resp.Body, func(rec sse.Record) error {
		if rec.Data == stream.DoneData {
			return sse.ErrStop
		}
		var chunk completionChunk
		if err := json.Unmarshal([]byte(rec.Data), &chunk); err != nil {
			// Malformed chunks are skipped, never fatal.
			return nil
		}
		return tr.chunk(chunk)
	})
}

// chatPayload builds the common chat-completions request body.
func chatPayload(modelName string, messages []model.Message, opts Options) map[string]any {
	msgs := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, map[string]any{"role": m.Role, "content": m.Content})
	}
	payload := map[string]any{
		"model":          modelName,
		"messages":       msgs,
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
	}
	if opts.OutputTokens > 0 {
		payload["max_tokens"] = opts.OutputTokens
	}
	return payload
}
