// Package client is the reference driver for the turn endpoint. It owns the
// caller side of a turn: context trimming, SSE consumption, abort handling,
// and the per-request insight record the relay's own surfaces display.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"courier.chat/relay/internal/chat"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/stream"
	"courier.chat/relay/internal/summary"
)

const defaultRecentWindow = 12

// Config wires a Client to one relay deployment acting as one user.
type Config struct {
	BaseURL    string
	UserID     int64
	ProjectID  int64
	HTTPClient *http.Client

	// Policy mirrors the server's compaction trigger so the client can
	// pre-trim oversized context windows instead of shipping them whole.
	Policy summary.TriggerPolicy

	// RecentWindow is how many trailing messages survive a pre-trim.
	RecentWindow int
}

// TurnInput is one outbound turn: the draft the user typed plus the context
// the client wants replayed. History excludes the draft.
type TurnInput struct {
	ConversationID int64
	Provider       string
	Model          string
	History        []model.Message
	Draft          string
	Attachments    []chat.TurnAttachment

	ReasoningEffort *string
	EnableThinking  *bool
	ThinkingBudget  *int
	ThinkingLevel   *string
	OutputTokens    *int
	OutputEffort    *string
	WebSearch       *bool
	XAISearchMode   *string
	EnableTools     *bool

	// OnEvent, when set, observes every decoded event as it arrives.
	OnEvent func(stream.Event)
}

// TurnResult is the settled turn. Draft is non-empty only when the turn
// failed and the text should be restored to the composer.
type TurnResult struct {
	ConversationID     int64
	UserMessageID      string
	AssistantMessageID string
	Content            string
	Reasoning          string
	Usage              *model.Usage
	Search             *model.SearchBundle
	StopReason         string
	Draft              string
	Insight            RequestInsight
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = defaultRecentWindow
	}
	return &Client{cfg: cfg, http: cfg.HTTPClient}
}

// SendTurn issues one turn and consumes the response stream to completion.
// Cancelling ctx mid-stream settles the turn as aborted with the partial
// content kept; it is not an error. Every other failure restores the draft
// and returns a classified insight alongside the error.
func (c *Client) SendTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	result := &TurnResult{
		ConversationID:     in.ConversationID,
		UserMessageID:      uuid.NewString(),
		AssistantMessageID: uuid.NewString(),
	}
	result.Insight = RequestInsight{
		TurnID: result.UserMessageID,
		Phase:  PhaseSending,
		SentAt: time.Now().UTC(),
	}

	body, err := json.Marshal(c.buildRequest(in, result))
	if err != nil {
		return c.fail(result, in.Draft, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/chat/turn", bytes.NewReader(body))
	if err != nil {
		return c.fail(result, in.Draft, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-User-Id", strconv.FormatInt(c.cfg.UserID, 10))
	if c.cfg.ProjectID != 0 {
		req.Header.Set("X-Project-Id", strconv.FormatInt(c.cfg.ProjectID, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return c.abort(result, in.Draft), nil
		}
		return c.fail(result, in.Draft, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return c.fail(result, in.Draft, resp.StatusCode, errors.New(string(bytes.TrimSpace(reason))))
	}

	result.Insight.Phase = PhaseStreaming
	c.readStreamHeaders(resp, result)

	var acc stream.Accumulator
	err = stream.Decode(resp.Body, func(ev stream.Event) error {
		acc.Add(ev)
		if in.OnEvent != nil {
			in.OnEvent(ev)
		}
		return nil
	}, nil)

	c.fold(&acc, result)

	if err != nil {
		if ctx.Err() != nil {
			return c.abort(result, in.Draft), nil
		}
		return c.fail(result, in.Draft, 0, err)
	}
	if acc.ErrorText != "" {
		return c.failWith(result, in.Draft, classifyUpstream(acc.ErrorText), errors.New(acc.ErrorText))
	}

	result.Insight.Phase = PhaseSuccess
	result.Insight.TotalMs = time.Since(result.Insight.SentAt).Milliseconds()
	return result, nil
}

func (c *Client) buildRequest(in TurnInput, result *TurnResult) chat.TurnRequest {
	// Only messages after the most recent context-clear marker are eligible
	// for resend; the marker itself never travels upstream.
	messages, trimmed := c.trim(model.ActiveContext(in.History))
	result.Insight.Trimmed = trimmed

	wire := make([]chat.TurnMessage, 0, len(messages)+1)
	for _, m := range messages {
		wire = append(wire, chat.TurnMessage{Role: m.Role, Content: m.Content})
	}
	wire = append(wire, chat.TurnMessage{
		Role:        model.RoleUser,
		Content:     in.Draft,
		Attachments: in.Attachments,
	})

	return chat.TurnRequest{
		ConversationID:     in.ConversationID,
		ProjectID:          c.cfg.ProjectID,
		Messages:           wire,
		MessagesTrimmed:    trimmed,
		Provider:           in.Provider,
		Model:              in.Model,
		UserMessageID:      result.UserMessageID,
		AssistantMessageID: result.AssistantMessageID,
		ReasoningEffort:    in.ReasoningEffort,
		EnableThinking:     in.EnableThinking,
		ThinkingBudget:     in.ThinkingBudget,
		ThinkingLevel:      in.ThinkingLevel,
		OutputTokens:       in.OutputTokens,
		OutputEffort:       in.OutputEffort,
		WebSearch:          in.WebSearch,
		XAISearchMode:      in.XAISearchMode,
		EnableTools:        in.EnableTools,
	}
}

// trim drops the oldest history once the window crosses the compaction
// policy; the server injects its rolling summary to cover the gap.
func (c *Client) trim(history []model.Message) ([]model.Message, bool) {
	if len(history) <= c.cfg.RecentWindow {
		return history, false
	}
	if !c.cfg.Policy.ShouldCompact(history, 0) {
		return history, false
	}
	return history[len(history)-c.cfg.RecentWindow:], true
}

func (c *Client) readStreamHeaders(resp *http.Response, result *TurnResult) {
	if v := resp.Header.Get("X-Conversation-Id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			result.ConversationID = id
		}
	}
	result.Insight.SummaryInjected = resp.Header.Get("X-Summary-Injected") == "true"
	if v := resp.Header.Get("X-Context-Messages"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			result.Insight.ContextMessages = n
		}
	}
}

func (c *Client) fold(acc *stream.Accumulator, result *TurnResult) {
	result.Content = acc.Content()
	result.Reasoning = acc.Reasoning()
	result.Usage = acc.Usage
	result.Search = acc.Search
	result.StopReason = acc.StopReason
	result.Insight.FirstByteMs = acc.FirstByteMs
}

func (c *Client) abort(result *TurnResult, draft string) *TurnResult {
	result.Insight.Phase = PhaseAborted
	result.Insight.Category = CategoryCancelled
	result.Insight.TotalMs = time.Since(result.Insight.SentAt).Milliseconds()
	result.Draft = draft
	return result
}

func (c *Client) fail(result *TurnResult, draft string, status int, cause error) (*TurnResult, error) {
	result.Insight.Status = status
	return c.failWith(result, draft, Classify(status, cause.Error()), cause)
}

func (c *Client) failWith(result *TurnResult, draft string, category Category, cause error) (*TurnResult, error) {
	result.Insight.Phase = PhaseError
	result.Insight.ErrorText = cause.Error()
	result.Insight.Category = category
	result.Insight.TotalMs = time.Since(result.Insight.SentAt).Milliseconds()
	result.Draft = draft
	return result, fmt.Errorf("turn failed: %w", cause)
}
