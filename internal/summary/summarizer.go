// Package summary generates and regenerates the rolling conversation summary
// used to stand in for early turns under the context token budget.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"courier.chat/relay/common/llm"
	"courier.chat/relay/core/config"
	"courier.chat/relay/internal/model"
)

// ErrEmptySummary is the distinct outcome for a summarization call that
// succeeded but produced nothing usable. Callers must not overwrite an
// existing summary on it.
var ErrEmptySummary = errors.New("summarizer returned empty summary")

// Summarizer folds conversation messages into a compressed summary. The
// prior summary, when present, is passed as compaction context so coverage
// extends rather than restarts.
type Summarizer interface {
	Summarize(ctx context.Context, priorSummary string, messages []model.Message) (string, error)
}

const systemPrompt = `You compress chat conversations into concise running summaries.
Capture the topics discussed, decisions made, facts established, and any open
threads the assistant should remember. Write in third person, at most 250
words. Do not invent details and do not include formatting.`

// maxTranscriptChars bounds the prompt so a very long uncovered suffix does
// not blow the summarizer's own context window.
const maxTranscriptChars = 24000

type summaryResponse struct {
	Summary string `json:"summary" jsonschema_description:"Compressed summary of the conversation so far"`
}

var summarySchema = llm.GenerateSchema[summaryResponse]()

type llmSummarizer struct {
	client llm.Client
}

func New(cfg config.SummarizerConfig) (Summarizer, error) {
	client, err := llm.New(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("create summarizer client: %w", err)
	}
	return &llmSummarizer{client: client}, nil
}

func (s *llmSummarizer) Summarize(ctx context.Context, priorSummary string, messages []model.Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptySummary
	}

	var out summaryResponse
	_, err := s.client.Chat(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPrompt(priorSummary, messages),
		SchemaName:   "conversation_summary",
		Schema:       summarySchema,
		MaxTokens:    600,
		Temperature:  llm.Temp(0.2),
	}, &out)
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}

	result := strings.TrimSpace(out.Summary)
	if result == "" {
		return "", ErrEmptySummary
	}
	return result, nil
}

func buildPrompt(priorSummary string, messages []model.Message) string {
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString("Existing summary of earlier turns (extend it, do not drop its facts):\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("New conversation turns to fold in:\n")

	transcript := renderTranscript(messages)
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[len(transcript)-maxTranscriptChars:]
	}
	b.WriteString(transcript)
	b.WriteString("\nProduce the updated summary.")
	return b.String()
}

func renderTranscript(messages []model.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
