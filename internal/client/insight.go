package client

import (
	"strings"
	"time"
)

// Phase tracks where a turn ended up. A turn moves sending → streaming →
// success | error | aborted; an abort is a user action, never a failure.
type Phase string

const (
	PhaseSending   Phase = "sending"
	PhaseStreaming Phase = "streaming"
	PhaseSuccess   Phase = "success"
	PhaseError     Phase = "error"
	PhaseAborted   Phase = "aborted"
)

// Category buckets a failure by what the user can do about it.
type Category string

const (
	CategoryAuthConfig     Category = "auth_config"
	CategoryRateLimit      Category = "rate_limit"
	CategoryPayloadContext Category = "payload_context"
	CategoryServer         Category = "server"
	CategoryNetwork        Category = "network"
	CategoryUpstreamModel  Category = "upstream_model"
	CategoryCancelled      Category = "cancelled"
	CategoryUnknown        Category = "unknown"
)

// RequestInsight is the per-turn diagnostic record.
type RequestInsight struct {
	TurnID          string
	Phase           Phase
	Category        Category
	Status          int
	ErrorText       string
	SentAt          time.Time
	FirstByteMs     int64
	TotalMs         int64
	Trimmed         bool
	SummaryInjected bool
	ContextMessages int
}

// Classify buckets a failure, preferring the HTTP status and falling back to
// message heuristics when the status alone is not conclusive. A status of
// zero means the request never produced a response (transport failure).
func Classify(status int, message string) Category {
	switch {
	case status == 401 || status == 403:
		return CategoryAuthConfig
	case status == 429:
		return CategoryRateLimit
	case status == 400 || status == 413 || status == 422:
		return CategoryPayloadContext
	case status >= 500:
		return CategoryServer
	}
	return classifyText(message)
}

// classifyUpstream buckets an in-band provider error event. The relay passes
// the upstream body through verbatim, so the text may still carry a
// recognizable auth or rate-limit shape; anything else is the model's fault.
func classifyUpstream(message string) Category {
	if cat := matchText(message); cat != "" {
		return cat
	}
	return CategoryUpstreamModel
}

func classifyText(message string) Category {
	if cat := matchText(message); cat != "" {
		return cat
	}
	return CategoryUnknown
}

func matchText(message string) Category {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "api key") ||
		strings.Contains(m, "unauthorized") ||
		strings.Contains(m, "forbidden") ||
		strings.Contains(m, "authentication"):
		return CategoryAuthConfig
	case strings.Contains(m, "rate limit") ||
		strings.Contains(m, "quota") ||
		strings.Contains(m, "too many"):
		return CategoryRateLimit
	case strings.Contains(m, "too long") ||
		strings.Contains(m, "too large") ||
		strings.Contains(m, "context length") ||
		strings.Contains(m, "payload"):
		return CategoryPayloadContext
	case strings.Contains(m, "connection refused") ||
		strings.Contains(m, "connection reset") ||
		strings.Contains(m, "broken pipe") ||
		strings.Contains(m, "no such host") ||
		strings.Contains(m, "dial tcp") ||
		strings.Contains(m, "network is unreachable") ||
		strings.Contains(m, "timeout") ||
		strings.Contains(m, "deadline exceeded") ||
		strings.Contains(m, "unexpected eof"):
		return CategoryNetwork
	case strings.Contains(m, "context canceled"):
		return CategoryCancelled
	}
	return ""
}
