package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so conversation and turn
// identity shows up on every log line without touching call sites.
type LogFields struct {
	ConversationID *int64  // conversation the work belongs to
	UserID         *int64  // owning user
	ProjectID      *int64  // owning project
	TurnID         *string // client-supplied user message id for the turn
	Provider       *string // upstream provider name
	Model          *string // upstream model name
	JobID          *string // queue message id (worker side)
	Component      string  // component name, e.g. "relay.chat.orchestrator"
}

// WithLogFields enriches context with structured log fields. Multiple calls
// merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context, empty if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ConversationID != nil {
		result.ConversationID = next.ConversationID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.ProjectID != nil {
		result.ProjectID = next.ProjectID
	}
	if next.TurnID != nil {
		result.TurnID = next.TurnID
	}
	if next.Provider != nil {
		result.Provider = next.Provider
	}
	if next.Model != nil {
		result.Model = next.Model
	}
	if next.JobID != nil {
		result.JobID = next.JobID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value, for setting LogFields
// inline: logger.WithLogFields(ctx, logger.LogFields{ConversationID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging potentially long message bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
