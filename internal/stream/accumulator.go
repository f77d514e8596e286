package stream

import (
	"strings"

	"courier.chat/relay/internal/model"
)

// Accumulator folds a consumed stream into the final assistant message
// fields. Content and reasoning fragments are concatenated in arrival order.
type Accumulator struct {
	content   strings.Builder
	reasoning strings.Builder

	Usage       *model.Usage
	Credits     *float64
	Search      *model.SearchBundle
	FirstByteMs int64
	ThinkingMs  int64
	StopReason  string
	ErrorText   string
}

// Add folds one event into the accumulator.
func (a *Accumulator) Add(ev Event) {
	switch ev.Type {
	case TypeDelta:
		a.content.WriteString(ev.Content)
	case TypeReasoning:
		a.reasoning.WriteString(ev.Content)
	case TypeUsage:
		if ev.Usage != nil {
			a.Usage = ev.Usage
		}
	case TypeCredits:
		if ev.Credits != nil {
			a.Credits = ev.Credits
		}
	case TypeSearch:
		if ev.Search != nil {
			a.Search = ev.Search
		}
	case TypeMeta:
		if ev.Meta != nil {
			if ev.Meta.FirstByteMs > 0 {
				a.FirstByteMs = ev.Meta.FirstByteMs
			}
			if ev.Meta.ThinkingMs > 0 {
				a.ThinkingMs = ev.Meta.ThinkingMs
			}
			if ev.Meta.StopReason != "" {
				a.StopReason = ev.Meta.StopReason
			}
		}
	case TypeError:
		a.ErrorText = ev.ErrorText
	}
}

// Content returns the ordered concatenation of every delta fragment.
func (a *Accumulator) Content() string { return a.content.String() }

// Reasoning returns the ordered concatenation of every reasoning fragment.
func (a *Accumulator) Reasoning() string { return a.reasoning.String() }
