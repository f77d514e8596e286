package chat

import (
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/provider"
)

// overlapWindow is how many summarized messages are resent verbatim so the
// model keeps local continuity across the summary boundary.
const overlapWindow = 4

const summaryPreamble = "Summary of the earlier part of this conversation. " +
	"Use it as background context only; do not quote it verbatim:\n\n"

// ContextResult is the upstream message list plus the diagnostics reported
// back to the client in response headers.
type ContextResult struct {
	Messages        []model.Message
	SummaryInjected bool
}

// BuildContext produces the exact message list to send upstream. messages is
// the active context (everything after the last context-clear marker), oldest
// first. Pure and deterministic.
//
// When a summary exists, messages already covered by it are dropped up to the
// overlap window, the summary is prepended as a system message, and its token
// cost is charged against the budget. The tail of the list is then trimmed
// backward to the budget, never below minKeep trailing messages and never to
// zero.
func BuildContext(messages []model.Message, summary string, summaryMessageCount, tokenBudget, minKeep int, preTrimmed bool) ContextResult {
	if minKeep < 1 {
		minKeep = 1
	}

	history := messages
	var summaryMsg model.Message
	injected := false

	if summary != "" {
		if !preTrimmed {
			offset := summaryMessageCount - overlapWindow
			if offset < 0 {
				offset = 0
			}
			if offset > len(history) {
				offset = len(history)
			}
			history = history[offset:]
		}
		if len(history) == 0 && len(messages) > 0 {
			keep := minKeep
			if keep > len(messages) {
				keep = len(messages)
			}
			history = messages[len(messages)-keep:]
		}

		summaryMsg = model.Message{Role: model.RoleSystem, Content: summaryPreamble + summary}
		tokenBudget -= provider.EstimateTokens(summaryMsg.Content)
		injected = true
	}

	history = trimToBudget(history, tokenBudget, minKeep)

	if !injected {
		return ContextResult{Messages: history}
	}
	out := make([]model.Message, 0, len(history)+1)
	out = append(out, summaryMsg)
	out = append(out, history...)
	return ContextResult{Messages: out, SummaryInjected: true}
}

// trimToBudget keeps the longest suffix that fits the estimated token budget,
// but always at least min(minKeep, len) trailing messages, and never zero.
func trimToBudget(messages []model.Message, tokenBudget, minKeep int) []model.Message {
	if len(messages) == 0 {
		return messages
	}

	used := 0
	keptFrom := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := provider.EstimateTokens(messages[i].Content)
		if used+cost > tokenBudget && len(messages)-keptFrom >= minKeep {
			break
		}
		used += cost
		keptFrom = i
	}

	kept := messages[keptFrom:]
	if len(kept) == 0 {
		kept = messages[len(messages)-1:]
	}
	return kept
}
