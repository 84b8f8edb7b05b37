package llm

import "unicode/utf8"

// attachmentTokenCost is the flat budget charged per attachment; binary
// payloads do not tokenize linearly so a fixed estimate is used.
const attachmentTokenCost = 512

// EstimateTokens approximates the token footprint of a message. The usual
// four-characters-per-token heuristic is good enough for budget trimming.
func EstimateTokens(m Message) int {
	n := utf8.RuneCountInString(m.Text) / 4
	for _, v := range m.Context {
		n += utf8.RuneCountInString(v) / 4
	}
	n += len(m.Attachments) * attachmentTokenCost
	return n + 4 // per-message framing overhead
}

// TrimToBudget drops the oldest turns until the conversation fits the token
// budget. The most recent user turn always survives, even if it alone
// exceeds the budget.
func TrimToBudget(messages []Message, budget int) []Message {
	if len(messages) == 0 || budget <= 0 {
		return messages
	}

	lastUser := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			lastUser = i
			break
		}
	}

	total := 0
	cut := 0 // index of the oldest retained message
	for i := len(messages) - 1; i >= 0; i-- {
		total += EstimateTokens(messages[i])
		if total > budget {
			cut = i + 1
			break
		}
	}
	if lastUser >= 0 && cut > lastUser {
		cut = lastUser
	}
	return messages[cut:]
}
