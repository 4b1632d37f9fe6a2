package eval

import (
	"strings"

	"github.com/kestrelai/agentkit/pkg/types"
)

// Extraction selects which part of a trajectory counts as "the answer" for
// reference-based judges.
type Extraction string

const (
	// ExtractLastContent takes the text of the last message, whatever its
	// role.
	ExtractLastContent Extraction = "last_content"
	// ExtractLastAssistant takes the last assistant message, skipping tool
	// results.
	ExtractLastAssistant Extraction = "last_assistant"
	// ExtractAllAssistant concatenates every assistant message.
	ExtractAllAssistant Extraction = "all_assistant"
	// ExtractLastNonEmpty takes the last message with non-empty text.
	ExtractLastNonEmpty Extraction = "last_non_empty"
)

// Extract applies strategy to messages. Unknown strategies behave like
// ExtractLastAssistant.
func Extract(messages []types.Message, strategy Extraction) string {
	switch strategy {
	case ExtractLastContent:
		if len(messages) == 0 {
			return ""
		}
		return messages[len(messages)-1].Text
	case ExtractAllAssistant:
		var parts []string
		for _, m := range messages {
			if m.Role == types.RoleAssistant && m.Text != "" {
				parts = append(parts, m.Text)
			}
		}
		return strings.Join(parts, "\n")
	case ExtractLastNonEmpty:
		for i := len(messages) - 1; i >= 0; i-- {
			if strings.TrimSpace(messages[i].Text) != "" {
				return messages[i].Text
			}
		}
		return ""
	default: // ExtractLastAssistant
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == types.RoleAssistant {
				return messages[i].Text
			}
		}
		return ""
	}
}
