package middleware

import (
	"fmt"
	"testing"

	"github.com/kestrelai/agentkit/pkg/types"
)

// buildConversation produces n turns; every third turn includes a tool
// round-trip tied to that turn's assistant message.
func buildConversation(n int) []types.Message {
	msgs := []types.Message{types.NewSystemMessage("sys", "be helpful")}
	for i := 0; i < n; i++ {
		msgs = append(msgs, types.NewUserMessage("user", fmt.Sprintf("question %d", i)))
		if i%3 == 0 {
			callID := fmt.Sprintf("call-%d", i)
			msgs = append(msgs,
				types.NewAssistantMessage("bot", "", []types.ToolCallRequest{{CallID: callID, ToolName: "lookup"}}),
				types.NewToolMessage("lookup", callID, true, "result", ""),
				types.NewAssistantMessage("bot", fmt.Sprintf("answer %d", i), nil),
			)
			continue
		}
		msgs = append(msgs, types.NewAssistantMessage("bot", fmt.Sprintf("answer %d", i), nil))
	}
	return msgs
}

func TestCompactTurns_KeepsTurnsAtomic(t *testing.T) {
	msgs := buildConversation(10)
	compacted := CompactTurns(msgs, 3)

	// System messages survive unconditionally.
	systems := 0
	for _, m := range compacted {
		if m.Role == types.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Errorf("system messages = %d, want 1", systems)
	}

	// Every retained user message has its assistant answer retained.
	assistantTexts := make(map[string]bool)
	for _, m := range compacted {
		if m.Role == types.RoleAssistant && m.Text != "" {
			assistantTexts[m.Text] = true
		}
	}
	for _, m := range compacted {
		if m.Role != types.RoleUser {
			continue
		}
		var i int
		fmt.Sscanf(m.Text, "question %d", &i)
		if !assistantTexts[fmt.Sprintf("answer %d", i)] {
			t.Errorf("retained %q without its paired assistant answer", m.Text)
		}
	}

	// No tool message without its originating assistant tool call.
	toolCallIDs := make(map[string]bool)
	for _, m := range compacted {
		for _, call := range m.ToolCalls {
			toolCallIDs[call.CallID] = true
		}
	}
	for _, m := range compacted {
		if m.Role == types.RoleTool && !toolCallIDs[m.CallID] {
			t.Errorf("tool message %s retained without its originating assistant", m.CallID)
		}
	}

	// Only the last 3 turns remain.
	users := 0
	for _, m := range compacted {
		if m.Role == types.RoleUser {
			users++
		}
	}
	if users != 3 {
		t.Errorf("retained user messages = %d, want 3", users)
	}
}

func TestCompactTurns_UnderLimitUnchanged(t *testing.T) {
	msgs := buildConversation(2)
	compacted := CompactTurns(msgs, 5)
	if len(compacted) != len(msgs) {
		t.Errorf("len = %d, want %d (unchanged)", len(compacted), len(msgs))
	}
}

func TestContextCompactionMiddleware_OnlyModelCalls(t *testing.T) {
	mw := NewContextCompactionMiddleware(1)

	data := &ToolCallData{ToolName: "x"}
	ctx := NewContext(OpToolCall, "a", nil, data)
	if err := mw.ProcessRequest(ctx); err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}

	msgs := buildConversation(4)
	mctx := NewContext(OpModelCall, "a", nil, &ModelCallData{Messages: msgs})
	if err := mw.ProcessRequest(mctx); err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	got := mctx.Data.(*ModelCallData).Messages
	if len(got) >= len(msgs) {
		t.Errorf("model-call messages not compacted: %d -> %d", len(msgs), len(got))
	}
}
