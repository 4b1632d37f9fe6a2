package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kestrelai/agentkit/internal/schema"
	"github.com/kestrelai/agentkit/internal/tool"
	"github.com/kestrelai/agentkit/pkg/types"
)

const agentToolSchemaJSON = `{
  "type": "object",
  "properties": {
    "task": {"type": "string", "description": "The task to delegate to the nested agent."}
  },
  "required": ["task"]
}`

// agentTool wraps an Agent as a callable Tool:
// invoking it runs the nested agent over a fresh, isolated AgentContext and
// returns the assistant's final text as the tool result. Conversation state
// never leaks between invocations or into the outer agent's context.
type agentTool struct {
	agent *Agent
	spec  *schema.Spec
}

// AsTool exposes agent as a Tool named after the agent. The tool's
// description is the agent's description, so selection-by-model works the
// same way whether the agent is a peer in an orchestration or a tool in a
// registry.
func AsTool(agent *Agent) (tool.Tool, error) {
	spec, err := schema.Compile("agent_tool_"+agent.Name(), json.RawMessage(agentToolSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("agent tool: %w", err)
	}
	return &agentTool{agent: agent, spec: spec}, nil
}

func (t *agentTool) Name() string                     { return t.agent.Name() }
func (t *agentTool) Description() string              { return t.agent.Description() }
func (t *agentTool) ParameterSchema() *schema.Spec    { return t.spec }
func (t *agentTool) ApprovalMode() types.ApprovalMode { return types.ApprovalNever }
func (t *agentTool) IsAgentTool() bool                { return true }

func (t *agentTool) Invoke(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
	var params struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	resp, err := t.agent.Run(ctx, params.Task, types.NewAgentContext())
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if resp.FinishReason != FinishStop {
		return types.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("nested agent finished with %s", resp.FinishReason),
		}, nil
	}

	final := ""
	for _, m := range resp.Context.Messages() {
		if m.Role == types.RoleAssistant {
			final = m.Text
		}
	}
	return types.ToolResult{Result: final, Success: true}, nil
}
