package tool

import (
	"strings"

	"github.com/google/uuid"
)

// ToolEndCall is the platform-defined function that hangs up the call.
const ToolEndCall = "endCall"

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Invocation is one entry of an OpenAI-style tool_calls delta.
type Invocation struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// EndCallInvocation builds the endCall tool call. An empty id gets a fresh one.
func EndCallInvocation(id string) Invocation {
	id = strings.TrimSpace(id)
	if id == "" {
		id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return Invocation{
		Index: 0,
		ID:    id,
		Type:  "function",
		Function: FunctionCall{
			Name:      ToolEndCall,
			Arguments: "{}",
		},
	}
}

// Definition is the assistant-side declaration of a tool.
type Definition struct {
	Type string `json:"type"`
}

// Definitions lists the tools the assistant must have enabled on the voice
// platform for the agent's output to be honoured.
func Definitions() []Definition {
	return []Definition{
		{Type: ToolEndCall},
	}
}
