package planner

import "github.com/tmc/langchaingo/llms"

// Kind tags the planner's reply. Exactly three variants exist so the
// orchestrator's branching is exhaustive.
type Kind int

const (
	// KindFinalAnswer means the model produced a final user-facing text.
	KindFinalAnswer Kind = iota
	// KindToolCalls means the model requested one or more tool executions.
	KindToolCalls
	// KindOther covers anomalous replies: no text and no tool calls.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFinalAnswer:
		return "final_answer"
	case KindToolCalls:
		return "tool_calls"
	default:
		return "other"
	}
}

// ToolCall is one requested tool execution.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON, decoded by the executor
}

// Decision is the classified outcome of one planner turn.
type Decision struct {
	Kind       Kind
	Text       string     // final answer, or thinking text alongside tool calls
	Calls      []ToolCall // set when Kind == KindToolCalls
	StopReason string

	// Token usage for the turn, zero when the provider reports none.
	InputTokens  int64
	OutputTokens int64
}

// AssistantTurn rebuilds the model's raw turn as a conversation
// message, preserving both text and tool-call parts so the trace
// survives into session history.
func (d Decision) AssistantTurn() llms.MessageContent {
	msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if d.Text != "" {
		msg.Parts = append(msg.Parts, llms.TextContent{Text: d.Text})
	}
	for _, call := range d.Calls {
		msg.Parts = append(msg.Parts, llms.ToolCall{
			ID:   call.ID,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	if len(msg.Parts) == 0 {
		msg.Parts = append(msg.Parts, llms.TextContent{Text: ""})
	}
	return msg
}
