// Package llm defines the provider-neutral inference contract used by the
// executor, plus model routing and cost accounting.
package llm

import (
	"context"
	"encoding/json"

	"github.com/mtzanidakis/agentcrew/internal/tools"
)

type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Turn is one conversation entry. A user turn carries Text or
// ToolResults; an assistant turn carries Text and/or ToolCalls.
type Turn struct {
	Role        TurnRole
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

type Request struct {
	Model     string
	System    string
	Tools     []tools.Schema
	Turns     []Turn
	MaxTokens int64
}

type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// Done reports whether the response ends the tool-calling loop.
func (r *Response) Done() bool {
	return r.StopReason == StopEndTurn || len(r.ToolCalls) == 0
}

// Provider performs one inference call.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
