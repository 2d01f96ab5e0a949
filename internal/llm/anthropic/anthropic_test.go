package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/tools"
)

func TestBuildMessages(t *testing.T) {
	turns := []llm.Turn{
		{Role: llm.TurnUser, Text: "Task: build it"},
		{Role: llm.TurnAssistant, Text: "on it", ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "send_message", Input: json.RawMessage(`{"to_agent":"Atlas","content":"hi"}`)},
		}},
		{Role: llm.TurnUser, ToolResults: []llm.ToolResult{{CallID: "call_1", Content: "Message sent to Atlas"}}},
		{Role: llm.TurnAssistant},
	}
	msgs := buildMessages(turns)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages (empty assistant dropped), got %d", len(msgs))
	}
	if len(msgs[1].Content) != 2 {
		t.Errorf("expected text and tool_use blocks, got %d", len(msgs[1].Content))
	}
	if msgs[2].Content[0].OfToolResult == nil {
		t.Error("expected a tool_result block")
	}
}

func TestBuildTools(t *testing.T) {
	out := buildTools(tools.RoleReviewer.Schemas())
	if len(out) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(out))
	}
	for _, tool := range out {
		if tool.OfTool == nil {
			t.Fatal("expected plain tool param")
		}
		if len(tool.OfTool.InputSchema.Required) == 0 {
			t.Errorf("tool %s has no required params", tool.OfTool.Name)
		}
	}
}
