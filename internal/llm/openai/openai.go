// Package openai adapts the OpenAI Chat Completions API to llm.Provider.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/tools"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Provider struct {
	client openai.Client
}

func New(apiKey string, opts ...option.RequestOption) *Provider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Provider{client: openai.NewClient(opts...)}
}

func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:               req.Model,
		Messages:            buildMessages(req.System, req.Turns),
		MaxCompletionTokens: openai.Int(req.MaxTokens),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}

	out := &llm.Response{
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		StopReason: llm.StopOther,
	}
	if len(resp.Choices) == 0 {
		out.StopReason = llm.StopEndTurn
		return out, nil
	}

	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	switch choice.FinishReason {
	case "stop":
		out.StopReason = llm.StopEndTurn
	case "tool_calls":
		out.StopReason = llm.StopToolUse
	case "length":
		out.StopReason = llm.StopMaxTokens
	}
	return out, nil
}

func buildMessages(system string, turns []llm.Turn) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, t := range turns {
		switch t.Role {
		case llm.TurnAssistant:
			if len(t.ToolCalls) == 0 {
				if t.Text != "" {
					messages = append(messages, openai.AssistantMessage(t.Text))
				}
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(t.ToolCalls))
			for _, c := range t.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   c.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      c.Name,
						Arguments: string(c.Input),
					},
				})
			}
			msg := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: calls,
			}
			if t.Text != "" {
				msg.Content.OfString = openai.String(t.Text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: msg})
		default:
			// Tool results must directly follow the assistant message
			// that requested them.
			for _, r := range t.ToolResults {
				messages = append(messages, openai.ToolMessage(r.Content, r.CallID))
			}
			if t.Text != "" {
				messages = append(messages, openai.UserMessage(t.Text))
			}
		}
	}
	return messages
}

func buildTools(schemas []tools.Schema) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        string(s.Name),
				Description: openai.String(s.Description),
				Parameters:  s.JSONSchema(),
			},
		})
	}
	return out
}
