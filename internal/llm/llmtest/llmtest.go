// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mtzanidakis/agentcrew/internal/llm"
)

// Script returns the response for one call. The request is the one the
// provider received, so scripts can react to tool results.
type Script func(req llm.Request) (*llm.Response, error)

// Provider replays scripts per agent. Calls are keyed by the model field,
// which tests set to the agent name, and fall back to Default.
type Provider struct {
	mu       sync.Mutex
	scripts  map[string][]Script
	Default  Script
	Requests []llm.Request
}

func New() *Provider {
	return &Provider{scripts: make(map[string][]Script)}
}

// On queues scripts for the given model key, consumed in order.
func (p *Provider) On(model string, scripts ...Script) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[model] = append(p.scripts[model], scripts...)
	return p
}

func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	queue := p.scripts[req.Model]
	var next Script
	if len(queue) > 0 {
		next = queue[0]
		p.scripts[req.Model] = queue[1:]
	} else {
		next = p.Default
	}
	p.mu.Unlock()

	if next == nil {
		return Text("done")(req)
	}
	return next(req)
}

// Calls returns how many requests were made for model.
func (p *Provider) Calls(model string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.Requests {
		if r.Model == model {
			n++
		}
	}
	return n
}

// Text ends the loop with text.
func Text(text string) Script {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Text:       text,
			StopReason: llm.StopEndTurn,
			Usage:      llm.Usage{InputTokens: 100, OutputTokens: 50},
		}, nil
	}
}

// Call is one tool invocation for Tools.
type Call struct {
	Name string
	Args any
}

// Tools requests the given tool calls, with optional accompanying text.
func Tools(text string, calls ...Call) Script {
	return func(req llm.Request) (*llm.Response, error) {
		resp := &llm.Response{
			Text:       text,
			StopReason: llm.StopToolUse,
			Usage:      llm.Usage{InputTokens: 100, OutputTokens: 50},
		}
		for i, c := range calls {
			input, err := json.Marshal(c.Args)
			if err != nil {
				return nil, err
			}
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:    fmt.Sprintf("call_%d_%d", len(req.Turns), i),
				Name:  c.Name,
				Input: input,
			})
		}
		return resp, nil
	}
}

// Fail returns err.
func Fail(err error) Script {
	return func(llm.Request) (*llm.Response, error) {
		return nil, err
	}
}

// LastToolResults returns the tool results carried by the final turn of req.
func LastToolResults(req llm.Request) []llm.ToolResult {
	if len(req.Turns) == 0 {
		return nil
	}
	return req.Turns[len(req.Turns)-1].ToolResults
}
