package llm

import (
	"context"
	"fmt"
	"strings"
)

// Router sends each request to a provider chosen by model identifier.
type Router struct {
	anthropic Provider
	openai    Provider
}

// NewRouter builds a router. Either provider may be nil when no key is
// configured for it; requests for that family then fail.
func NewRouter(anthropic, openai Provider) *Router {
	return &Router{anthropic: anthropic, openai: openai}
}

var openAIPrefixes = []string{"gpt-", "o1", "o3", "o4", "chatgpt-"}

// IsOpenAIModel reports whether model belongs to the OpenAI family.
func IsOpenAIModel(model string) bool {
	for _, p := range openAIPrefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	if IsOpenAIModel(req.Model) {
		if r.openai == nil {
			return nil, fmt.Errorf("no openai provider configured for model %s", req.Model)
		}
		return r.openai.Complete(ctx, req)
	}
	if r.anthropic == nil {
		return nil, fmt.Errorf("no anthropic provider configured for model %s", req.Model)
	}
	return r.anthropic.Complete(ctx, req)
}
