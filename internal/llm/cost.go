package llm

import "github.com/mtzanidakis/agentcrew/internal/config"

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

// DefaultModel is the pricing tier used for unknown models.
const DefaultModel = "claude-sonnet-4-5-20250514"

var defaultPrices = map[string]Price{
	"claude-opus-4-6":            {Input: 15, Output: 75},
	"claude-sonnet-4-5-20250514": {Input: 3, Output: 15},
	"claude-haiku-4-5-20251001":  {Input: 0.8, Output: 4},
	"gpt-4o":                     {Input: 2.5, Output: 10},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.6},
}

// Pricing maps model identifiers to prices.
type Pricing map[string]Price

// NewPricing returns the built-in table with overrides applied.
func NewPricing(overrides map[string]config.ModelPrice) Pricing {
	p := make(Pricing, len(defaultPrices)+len(overrides))
	for m, price := range defaultPrices {
		p[m] = price
	}
	for m, o := range overrides {
		p[m] = Price{Input: o.Input, Output: o.Output}
	}
	return p
}

// Cost returns the USD cost of a call. Unknown models are billed at the
// default tier.
func (p Pricing) Cost(model string, inputTokens, outputTokens int64) float64 {
	price, ok := p[model]
	if !ok {
		price, ok = p[DefaultModel]
		if !ok {
			price = defaultPrices[DefaultModel]
		}
	}
	return (float64(inputTokens)*price.Input + float64(outputTokens)*price.Output) / 1_000_000
}

// CalculateCost prices a call with the built-in table.
func CalculateCost(model string, inputTokens, outputTokens int64) float64 {
	return Pricing(defaultPrices).Cost(model, inputTokens, outputTokens)
}
