package llm

import "math"

// modelPrice is USD per million tokens, split by direction.
type modelPrice struct {
	Input  float64
	Output float64
}

// Anthropic pricing per 1M tokens. Unknown models fall back to
// anthropicDefaultPrice so an unpriced model never blocks execution.
var anthropicPrices = map[string]modelPrice{
	"claude-3-opus-20240229":   {Input: 15, Output: 75},
	"claude-3-sonnet-20240229": {Input: 3, Output: 15},
	"claude-3-haiku-20240307":  {Input: 0.25, Output: 1.25},
	"claude-2.1":               {Input: 8, Output: 24},
	"claude-2.0":               {Input: 8, Output: 24},
}

var anthropicDefaultPrice = modelPrice{Input: 3, Output: 15}

// Mistral pricing per 1M tokens, same fallback policy.
var mistralPrices = map[string]modelPrice{
	"mistral-large-latest":  {Input: 4.00, Output: 12.00},
	"mistral-medium-latest": {Input: 2.70, Output: 8.10},
	"mistral-small-latest":  {Input: 1.00, Output: 3.00},
	"mistral-tiny":          {Input: 0.25, Output: 0.25},
	"codestral-latest":      {Input: 1.00, Output: 3.00},
	"open-mistral-7b":       {Input: 0.25, Output: 0.25},
	"open-mixtral-8x7b":     {Input: 0.70, Output: 0.70},
	"open-mixtral-8x22b":    {Input: 2.00, Output: 6.00},
}

var mistralDefaultPrice = modelPrice{Input: 1.00, Output: 3.00}

// OpenAI pricing is a single blended USD rate per 1K tokens keyed only by
// model. The granularity deliberately differs from the other tables: each
// vendor's table keeps the shape its pricing sheet uses.
var openaiBlendedPer1K = map[string]float64{
	"gpt-4":               0.03,
	"gpt-4-turbo-preview": 0.01,
	"gpt-3.5-turbo":       0.002,
	"gpt-3.5-turbo-16k":   0.004,
}

const openaiDefaultPer1K = 0.002

// splitCost prices prompt and completion tokens separately against a per-1M
// table, rounded to 6 fractional digits.
func splitCost(prices map[string]modelPrice, fallback modelPrice, model string, promptTokens, completionTokens int) float64 {
	price, ok := prices[model]
	if !ok {
		price = fallback
	}
	cost := float64(promptTokens)/1e6*price.Input + float64(completionTokens)/1e6*price.Output
	return round6(cost)
}

// blendedCost prices total tokens against a per-1K blended rate.
func blendedCost(rates map[string]float64, fallback float64, model string, totalTokens int) float64 {
	rate, ok := rates[model]
	if !ok {
		rate = fallback
	}
	return round6(float64(totalTokens) / 1000 * rate)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
