package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCostKnownModel(t *testing.T) {
	// claude-3-opus: $15/M input, $75/M output.
	got := splitCost(anthropicPrices, anthropicDefaultPrice, "claude-3-opus-20240229", 1000, 500)
	assert.InDelta(t, 0.0525, got, 1e-9)
}

func TestSplitCostUnknownModelUsesFallback(t *testing.T) {
	got := splitCost(anthropicPrices, anthropicDefaultPrice, "claude-99-experimental", 1_000_000, 1_000_000)
	assert.InDelta(t, 18.0, got, 1e-9)

	got = splitCost(mistralPrices, mistralDefaultPrice, "mistral-unknown", 1_000_000, 1_000_000)
	assert.InDelta(t, 4.0, got, 1e-9)
}

func TestSplitCostZeroTokens(t *testing.T) {
	assert.Zero(t, splitCost(mistralPrices, mistralDefaultPrice, "mistral-tiny", 0, 0))
}

func TestSplitCostRoundsToSixDecimals(t *testing.T) {
	// 1 input token of claude-3-haiku: 0.25/1e6 = 0.00000025, rounds to 0.
	got := splitCost(anthropicPrices, anthropicDefaultPrice, "claude-3-haiku-20240307", 1, 0)
	assert.Zero(t, got)

	// 3 input tokens: 0.00000075 rounds up to 0.000001.
	got = splitCost(anthropicPrices, anthropicDefaultPrice, "claude-3-haiku-20240307", 3, 0)
	assert.InDelta(t, 0.000001, got, 1e-12)
}

func TestBlendedCost(t *testing.T) {
	assert.InDelta(t, 0.045, blendedCost(openaiBlendedPer1K, openaiDefaultPer1K, "gpt-4", 1500), 1e-9)
	assert.InDelta(t, 0.002, blendedCost(openaiBlendedPer1K, openaiDefaultPer1K, "gpt-3.5-turbo", 1000), 1e-9)
}

func TestBlendedCostUnknownModelUsesDefault(t *testing.T) {
	got := blendedCost(openaiBlendedPer1K, openaiDefaultPer1K, "gpt-experimental", 1000)
	assert.InDelta(t, 0.002, got, 1e-9)
}

func TestRound6(t *testing.T) {
	assert.Equal(t, 0.000001, round6(0.0000014))
	assert.Equal(t, 0.000002, round6(0.0000015))
	assert.Equal(t, 1.234568, round6(1.2345678))
}
