package ledger

import (
	"testing"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
	"github.com/stretchr/testify/assert"
)

func TestEstimateCost_ZeroPricingFallsBackToDefault(t *testing.T) {
	cost := EstimateCost([]types.Message{types.NewUserMessage("hello")}, core.Pricing{})
	assert.Equal(t, DefaultEstimatedCost, cost)
}

func TestEstimateCost_ScalesWithMessageLength(t *testing.T) {
	pricing := core.Pricing{InputTokenCost: 1e6}
	short := EstimateCost([]types.Message{types.NewUserMessage("hi")}, pricing)
	long := EstimateCost([]types.Message{types.NewUserMessage(
		"this is a much longer message with many more tokens to encode than the short one above",
	)}, pricing)
	assert.Greater(t, long, short)
	assert.Greater(t, short, 0.0)
}

func TestEstimateCost_MultipleMessagesAccumulate(t *testing.T) {
	pricing := core.Pricing{InputTokenCost: 1e6}
	one := EstimateCost([]types.Message{types.NewUserMessage("hello there")}, pricing)
	two := EstimateCost([]types.Message{
		types.NewSystemMessage("be terse"),
		types.NewUserMessage("hello there"),
	}, pricing)
	assert.Greater(t, two, one)
}
