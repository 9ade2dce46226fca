package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate_ConcatenatesInOrder(t *testing.T) {
	aggregator := NewAggregator(nil, nil)

	out := aggregator.Aggregate(context.Background(), []AgentResult{
		{Agent: "KM_AGENT", Result: "知識卡片 12 張"},
		{Agent: "DECISION_AGENT", Result: "建議採用方案 B"},
	}, "")

	assert.Equal(t, "=== KM_AGENT ===\n知識卡片 12 張\n\n=== DECISION_AGENT ===\n建議採用方案 B", out)
}

func TestAggregate_EmptyInput(t *testing.T) {
	aggregator := NewAggregator(nil, nil)
	assert.Equal(t, "", aggregator.Aggregate(context.Background(), nil, "合併"))
}

func TestAggregate_MergeInstructionNeedsProvider(t *testing.T) {
	aggregator := NewAggregator(nil, nil)

	// Without a reachable provider the merge instruction is ignored.
	out := aggregator.Aggregate(context.Background(), []AgentResult{
		{Agent: "PROCESS_AGENT", Result: "瓶頸在審批"},
	}, "請整合為一份報告")
	assert.Equal(t, "=== PROCESS_AGENT ===\n瓶頸在審批", out)
}

func TestAggregate_BlankAgentName(t *testing.T) {
	aggregator := NewAggregator(nil, nil)

	out := aggregator.Aggregate(context.Background(), []AgentResult{
		{Agent: "", Result: "無主結果"},
	}, "")
	assert.Equal(t, "=== AGENT ===\n無主結果", out)
}
