package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_KeywordRouting(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	ctx := context.Background()

	tests := []struct {
		prompt string
		want   string
	}{
		{"請幫我萃取採購SOP的知識卡片", "KM_AGENT"},
		{"優化出貨流程，找出效率瓶頸", "PROCESS_AGENT"},
		{"規劃新人培訓與職能發展", "TALENT_AGENT"},
		{"分析兩個方案的風險並給出建議", "DECISION_AGENT"},
		{"extract the onboarding knowledge into documents", "KM_AGENT"},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			agent, confidence := classifier.Classify(ctx, tt.prompt)
			assert.Equal(t, tt.want, agent)
			assert.Greater(t, confidence, 0.0)
			assert.LessOrEqual(t, confidence, 1.0)
		})
	}
}

func TestClassify_UnknownInput(t *testing.T) {
	classifier := NewClassifier(nil, nil)

	agent, confidence := classifier.Classify(context.Background(), "今天天氣如何")
	assert.Equal(t, UnknownAgent, agent)
	assert.Equal(t, 0.0, confidence)
}

func TestClassify_ConfidenceScaling(t *testing.T) {
	classifier := NewClassifier(nil, nil)
	ctx := context.Background()

	// Three hits against KM's 13-keyword list: 3 / (13*0.3).
	agent, confidence := classifier.Classify(ctx, "萃取知識文件")
	assert.Equal(t, "KM_AGENT", agent)
	assert.InDelta(t, 3.0/3.9, confidence, 1e-9)

	// Enough hits saturate at 1.0.
	_, confidence = classifier.Classify(ctx, "萃取 sop 文件 知識 整理 盤點")
	assert.Equal(t, 1.0, confidence)
}

func TestSuggestKeywords_ListsEveryAgent(t *testing.T) {
	classifier := NewClassifier(nil, nil)

	hint := classifier.SuggestKeywords()
	for _, agent := range supportedAgents {
		assert.Contains(t, hint, agent)
	}
}
