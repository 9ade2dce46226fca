package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overseer-ai/overseer/pkg/models"
	"github.com/overseer-ai/overseer/pkg/services"
)

// recordingExecutor captures every agent invocation and answers from a
// per-agent script.
type recordingExecutor struct {
	mu      sync.Mutex
	calls   []string
	answers map[string]string
}

func (r *recordingExecutor) exec(_ context.Context, agentName, instruction string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, agentName+": "+instruction)
	if out, ok := r.answers[agentName]; ok {
		return out, nil
	}
	return "[" + agentName + "] done", nil
}

func TestNewEngine_RegistersBuiltins(t *testing.T) {
	engine := NewEngine(nil, nil)

	for _, id := range []string{"knowledge_immortalization", "decision_support", "quality_retry"} {
		def, err := engine.Get(id)
		require.NoError(t, err, id)
		assert.Equal(t, id, def.WorkflowID)
	}
	assert.Len(t, engine.List(), 3)
}

func TestExecute_UnknownWorkflow(t *testing.T) {
	engine := NewEngine(nil, nil)

	_, err := engine.Execute(context.Background(), "no-such-workflow", nil)
	assert.True(t, services.IsValidationError(err))
}

func TestExecute_SequentialChainThreadsOutputs(t *testing.T) {
	rec := &recordingExecutor{answers: map[string]string{
		"KM_AGENT":      "知識卡片：三條 SOP",
		"PROCESS_AGENT": "流程優化：合併審批步驟",
		"TALENT_AGENT":  "培訓計畫：兩週上手",
	}}
	engine := NewEngine(rec.exec, nil)

	result, err := engine.Execute(context.Background(), "knowledge_immortalization",
		map[string]any{"topic": "報價流程"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Results, 3)
	assert.Equal(t, "知識卡片：三條 SOP", result.Context["step1_km"])
	assert.Equal(t, "培訓計畫：兩週上手", result.Context["last_output"])
	assert.Equal(t, "知識卡片：三條 SOP", result.Context["KM_AGENT_output"])

	// Later steps see earlier outputs through the template context.
	require.Len(t, rec.calls, 3)
	assert.Contains(t, rec.calls[0], "報價流程")
	assert.Contains(t, rec.calls[1], "知識卡片：三條 SOP")
	assert.Contains(t, rec.calls[2], "流程優化：合併審批步驟")
}

func TestExecute_ParallelThenMerge(t *testing.T) {
	rec := &recordingExecutor{answers: map[string]string{
		"PROCESS_AGENT":  "流程面：瓶頸在審批",
		"TALENT_AGENT":   "人員面：需補強報表技能",
		"DECISION_AGENT": "建議：先解審批瓶頸",
	}}
	engine := NewEngine(rec.exec, nil)

	result, err := engine.Execute(context.Background(), "decision_support",
		map[string]any{"topic": "是否導入新系統"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Results, 3)

	parallel := result.Results[0]
	assert.Equal(t, "PARALLEL", parallel.AgentName)
	assert.Contains(t, parallel.Output, "[PROCESS_AGENT] 流程面：瓶頸在審批")
	assert.Contains(t, parallel.Output, "[TALENT_AGENT] 人員面：需補強報表技能")
	assert.Contains(t, parallel.Output, "\n---\n")

	merge := result.Results[1]
	assert.Equal(t, "MERGE", merge.AgentName)
	assert.True(t, merge.Success)
	assert.Equal(t, parallel.Output, merge.Output)

	// The decision step receives the merged analysis.
	last := rec.calls[len(rec.calls)-1]
	assert.True(t, strings.HasPrefix(last, "DECISION_AGENT:"))
	assert.Contains(t, last, "流程面：瓶頸在審批")
}

func TestExecute_ParallelBranchFailureFailsStep(t *testing.T) {
	engine := NewEngine(func(_ context.Context, agentName, _ string) (string, error) {
		if agentName == "TALENT_AGENT" {
			return "", errors.New("talent agent down")
		}
		return "ok", nil
	}, nil)

	result, err := engine.Execute(context.Background(), "decision_support",
		map[string]any{"topic": "x"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.False(t, result.Results[0].Success)
	// MERGE still runs and still succeeds.
	assert.True(t, result.Results[1].Success)
}

func TestExecute_LoopRetriesWithFeedback(t *testing.T) {
	attempt := 0
	var secondInstruction string
	engine := NewEngine(func(_ context.Context, _, instruction string) (string, error) {
		attempt++
		if attempt == 1 {
			return "太短", nil
		}
		secondInstruction = instruction
		return "# 高品質報告\n- 重點一：流程已梳理\n- 重點二：責任人已指派\n- 重點三：下一步排程完成\n" +
			strings.Repeat("詳細內容。", 30), nil
	}, nil)

	result, err := engine.Execute(context.Background(), "quality_retry",
		map[string]any{"topic": "季度知識盤點"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Results, 1)
	assert.Equal(t, 2, result.Results[0].Iteration)
	assert.Equal(t, 2, attempt)
	assert.GreaterOrEqual(t, result.Context["eval_score"].(float64), 0.75)
	// The second rendering carries the feedback from the first attempt.
	assert.Contains(t, secondInstruction, "請改進輸出")
}

func TestExecute_LoopExhaustsIterations(t *testing.T) {
	attempts := 0
	engine := NewEngine(func(_ context.Context, _, _ string) (string, error) {
		attempts++
		return "短", nil
	}, nil)

	result, err := engine.Execute(context.Background(), "quality_retry",
		map[string]any{"topic": "x"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, result.Results[0].Iteration)
}

func TestExecute_BranchingInsertsTarget(t *testing.T) {
	engine := NewEngine(func(_ context.Context, agentName, _ string) (string, error) {
		if agentName == "FLAKY" {
			return "", errors.New("boom")
		}
		return "handled", nil
	}, nil)

	require.NoError(t, engine.Register(&models.WorkflowDefinition{
		WorkflowID: "fallback_chain",
		Name:       "失敗轉手流程",
		Steps: []models.WorkflowStep{
			{
				StepID:       "try",
				Type:         models.StepAgent,
				AgentName:    "FLAKY",
				TaskTemplate: "do {topic}",
				OnFailure:    "recover",
			},
			{
				StepID:       "recover",
				Type:         models.StepAgent,
				AgentName:    "KM_AGENT",
				TaskTemplate: "接手處理：{last_output}",
			},
		},
	}))

	result, err := engine.Execute(context.Background(), "fallback_chain",
		map[string]any{"topic": "x"})
	require.NoError(t, err)

	// The recover step is already scheduled, so the branch does not
	// duplicate it; it runs exactly once.
	require.Len(t, result.Results, 2)
	assert.Equal(t, "try", result.Results[0].StepID)
	assert.False(t, result.Results[0].Success)
	assert.Equal(t, "recover", result.Results[1].StepID)
	assert.True(t, result.Results[1].Success)
	assert.False(t, result.Success)
}

func TestExecute_BranchingReRunsExecutedStep(t *testing.T) {
	engine := NewEngine(nil, nil)

	require.NoError(t, engine.Register(&models.WorkflowDefinition{
		WorkflowID: "revisit",
		Name:       "重跑步驟",
		Steps: []models.WorkflowStep{
			{StepID: "prep", Type: models.StepAgent, AgentName: "KM_AGENT", TaskTemplate: "a"},
			{StepID: "gate", Type: models.StepCondition, Condition: "revisited == true", OnFailure: "prep"},
		},
	}))

	result, err := engine.Execute(context.Background(), "revisit", nil)
	require.NoError(t, err)

	// gate fails and branches back to prep, which already ran and is no
	// longer in the remaining queue, so it is inserted and runs again.
	ids := make([]string, len(result.Results))
	for i, r := range result.Results {
		ids[i] = r.StepID
	}
	assert.Equal(t, []string{"prep", "gate", "prep"}, ids)
}

func TestExecute_ConditionStep(t *testing.T) {
	engine := NewEngine(nil, nil)
	require.NoError(t, engine.Register(&models.WorkflowDefinition{
		WorkflowID: "gated",
		Name:       "條件工作流",
		Steps: []models.WorkflowStep{
			{StepID: "check", Type: models.StepCondition, Condition: "score >= 0.75"},
		},
	}))

	passed, err := engine.Execute(context.Background(), "gated", map[string]any{"score": 0.8})
	require.NoError(t, err)
	assert.True(t, passed.Success)
	assert.Equal(t, "condition_passed", passed.Results[0].Output)

	failed, err := engine.Execute(context.Background(), "gated", map[string]any{"score": 0.5})
	require.NoError(t, err)
	assert.False(t, failed.Success)
	assert.Equal(t, "condition_failed", failed.Results[0].Output)
}

func TestExecute_OfflinePlaceholderWithoutExecutor(t *testing.T) {
	engine := NewEngine(nil, nil)

	result, err := engine.Execute(context.Background(), "knowledge_immortalization",
		map[string]any{"topic": "客服 SOP"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Results[0].Output, "[KM_AGENT] 執行完成")
	assert.Contains(t, result.Results[0].Output, "客服 SOP")
}

func TestExecute_UnresolvedPlaceholdersLeftIntact(t *testing.T) {
	var got string
	engine := NewEngine(func(_ context.Context, _, instruction string) (string, error) {
		got = instruction
		return "ok", nil
	}, nil)
	require.NoError(t, engine.Register(&models.WorkflowDefinition{
		WorkflowID: "tpl",
		Name:       "模板測試",
		Steps: []models.WorkflowStep{
			{StepID: "s", Type: models.StepAgent, AgentName: "KM_AGENT",
				TaskTemplate: "known={topic} unknown={missing}"},
		},
	}))

	_, err := engine.Execute(context.Background(), "tpl", map[string]any{"topic": "T"})
	require.NoError(t, err)
	assert.Equal(t, "known=T unknown={missing}", got)
}

func TestRegister_Validation(t *testing.T) {
	engine := NewEngine(nil, nil)

	assert.Error(t, engine.Register(nil))
	assert.Error(t, engine.Register(&models.WorkflowDefinition{Name: "no id"}))
	assert.Error(t, engine.Register(&models.WorkflowDefinition{WorkflowID: "empty"}))
	assert.Error(t, engine.Register(&models.WorkflowDefinition{
		WorkflowID: "dup",
		Steps: []models.WorkflowStep{
			{StepID: "a", Type: models.StepMerge},
			{StepID: "a", Type: models.StepMerge},
		},
	}))
}

func TestScoreLoopOutput(t *testing.T) {
	assert.Equal(t, 0.0, scoreLoopOutput(""))
	assert.Equal(t, 0.3, scoreLoopOutput("ok"))
	// Structure marker and newline each add 0.2.
	assert.InDelta(t, 0.7, scoreLoopOutput("- a\n- b"), 1e-9)
	long := "# 報告\n" + strings.Repeat("內容。", 70)
	assert.InDelta(t, 1.0, scoreLoopOutput(long), 1e-9)
}

func TestMergeWithoutParallelFallsBackToLastOutput(t *testing.T) {
	engine := NewEngine(nil, nil)
	require.NoError(t, engine.Register(&models.WorkflowDefinition{
		WorkflowID: "merge_only",
		Name:       "單獨合併",
		Steps: []models.WorkflowStep{
			{StepID: "a", Type: models.StepAgent, AgentName: "KM_AGENT", TaskTemplate: "x"},
			{StepID: "m", Type: models.StepMerge},
		},
	}))

	result, err := engine.Execute(context.Background(), "merge_only", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, result.Results[0].Output, result.Results[1].Output)
}
