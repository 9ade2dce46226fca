package orchestrator

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overseer-ai/overseer/pkg/models"
)

var planIDPattern = regexp.MustCompile(`^PLAN-[0-9A-F]{8}$`)

func TestPlan_SimpleInstructionStaysSingle(t *testing.T) {
	planner := NewPlanner(nil, nil)

	plan := planner.Plan(context.Background(), "萃取客服部門的隱性經驗")
	require.True(t, plan.Single())
	require.Len(t, plan.SubTasks, 1)

	assert.Regexp(t, planIDPattern, plan.PlanID)
	st := plan.SubTasks[0]
	assert.Equal(t, "ST-001", st.TaskID)
	assert.Equal(t, "KM_AGENT", st.AgentName)
	assert.Equal(t, "萃取客服部門的隱性經驗", st.Task)
	assert.Equal(t, 1, st.Priority)
	assert.Empty(t, st.DependsOn)
	assert.Equal(t, models.SubTaskPending, st.Status)
}

func TestPlan_SequentialKeywordBuildsChain(t *testing.T) {
	planner := NewPlanner(nil, nil)

	plan := planner.Plan(context.Background(), "先整理文件，然後分析數據")
	assert.Equal(t, models.PlanSequential, plan.Mode)
	require.Len(t, plan.SubTasks, 2)

	assert.Equal(t, "整理文件", plan.SubTasks[0].Task)
	assert.Equal(t, "KM_AGENT", plan.SubTasks[0].AgentName)
	assert.Empty(t, plan.SubTasks[0].DependsOn)

	assert.Equal(t, "分析數據", plan.SubTasks[1].Task)
	assert.Equal(t, "DECISION_AGENT", plan.SubTasks[1].AgentName)
	assert.Equal(t, []string{"ST-001"}, plan.SubTasks[1].DependsOn)
}

func TestPlan_ConjunctionRunsParallel(t *testing.T) {
	planner := NewPlanner(nil, nil)

	plan := planner.Plan(context.Background(), "整理知識文件並且評估員工能力")
	assert.Equal(t, models.PlanParallel, plan.Mode)
	require.Len(t, plan.SubTasks, 2)

	assert.Equal(t, "KM_AGENT", plan.SubTasks[0].AgentName)
	assert.Equal(t, "TALENT_AGENT", plan.SubTasks[1].AgentName)
	for _, st := range plan.SubTasks {
		assert.Empty(t, st.DependsOn)
	}
}

func TestPlan_EnglishConjunction(t *testing.T) {
	planner := NewPlanner(nil, nil)

	plan := planner.Plan(context.Background(), "summarize the documents and analyze the data")
	assert.Equal(t, models.PlanParallel, plan.Mode)
	require.Len(t, plan.SubTasks, 2)
	assert.Equal(t, "summarize the documents", plan.SubTasks[0].Task)
	assert.Equal(t, "analyze the data", plan.SubTasks[1].Task)
}

func TestPlan_CapsSubTasks(t *testing.T) {
	planner := NewPlanner(nil, nil)

	plan := planner.Plan(context.Background(),
		"萃取知識，優化流程，培訓員工，分析風險，整理文件，比較方案")
	require.Len(t, plan.SubTasks, maxSubTasks)

	for i, st := range plan.SubTasks {
		assert.Equal(t, subTaskID(i+1), st.TaskID)
		assert.Equal(t, i+1, st.Priority)
	}
	assert.Equal(t, "整理文件", plan.SubTasks[4].Task)
}

func TestDetectAgent_KeywordTable(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"優化出貨流程", "PROCESS_AGENT"},
		{"規劃年度培訓", "TALENT_AGENT"},
		{"整理部門文件", "KM_AGENT"},
		{"比較供應商風險", "DECISION_AGENT"},
		// 評估 belongs to the talent row, which is checked first.
		{"評估員工", "TALENT_AGENT"},
		{"幫我處理這件事", "KM_AGENT"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectAgent(tt.text), tt.text)
	}
}
