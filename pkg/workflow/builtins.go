package workflow

import "github.com/overseer-ai/overseer/pkg/models"

// builtinWorkflows returns the three stock business workflows registered
// on every engine.
func builtinWorkflows() []*models.WorkflowDefinition {
	return []*models.WorkflowDefinition{
		{
			WorkflowID:  "knowledge_immortalization",
			Name:        "知識永生化完整流程",
			Description: "萃取知識卡片 → 流程優化 → 培訓規劃",
			Steps: []models.WorkflowStep{
				{
					StepID:       "step1_km",
					Type:         models.StepAgent,
					AgentName:    "KM_AGENT",
					TaskTemplate: "請萃取並整理以下內容的知識卡片：{topic}",
				},
				{
					StepID:       "step2_process",
					Type:         models.StepAgent,
					AgentName:    "PROCESS_AGENT",
					TaskTemplate: "基於以下知識卡片，優化相關業務流程：\n{step1_km}",
				},
				{
					StepID:    "step3_talent",
					Type:      models.StepAgent,
					AgentName: "TALENT_AGENT",
					TaskTemplate: "基於以下知識與優化流程，規劃培訓計畫：\n" +
						"知識卡片：{step1_km}\n優化流程：{step2_process}",
				},
			},
		},
		{
			WorkflowID:  "decision_support",
			Name:        "決策支援完整分析",
			Description: "平行分析（流程面 + 人員面）→ 合併 → 綜合決策建議",
			Steps: []models.WorkflowStep{
				{
					StepID: "step1_parallel",
					Type:   models.StepParallel,
					ParallelSteps: []models.WorkflowStep{
						{
							StepID:       "step1a_process",
							Type:         models.StepAgent,
							AgentName:    "PROCESS_AGENT",
							TaskTemplate: "從流程面分析以下決策議題：{topic}",
						},
						{
							StepID:       "step1b_talent",
							Type:         models.StepAgent,
							AgentName:    "TALENT_AGENT",
							TaskTemplate: "從人員能力面分析以下決策議題：{topic}",
						},
					},
				},
				{
					StepID: "step2_merge",
					Type:   models.StepMerge,
				},
				{
					StepID:       "step3_decision",
					Type:         models.StepAgent,
					AgentName:    "DECISION_AGENT",
					TaskTemplate: "基於以下多面向分析，提供綜合決策建議：\n{step2_merge}",
				},
			},
		},
		{
			WorkflowID:  "quality_retry",
			Name:        "品質不達標重試",
			Description: "執行任務 → 評估品質 → 不達標則重試（最多 3 次）",
			Steps: []models.WorkflowStep{
				{
					StepID:        "step1_loop",
					Type:          models.StepLoop,
					AgentName:     "KM_AGENT",
					TaskTemplate:  "請針對以下任務產出高品質報告：{topic}\n{feedback}",
					Condition:     "eval_score >= 0.75",
					MaxIterations: 3,
				},
			},
		},
	}
}
