package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/overseer-ai/overseer/pkg/llm"
	"github.com/overseer-ai/overseer/pkg/models"
)

// maxSubTasks bounds a plan's decomposition.
const maxSubTasks = 5

// maxPrevResultLength truncates the threaded context in sequential runs.
const maxPrevResultLength = 200

// parallelKeywords mark conjunctive compounds; sequentialKeywords mark
// temporal/causal ones and win when both appear.
var (
	parallelKeywords   = []string{"and", "並且", "同時", "以及", "並"}
	sequentialKeywords = []string{"然後", "接著", "之後", "先", "再"}
	compoundTriggers   = append(append([]string{}, parallelKeywords...), append(sequentialKeywords, "且")...)
)

// splitSeparators splits a compound instruction into clauses:
// punctuation, the trigger keywords, and a word-bounded "and".
var splitSeparators = buildSplitRegexp()

func buildSplitRegexp() *regexp.Regexp {
	parts := []string{`[，,、；;]`}
	for _, kw := range append(append([]string{}, parallelKeywords...), sequentialKeywords...) {
		if kw == "and" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(kw))
	}
	parts = append(parts, `(?i:and)\b`)
	return regexp.MustCompile(strings.Join(parts, "|"))
}

// agentKeywordTable infers a sub-task's agent; first matching row wins.
var agentKeywordTable = []struct {
	keywords []string
	agent    string
}{
	{[]string{"sop", "流程", "採購", "優化", "效率", "瓶頸"}, "PROCESS_AGENT"},
	{[]string{"人才", "培訓", "員工", "能力", "學習", "評估"}, "TALENT_AGENT"},
	{[]string{"知識", "萃取", "文件", "整理"}, "KM_AGENT"},
	{[]string{"決策", "分析", "風險", "比較", "數據", "建議"}, "DECISION_AGENT"},
}

// Planner decomposes compound instructions into execution plans.
type Planner struct {
	llmClient *llm.Client
	logger    *slog.Logger
}

// NewPlanner creates a Planner. llmClient may be nil; planning then uses
// the rule tables alone.
func NewPlanner(llmClient *llm.Client, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{llmClient: llmClient, logger: logger.With("component", "task-planner")}
}

// Plan decomposes the instruction. The LLM plan is preferred when a
// provider is reachable; the rule-based decomposition is the safety net.
func (p *Planner) Plan(ctx context.Context, task string) *models.ExecutionPlan {
	if plan, ok := p.planByLLM(ctx, task); ok {
		return plan
	}
	return p.planByRules(task)
}

func newPlanID() string {
	return "PLAN-" + strings.ToUpper(uuid.NewString()[:8])
}

func subTaskID(i int) string {
	return fmt.Sprintf("ST-%03d", i)
}

// planByRules decomposes on trigger keywords and separators.
func (p *Planner) planByRules(task string) *models.ExecutionPlan {
	planID := newPlanID()

	if !isComplexTask(task) {
		return singlePlan(planID, task)
	}

	mode := models.PlanParallel
	taskLower := strings.ToLower(task)
	for _, kw := range sequentialKeywords {
		if strings.Contains(taskLower, kw) {
			mode = models.PlanSequential
			break
		}
	}

	parts := splitTaskText(task)
	if len(parts) < 2 {
		return singlePlan(planID, task)
	}
	if len(parts) > maxSubTasks {
		parts = parts[:maxSubTasks]
	}

	subTasks := make([]models.SubTask, 0, len(parts))
	prevID := ""
	for i, part := range parts {
		id := subTaskID(i + 1)
		var depends []string
		if mode == models.PlanSequential && prevID != "" {
			depends = []string{prevID}
		}
		subTasks = append(subTasks, models.SubTask{
			TaskID:    id,
			AgentName: detectAgent(part),
			Task:      part,
			Priority:  i + 1,
			DependsOn: depends,
			Status:    models.SubTaskPending,
		})
		prevID = id
	}

	return &models.ExecutionPlan{
		PlanID:    planID,
		Mode:      mode,
		SubTasks:  subTasks,
		CreatedAt: models.Now(),
	}
}

func singlePlan(planID, task string) *models.ExecutionPlan {
	return &models.ExecutionPlan{
		PlanID: planID,
		Mode:   models.PlanSingle,
		SubTasks: []models.SubTask{{
			TaskID:    subTaskID(1),
			AgentName: detectAgent(task),
			Task:      task,
			Priority:  1,
			Status:    models.SubTaskPending,
		}},
		CreatedAt: models.Now(),
	}
}

const planPromptTemplate = `你是任務規劃器。請將以下複合任務拆解為子任務，並以 JSON 回傳。
格式：{"mode": "sequential|parallel", "sub_tasks": [{"task": "...", "agent": "KM_AGENT|PROCESS_AGENT|TALENT_AGENT|DECISION_AGENT"}]}
任務：%s`

// planByLLM asks the provider for a JSON plan constrained to the closed
// agent set. ok=false on any failure.
func (p *Planner) planByLLM(ctx context.Context, task string) (*models.ExecutionPlan, bool) {
	if p.llmClient == nil || !p.llmClient.Available() {
		return nil, false
	}
	answer, err := p.llmClient.Chat(ctx, fmt.Sprintf(planPromptTemplate, task),
		llm.WithMaxTokens(1024))
	if err != nil || answer == "" {
		if err != nil {
			p.logger.Warn("LLM planning failed, using rule tables", "error", err)
		}
		return nil, false
	}

	var parsed struct {
		Mode     string `json:"mode"`
		SubTasks []struct {
			Task  string `json:"task"`
			Agent string `json:"agent"`
		} `json:"sub_tasks"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(answer)), &parsed); err != nil {
		p.logger.Warn("LLM plan did not parse, using rule tables", "error", err)
		return nil, false
	}
	if len(parsed.SubTasks) == 0 {
		return nil, false
	}

	mode := models.PlanParallel
	if strings.EqualFold(parsed.Mode, string(models.PlanSequential)) {
		mode = models.PlanSequential
	}
	if len(parsed.SubTasks) == 1 {
		mode = models.PlanSingle
	}
	if len(parsed.SubTasks) > maxSubTasks {
		parsed.SubTasks = parsed.SubTasks[:maxSubTasks]
	}

	planID := newPlanID()
	subTasks := make([]models.SubTask, 0, len(parsed.SubTasks))
	prevID := ""
	for i, item := range parsed.SubTasks {
		agent := item.Agent
		if !isSupportedAgent(agent) {
			agent = "KM_AGENT"
		}
		text := item.Task
		if text == "" {
			text = task
		}
		id := subTaskID(i + 1)
		var depends []string
		if mode == models.PlanSequential && prevID != "" {
			depends = []string{prevID}
		}
		subTasks = append(subTasks, models.SubTask{
			TaskID:    id,
			AgentName: agent,
			Task:      text,
			Priority:  i + 1,
			DependsOn: depends,
			Status:    models.SubTaskPending,
		})
		prevID = id
	}

	return &models.ExecutionPlan{
		PlanID:    planID,
		Mode:      mode,
		SubTasks:  subTasks,
		CreatedAt: models.Now(),
	}, true
}

// isComplexTask reports whether the instruction needs decomposition: a
// trigger keyword, or at least two separator-delimited clauses.
func isComplexTask(task string) bool {
	taskLower := strings.ToLower(task)
	for _, kw := range compoundTriggers {
		if strings.Contains(taskLower, kw) {
			return true
		}
	}
	return len(splitTaskText(task)) >= 2
}

func splitTaskText(task string) []string {
	var parts []string
	for _, part := range splitSeparators.Split(task, -1) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// detectAgent infers the agent for one clause; KM_AGENT is the default.
func detectAgent(text string) string {
	textLower := strings.ToLower(text)
	for _, row := range agentKeywordTable {
		for _, kw := range row.keywords {
			if strings.Contains(textLower, kw) {
				return row.agent
			}
		}
	}
	return "KM_AGENT"
}
