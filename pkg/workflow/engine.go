// Package workflow executes declarative multi-agent workflows: ordered
// steps with AGENT / CONDITION / LOOP / PARALLEL / MERGE semantics,
// success/failure branching, and a restricted condition language.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/models"
	"github.com/overseer-ai/overseer/pkg/services"
)

// loopPassScore is the LOOP step's default exit threshold when the step
// declares no condition.
const loopPassScore = 0.75

// defaultMaxIterations bounds a LOOP step that declares no limit.
const defaultMaxIterations = 3

// AgentExecutor invokes one agent with a rendered instruction.
type AgentExecutor func(ctx context.Context, agentName, instruction string) (string, error)

// parallelResult is one branch outcome stashed under _parallel_results.
type parallelResult struct {
	AgentName string
	Output    string
	Success   bool
}

// Engine holds the workflow registry and runs definitions against an
// agent executor.
type Engine struct {
	executor AgentExecutor
	logger   *slog.Logger

	mu        sync.Mutex
	workflows map[string]*models.WorkflowDefinition
	history   []*models.WorkflowResult
}

// NewEngine creates an Engine with the builtin workflows registered.
// executor may be nil; agent steps then echo a placeholder output, which
// keeps workflows runnable offline.
func NewEngine(executor AgentExecutor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		executor:  executor,
		logger:    logger.With("component", "workflow-engine"),
		workflows: make(map[string]*models.WorkflowDefinition),
	}
	for _, def := range builtinWorkflows() {
		e.workflows[def.WorkflowID] = def
	}
	return e
}

// Register adds or replaces a workflow definition.
func (e *Engine) Register(def *models.WorkflowDefinition) error {
	if def == nil {
		return services.NewValidationError("workflow", "required")
	}
	if err := config.ValidateWorkflow(def); err != nil {
		return err
	}

	e.mu.Lock()
	e.workflows[def.WorkflowID] = def
	e.mu.Unlock()
	e.logger.Info("Workflow registered", "workflow_id", def.WorkflowID, "steps", len(def.Steps))
	return nil
}

// Get returns a registered definition.
func (e *Engine) Get(workflowID string) (*models.WorkflowDefinition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.workflows[workflowID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return def, nil
}

// List returns the registered definitions.
func (e *Engine) List() []*models.WorkflowDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	defs := make([]*models.WorkflowDefinition, 0, len(e.workflows))
	for _, def := range e.workflows {
		defs = append(defs, def)
	}
	return defs
}

// Execute runs one workflow. initialCtx seeds the execution context used
// for {variable} template rendering; the engine adds step outputs as it
// goes. Workflow success = every step result succeeded.
func (e *Engine) Execute(ctx context.Context, workflowID string, initialCtx map[string]any) (*models.WorkflowResult, error) {
	e.mu.Lock()
	def, ok := e.workflows[workflowID]
	e.mu.Unlock()
	if !ok {
		return nil, services.NewValidationError("workflow_id", fmt.Sprintf("unknown workflow %q", workflowID))
	}

	execCtx := make(map[string]any, len(initialCtx))
	for k, v := range initialCtx {
		execCtx[k] = v
	}

	stepsByID := make(map[string]models.WorkflowStep, len(def.Steps))
	for _, step := range def.Steps {
		stepsByID[step.StepID] = step
	}
	queue := make([]models.WorkflowStep, len(def.Steps))
	copy(queue, def.Steps)

	started := time.Now()
	var results []models.StepResult
	for i := 0; i < len(queue); i++ {
		step := queue[i]
		result := e.executeStep(ctx, step, execCtx)
		results = append(results, result)

		execCtx[step.StepID] = result.Output
		execCtx["last_output"] = result.Output
		if result.AgentName != "" {
			execCtx[result.AgentName+"_output"] = result.Output
		}

		// Branch targets slot in right after the current step, unless the
		// target is already waiting in the remaining queue.
		branch := ""
		if result.Success && step.OnSuccess != "" {
			branch = step.OnSuccess
		} else if !result.Success && step.OnFailure != "" {
			branch = step.OnFailure
		}
		if branch != "" {
			if target, ok := stepsByID[branch]; ok && !queued(queue[i+1:], branch) {
				queue = append(queue[:i+1], append([]models.WorkflowStep{target}, queue[i+1:]...)...)
			}
		}
	}

	success := len(results) > 0
	for _, r := range results {
		success = success && r.Success
	}
	workflowResult := &models.WorkflowResult{
		WorkflowID:  workflowID,
		Success:     success,
		Results:     results,
		Context:     execCtx,
		DurationSec: round3(time.Since(started).Seconds()),
	}

	e.mu.Lock()
	e.history = append(e.history, workflowResult)
	e.mu.Unlock()

	e.logger.Info("Workflow finished",
		"workflow_id", workflowID,
		"success", success,
		"steps", len(results),
		"duration_sec", workflowResult.DurationSec)
	return workflowResult, nil
}

// History returns a snapshot copy of past executions.
func (e *Engine) History() []*models.WorkflowResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.WorkflowResult, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) executeStep(ctx context.Context, step models.WorkflowStep, execCtx map[string]any) models.StepResult {
	switch step.Type {
	case models.StepAgent:
		return e.executeAgentStep(ctx, step, execCtx)
	case models.StepParallel:
		return e.executeParallelStep(ctx, step, execCtx)
	case models.StepCondition:
		passed := EvaluateCondition(step.Condition, execCtx)
		output := "condition_failed"
		if passed {
			output = "condition_passed"
		}
		return models.StepResult{StepID: step.StepID, AgentName: "CONDITION", Success: passed, Output: output}
	case models.StepLoop:
		return e.executeLoopStep(ctx, step, execCtx)
	case models.StepMerge:
		return models.StepResult{
			StepID:    step.StepID,
			AgentName: "MERGE",
			Success:   true,
			Output:    mergeParallelResults(execCtx),
		}
	default:
		return models.StepResult{
			StepID:    step.StepID,
			AgentName: "UNKNOWN",
			Success:   false,
			Output:    fmt.Sprintf("未知的步驟類型: %s", step.Type),
		}
	}
}

func (e *Engine) executeAgentStep(ctx context.Context, step models.WorkflowStep, execCtx map[string]any) models.StepResult {
	started := time.Now()
	instruction := renderTemplate(step.TaskTemplate, execCtx)
	output, err := e.callAgent(ctx, step.AgentName, instruction)
	result := models.StepResult{
		StepID:      step.StepID,
		AgentName:   step.AgentName,
		Success:     err == nil,
		Output:      output,
		DurationSec: round3(time.Since(started).Seconds()),
	}
	if err != nil {
		result.Output = err.Error()
	}
	return result
}

func (e *Engine) callAgent(ctx context.Context, agentName, instruction string) (string, error) {
	if e.executor == nil {
		return fmt.Sprintf("[%s] 執行完成: %s", agentName, headRunes(instruction, 80)), nil
	}
	return e.executor(ctx, agentName, instruction)
}

// executeParallelStep fans the branches out concurrently, each over its
// own copy of the execution context.
func (e *Engine) executeParallelStep(ctx context.Context, step models.WorkflowStep, execCtx map[string]any) models.StepResult {
	started := time.Now()
	branches := step.ParallelSteps
	branchResults := make([]models.StepResult, len(branches))

	var wg sync.WaitGroup
	for i, branch := range branches {
		branchCtx := make(map[string]any, len(execCtx))
		for k, v := range execCtx {
			branchCtx[k] = v
		}
		wg.Add(1)
		go func(i int, branch models.WorkflowStep, branchCtx map[string]any) {
			defer wg.Done()
			branchResults[i] = e.executeStep(ctx, branch, branchCtx)
		}(i, branch, branchCtx)
	}
	wg.Wait()

	stored := make([]parallelResult, len(branchResults))
	parts := make([]string, len(branchResults))
	allSuccess := true
	for i, r := range branchResults {
		stored[i] = parallelResult{AgentName: r.AgentName, Output: r.Output, Success: r.Success}
		parts[i] = fmt.Sprintf("[%s] %s", r.AgentName, r.Output)
		allSuccess = allSuccess && r.Success
	}
	execCtx["_parallel_results"] = stored

	return models.StepResult{
		StepID:      step.StepID,
		AgentName:   "PARALLEL",
		Success:     allSuccess,
		Output:      strings.Join(parts, "\n---\n"),
		DurationSec: round3(time.Since(started).Seconds()),
	}
}

// executeLoopStep reruns the agent until the exit condition holds or the
// iteration budget runs out. Between iterations the context carries a
// feedback line for the next rendering.
func (e *Engine) executeLoopStep(ctx context.Context, step models.WorkflowStep, execCtx map[string]any) models.StepResult {
	maxIterations := step.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	last := models.StepResult{StepID: step.StepID, AgentName: step.AgentName, Success: false}
	for iteration := 1; iteration <= maxIterations; iteration++ {
		instruction := renderTemplate(step.TaskTemplate, execCtx)
		output, err := e.callAgent(ctx, step.AgentName, instruction)
		if err != nil {
			execCtx["last_output"] = ""
			execCtx["eval_score"] = 0.0
			execCtx["iteration"] = iteration
			last = models.StepResult{
				StepID:    step.StepID,
				AgentName: step.AgentName,
				Success:   false,
				Output:    err.Error(),
				Iteration: iteration,
			}
			continue
		}

		score := scoreLoopOutput(output)
		execCtx["eval_score"] = score
		execCtx["last_output"] = output
		execCtx["iteration"] = iteration

		passed := score >= loopPassScore
		if step.Condition != "" {
			passed = EvaluateCondition(step.Condition, execCtx)
		}
		last = models.StepResult{
			StepID:    step.StepID,
			AgentName: step.AgentName,
			Success:   passed,
			Output:    output,
			Iteration: iteration,
		}
		if passed {
			break
		}
		execCtx["feedback"] = fmt.Sprintf("第 %d 次嘗試品質分數 %.2f，請改進輸出。", iteration, score)
	}
	return last
}

// scoreLoopOutput grades a loop iteration on length and structure.
func scoreLoopOutput(output string) float64 {
	if output == "" {
		return 0.0
	}
	score := 0.3
	switch length := len(output); {
	case length >= 200:
		score += 0.3
	case length >= 100:
		score += 0.2
	case length >= 50:
		score += 0.1
	}
	if strings.ContainsAny(output, "#-*") {
		score += 0.2
	}
	if strings.Contains(output, "\n") {
		score += 0.2
	}
	return math.Min(score, 1.0)
}

// mergeParallelResults rejoins the last PARALLEL step's branch outputs,
// falling back to last_output when no parallel step ran.
func mergeParallelResults(execCtx map[string]any) string {
	stored, ok := execCtx["_parallel_results"].([]parallelResult)
	if !ok || len(stored) == 0 {
		if last, ok := execCtx["last_output"].(string); ok {
			return last
		}
		return ""
	}
	parts := make([]string, len(stored))
	for i, r := range stored {
		parts[i] = fmt.Sprintf("[%s] %s", r.AgentName, r.Output)
	}
	return strings.Join(parts, "\n---\n")
}

// renderTemplate substitutes {name} placeholders from the context.
// Placeholders with no context value are left intact.
func renderTemplate(template string, execCtx map[string]any) string {
	if !strings.Contains(template, "{") {
		return template
	}
	rendered := template
	for key, value := range execCtx {
		placeholder := "{" + key + "}"
		if !strings.Contains(rendered, placeholder) {
			continue
		}
		rendered = strings.ReplaceAll(rendered, placeholder, stringify(value))
	}
	return rendered
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func queued(remaining []models.WorkflowStep, stepID string) bool {
	for _, step := range remaining {
		if step.StepID == stepID {
			return true
		}
	}
	return false
}

func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
