package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/overseer-ai/overseer/pkg/harness"
	"github.com/overseer-ai/overseer/pkg/llm"
	"github.com/overseer-ai/overseer/pkg/models"
	"github.com/overseer-ai/overseer/pkg/queue"
	"github.com/overseer-ai/overseer/pkg/services"
)

// dispatchLogCap bounds the in-memory dispatch history.
const dispatchLogCap = 100

// awaitingApprovalPrefix marks a gated pipeline result.
const awaitingApprovalPrefix = "awaiting approval"

// ExecutorRegistry resolves agent names to session executors.
type ExecutorRegistry interface {
	Executor(agentName string) (harness.Executor, bool)
}

// DispatchEntry is one line of the dispatch history.
type DispatchEntry struct {
	Prompt     string  `json:"prompt"`
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Risk       string  `json:"risk"`
	Result     string  `json:"result"`
	Timestamp  string  `json:"timestamp"`
}

// DispatchResult is the outcome of one dispatched instruction.
type DispatchResult struct {
	PlanID     string           `json:"plan_id"`
	Mode       models.PlanMode  `json:"mode"`
	Agent      string           `json:"agent,omitempty"`
	Confidence float64          `json:"confidence"`
	Success    bool             `json:"success"`
	Output     string           `json:"output"`
	RiskLevel  models.RiskLevel `json:"risk_level,omitempty"`
	SubTasks   []models.SubTask `json:"sub_tasks,omitempty"`
}

// Dispatcher is the routing façade: it classifies, plans, fans work out
// through the EPCC pipeline, and aggregates. It is also the queue's
// executor via ExecuteForQueue.
type Dispatcher struct {
	classifier *Classifier
	planner    *Planner
	aggregator *Aggregator
	harness    *harness.Harness
	registry   ExecutorRegistry
	taskQueue  *queue.Queue
	logger     *slog.Logger

	mu  sync.Mutex
	log []DispatchEntry
}

// NewDispatcher creates a Dispatcher. llmClient may be nil (rule-based
// routing); taskQueue may be nil when queued submission is not wired.
func NewDispatcher(llmClient *llm.Client, h *harness.Harness, registry ExecutorRegistry, taskQueue *queue.Queue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		classifier: NewClassifier(llmClient, logger),
		planner:    NewPlanner(llmClient, logger),
		aggregator: NewAggregator(llmClient, logger),
		harness:    h,
		registry:   registry,
		taskQueue:  taskQueue,
		logger:     logger.With("component", "dispatcher"),
	}
}

// Classifier exposes the dispatcher's intent classifier.
func (d *Dispatcher) Classifier() *Classifier { return d.classifier }

// Planner exposes the dispatcher's task planner.
func (d *Dispatcher) Planner() *Planner { return d.planner }

// Dispatch routes one instruction: plan, execute per mode, aggregate.
// Sub-task failures are reflected in the result, not returned as errors;
// the error return covers validation and persistence problems.
func (d *Dispatcher) Dispatch(ctx context.Context, instruction string) (*DispatchResult, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, services.NewValidationError("instruction", "required")
	}

	agent, confidence := d.classifier.Classify(ctx, instruction)
	plan := d.planner.Plan(ctx, instruction)

	d.logger.Info("Dispatching instruction",
		"agent", agent,
		"confidence", confidence,
		"plan_id", plan.PlanID,
		"mode", plan.Mode,
		"sub_tasks", len(plan.SubTasks))

	var result *DispatchResult
	var err error
	if plan.Single() || len(plan.SubTasks) == 1 {
		result, err = d.dispatchSingle(ctx, instruction, plan, agent, confidence)
	} else if plan.Mode == models.PlanSequential {
		result, err = d.dispatchSequential(ctx, plan, confidence)
	} else {
		result, err = d.dispatchParallel(ctx, plan, confidence)
	}
	if err != nil {
		return nil, err
	}

	d.record(DispatchEntry{
		Prompt:     headRunes(instruction, 80),
		Agent:      result.Agent,
		Confidence: confidence,
		Risk:       string(result.RiskLevel),
		Result:     headRunes(result.Output, 100),
		Timestamp:  models.Now(),
	})
	return result, nil
}

func (d *Dispatcher) dispatchSingle(ctx context.Context, instruction string, plan *models.ExecutionPlan, agent string, confidence float64) (*DispatchResult, error) {
	st := &plan.SubTasks[0]
	// The classifier picks the agent; the planner's keyword inference is
	// the fallback for unroutable input.
	if agent == UnknownAgent {
		agent = st.AgentName
	}
	st.AgentName = agent

	risk := d.runSubTask(ctx, st, instruction)
	output := ""
	if st.Result != nil {
		output = *st.Result
	}
	result := &DispatchResult{
		PlanID:     plan.PlanID,
		Mode:       models.PlanSingle,
		Agent:      agent,
		Confidence: confidence,
		Success:    st.Status == models.SubTaskCompleted,
		Output:     output,
		RiskLevel:  risk,
		SubTasks:   plan.SubTasks,
	}
	return result, nil
}

func (d *Dispatcher) dispatchSequential(ctx context.Context, plan *models.ExecutionPlan, confidence float64) (*DispatchResult, error) {
	prev := ""
	for i := range plan.SubTasks {
		st := &plan.SubTasks[i]
		input := st.Task
		if prev != "" {
			input = fmt.Sprintf("%s（前置結果參考：%s）", st.Task, headRunes(prev, maxPrevResultLength))
		}
		d.runSubTask(ctx, st, input)
		if st.Status == models.SubTaskCompleted && st.Result != nil {
			prev = *st.Result
		} else {
			// A broken link resets the thread; later steps run standalone.
			prev = ""
		}
	}
	return d.planResult(ctx, plan, confidence), nil
}

func (d *Dispatcher) dispatchParallel(ctx context.Context, plan *models.ExecutionPlan, confidence float64) (*DispatchResult, error) {
	var wg sync.WaitGroup
	for i := range plan.SubTasks {
		wg.Add(1)
		go func(st *models.SubTask) {
			defer wg.Done()
			d.runSubTask(ctx, st, st.Task)
		}(&plan.SubTasks[i])
	}
	wg.Wait()
	return d.planResult(ctx, plan, confidence), nil
}

// runSubTask executes one sub-task through the EPCC pipeline and folds
// the outcome back into its status and result. Returns the assessed
// risk level when the pipeline ran.
func (d *Dispatcher) runSubTask(ctx context.Context, st *models.SubTask, input string) models.RiskLevel {
	executor, ok := d.registry.Executor(st.AgentName)
	if !ok {
		msg := fmt.Sprintf("找不到 executor for %s", st.AgentName)
		st.Status = models.SubTaskFailed
		st.Result = &msg
		return ""
	}

	st.Status = models.SubTaskRunning
	result, err := d.harness.RunEPCC(ctx, st.AgentName, input, executor)
	if err != nil {
		msg := err.Error()
		st.Status = models.SubTaskFailed
		st.Result = &msg
		return ""
	}
	st.Result = &result.Output
	if result.Success {
		st.Status = models.SubTaskCompleted
	} else {
		st.Status = models.SubTaskFailed
	}
	return result.RiskLevel
}

func (d *Dispatcher) planResult(ctx context.Context, plan *models.ExecutionPlan, confidence float64) *DispatchResult {
	results := make([]AgentResult, 0, len(plan.SubTasks))
	success := true
	for _, st := range plan.SubTasks {
		output := ""
		if st.Result != nil {
			output = *st.Result
		}
		results = append(results, AgentResult{Agent: st.AgentName, Result: output})
		success = success && st.Status == models.SubTaskCompleted
	}
	return &DispatchResult{
		PlanID:     plan.PlanID,
		Mode:       plan.Mode,
		Agent:      string(plan.Mode),
		Confidence: confidence,
		Success:    success,
		Output:     d.aggregator.Aggregate(ctx, results, plan.MergeInstruction),
		SubTasks:   plan.SubTasks,
	}
}

// ExecuteForQueue is the Executor the task queue workers call. Pipeline
// failures become errors so the queue retries them; gated results return
// the "awaiting approval" output without error, so a held task does not
// burn retries.
func (d *Dispatcher) ExecuteForQueue(ctx context.Context, agentName, instruction string) (string, error) {
	executor, ok := d.registry.Executor(agentName)
	if !ok {
		return "", fmt.Errorf("找不到 executor for %s", agentName)
	}
	result, err := d.harness.RunEPCC(ctx, agentName, instruction, executor)
	if err != nil {
		return "", err
	}
	if !result.Success {
		if strings.HasPrefix(result.Output, awaitingApprovalPrefix) {
			return result.Output, nil
		}
		return "", errors.New(result.Output)
	}
	return result.Output, nil
}

// Submit enqueues an instruction for background execution.
func (d *Dispatcher) Submit(ctx context.Context, agentName, instruction string, priority models.TaskPriority, callbackURL string) (string, error) {
	if d.taskQueue == nil {
		return "", errors.New("task queue not configured")
	}
	return d.taskQueue.Enqueue(ctx, agentName, instruction, priority, callbackURL, nil)
}

// History returns the most recent dispatch entries, oldest first.
func (d *Dispatcher) History(n int) []DispatchEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.log
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]DispatchEntry, len(entries))
	copy(out, entries)
	return out
}

func (d *Dispatcher) record(entry DispatchEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, entry)
	if len(d.log) > dispatchLogCap {
		d.log = d.log[len(d.log)-dispatchLogCap:]
	}
}

func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
