// Package harness drives the Explore-Plan-Code-Commit session pipeline
// around a single agent invocation: restore memory, gate on risk, run
// the executor, then score and persist the outcome.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/overseer-ai/overseer/pkg/eval"
	"github.com/overseer-ai/overseer/pkg/hitl"
	"github.com/overseer-ai/overseer/pkg/models"
	"github.com/overseer-ai/overseer/pkg/risk"
	"github.com/overseer-ai/overseer/pkg/services"
)

// contextRestoreLimit is how many prior sessions Explore hands the agent.
const contextRestoreLimit = 5

// Executor produces the agent's output for one instruction. The restored
// session context carries the agent's recent history.
type Executor func(ctx context.Context, instruction string, sessionCtx *models.SessionContext) (string, error)

// Harness runs the EPCC pipeline. profiles and progress may be nil; the
// corresponding Commit-phase side effects are then skipped.
type Harness struct {
	sessions *services.SessionService
	profiles *services.ProfileService
	assessor *risk.Assessor
	gate     *hitl.Gate
	eval     *eval.Engine
	progress *ProgressLog
	logger   *slog.Logger
}

// New creates a Harness over the shared services.
func New(sessions *services.SessionService, profiles *services.ProfileService, assessor *risk.Assessor, gate *hitl.Gate, evaluator *eval.Engine, progress *ProgressLog, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{
		sessions: sessions,
		profiles: profiles,
		assessor: assessor,
		gate:     gate,
		eval:     evaluator,
		progress: progress,
		logger:   logger.With("component", "harness"),
	}
}

// RunEPCC runs the full pipeline for one instruction under a fresh task
// id. Execution failures and gate holds come back as a non-success
// result, not an error; the error return is for persistence problems.
func (h *Harness) RunEPCC(ctx context.Context, agentName, instruction string, executor Executor) (*models.SessionResult, error) {
	return h.Run(ctx, agentName, NewTaskID(), instruction, executor)
}

// NewTaskID mints a task id from the current clock.
func NewTaskID() string {
	return fmt.Sprintf("TASK-%d", time.Now().UnixNano()/int64(time.Millisecond))
}

// Run is RunEPCC with a caller-chosen task id, which makes repeated
// commits for the same work land on one session row.
func (h *Harness) Run(ctx context.Context, agentName, taskID, instruction string, executor Executor) (*models.SessionResult, error) {
	if agentName == "" {
		return nil, services.NewValidationError("agent_name", "required")
	}
	if instruction == "" {
		return nil, services.NewValidationError("instruction", "required")
	}
	if executor == nil {
		return nil, services.NewValidationError("executor", "required")
	}
	started := time.Now()

	// Explore: restore the agent's recent memory.
	sessionCtx, err := h.explore(ctx, agentName)
	if err != nil {
		return nil, err
	}

	// Plan: classify risk and pass the approval gate.
	assessment := h.assessor.Assess(ctx, instruction, agentName)
	req, err := h.gate.CheckAndGate(ctx, instruction, agentName, assessment.Level, assessment.Reason)
	if err != nil {
		return nil, err
	}
	if !req.Status.Approved() {
		h.logger.Info("Session held at approval gate",
			"agent", agentName,
			"task_id", taskID,
			"request_id", req.RequestID,
			"risk_level", assessment.Level)
		return &models.SessionResult{
			TaskID:    taskID,
			AgentName: agentName,
			Success:   false,
			Output:    fmt.Sprintf("awaiting approval: %s", req.RequestID),
			RiskLevel: assessment.Level,
			Timestamp: models.Now(),
		}, nil
	}

	// Code: run the executor; its failure becomes the session output.
	output, execErr := executor(ctx, instruction, sessionCtx)
	success := execErr == nil
	if execErr != nil {
		output = fmt.Sprintf("execution failed: %s", execErr.Error())
		h.logger.Warn("Executor failed",
			"agent", agentName, "task_id", taskID, "error", execErr)
	}

	// Commit: score, persist, and journal the outcome.
	score := h.eval.Evaluate(ctx, agentName, instruction, output)
	result := &models.SessionResult{
		TaskID:    taskID,
		AgentName: agentName,
		Success:   success,
		Output:    output,
		RiskLevel: assessment.Level,
		EvalScore: score,
		Timestamp: models.Now(),
	}
	if err := h.commit(ctx, result, instruction, time.Since(started)); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *Harness) explore(ctx context.Context, agentName string) (*models.SessionContext, error) {
	entries, err := h.sessions.RestoreContext(ctx, agentName, contextRestoreLimit)
	if err != nil {
		return nil, err
	}
	digest := make([]string, len(entries))
	for i, e := range entries {
		digest[i] = fmt.Sprintf("[%s] %s (%.2f): %s",
			e.Status, e.TaskID, e.EvalScore, headLine(e.Task, 60))
	}
	h.logger.Debug("Context restored", "agent", agentName, "sessions", len(entries))
	return &models.SessionContext{
		AgentName:    agentName,
		LastSessions: entries,
		LastProgress: digest,
		SessionStart: models.Now(),
	}, nil
}

func (h *Harness) commit(ctx context.Context, result *models.SessionResult, instruction string, elapsed time.Duration) error {
	status := models.SessionCompleted
	if !result.Success {
		status = models.SessionFailed
	}
	record := &models.SessionRecord{
		AgentName: result.AgentName,
		TaskID:    result.TaskID,
		Task:      instruction,
		Status:    status,
		EvalScore: result.EvalScore,
		RiskLevel: result.RiskLevel,
		Output:    result.Output,
	}
	if err := h.sessions.SaveSession(ctx, record); err != nil {
		return err
	}

	if h.profiles != nil {
		err := h.profiles.RecordTask(ctx, result.AgentName, result.EvalScore,
			elapsed.Seconds(), estimateTokens(instruction, result.Output))
		if err != nil {
			// Profile bookkeeping must not lose an already-saved session.
			h.logger.Warn("Could not record task on profile",
				"agent", result.AgentName, "error", err)
		}
	}
	if h.progress != nil {
		h.progress.Append(result.AgentName, result.TaskID, string(status),
			result.EvalScore, string(result.RiskLevel), result.Output)
	}

	h.logger.Info("Session committed",
		"agent", result.AgentName,
		"task_id", result.TaskID,
		"status", status,
		"eval_score", result.EvalScore,
		"risk_level", result.RiskLevel,
		"duration_sec", elapsed.Seconds())
	return nil
}

// estimateTokens approximates token usage at four characters per token.
func estimateTokens(instruction, output string) int64 {
	return int64((len(instruction) + len(output)) / 4)
}
