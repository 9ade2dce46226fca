package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/overseer-ai/overseer/pkg/database"
	"github.com/overseer-ai/overseer/pkg/models"
)

// SessionService manages the session history and agent memory tables.
type SessionService struct {
	client *database.Client
}

// NewSessionService creates a new SessionService.
func NewSessionService(client *database.Client) *SessionService {
	return &SessionService{client: client}
}

// sessionRow is the sessions table row shape.
type sessionRow struct {
	ID        int64   `db:"id"`
	AgentName string  `db:"agent_name"`
	TaskID    string  `db:"task_id"`
	Task      string  `db:"task"`
	Status    string  `db:"status"`
	EvalScore float64 `db:"eval_score"`
	RiskLevel string  `db:"risk_level"`
	Output    string  `db:"output"`
	CreatedAt string  `db:"created_at"`
	UpdatedAt string  `db:"updated_at"`
}

func (r *sessionRow) toModel() *models.SessionRecord {
	return &models.SessionRecord{
		ID:        r.ID,
		AgentName: r.AgentName,
		TaskID:    r.TaskID,
		Task:      r.Task,
		Status:    models.SessionStatus(r.Status),
		EvalScore: r.EvalScore,
		RiskLevel: models.RiskLevel(r.RiskLevel),
		Output:    r.Output,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// SaveSession persists one session result. Rows are unique per
// (agent_name, task_id): the first write inserts, any repeat updates only
// the mutable columns and leaves created_at untouched.
func (s *SessionService) SaveSession(ctx context.Context, record *models.SessionRecord) error {
	if record.AgentName == "" {
		return NewValidationError("agent_name", "required")
	}
	if record.TaskID == "" {
		return NewValidationError("task_id", "required")
	}

	now := models.Now()
	if record.CreatedAt == "" {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := s.client.DB().ExecContext(ctx, `
		INSERT INTO sessions
			(agent_name, task_id, task, status, eval_score, risk_level, output, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_name, task_id)
		DO UPDATE SET
			status     = excluded.status,
			eval_score = excluded.eval_score,
			risk_level = excluded.risk_level,
			output     = excluded.output,
			updated_at = excluded.updated_at`,
		record.AgentName, record.TaskID, record.Task, string(record.Status),
		record.EvalScore, string(record.RiskLevel), record.Output,
		record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetLastSessions returns the agent's most recent sessions, newest first.
func (s *SessionService) GetLastSessions(ctx context.Context, agentName string, limit int) ([]*models.SessionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []sessionRow
	err := s.client.DB().SelectContext(ctx, &rows, `
		SELECT * FROM sessions
		WHERE agent_name = ?
		ORDER BY id DESC
		LIMIT ?`, agentName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	records := make([]*models.SessionRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].toModel()
	}
	return records, nil
}

// SearchByTask returns sessions whose instruction text contains the
// keyword, newest first.
func (s *SessionService) SearchByTask(ctx context.Context, keyword string) ([]*models.SessionRecord, error) {
	var rows []sessionRow
	err := s.client.DB().SelectContext(ctx, &rows, `
		SELECT * FROM sessions
		WHERE task LIKE ?
		ORDER BY id DESC`, "%"+keyword+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search sessions: %w", err)
	}
	records := make([]*models.SessionRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].toModel()
	}
	return records, nil
}

// GetAgentStats aggregates the agent's session history.
func (s *SessionService) GetAgentStats(ctx context.Context, agentName string) (*models.AgentStats, error) {
	var row struct {
		Total     int             `db:"total"`
		AvgScore  sql.NullFloat64 `db:"avg_score"`
		Successes sql.NullInt64   `db:"successes"`
	}
	err := s.client.DB().GetContext(ctx, &row, `
		SELECT
			COUNT(*)        AS total,
			AVG(eval_score) AS avg_score,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS successes
		FROM sessions
		WHERE agent_name = ?`,
		string(models.SessionCompleted), agentName)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent stats: %w", err)
	}

	stats := &models.AgentStats{
		AgentName:    agentName,
		TotalTasks:   row.Total,
		AvgEvalScore: round2(row.AvgScore.Float64),
	}
	if row.Total > 0 {
		stats.SuccessRate = round2(float64(row.Successes.Int64) / float64(row.Total))
	}
	return stats, nil
}

// RestoreContext rebuilds an agent's working context from its most recent
// sessions. This is what hands a fresh session its memory of prior work.
func (s *SessionService) RestoreContext(ctx context.Context, agentName string, limit int) ([]models.ContextEntry, error) {
	sessions, err := s.GetLastSessions(ctx, agentName, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]models.ContextEntry, len(sessions))
	for i, rec := range sessions {
		entries[i] = models.ContextEntry{
			TaskID:    rec.TaskID,
			Task:      rec.Task,
			Output:    rec.Output,
			Status:    string(rec.Status),
			EvalScore: rec.EvalScore,
			Timestamp: rec.CreatedAt,
		}
	}
	return entries, nil
}

// SetMemory stores a JSON-encoded value under (agent, key),
// last-writer-wins.
func (s *SessionService) SetMemory(ctx context.Context, agentName, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: value not JSON-encodable: %w", ErrInvalidInput, err)
	}
	_, err = s.client.DB().ExecContext(ctx, `
		INSERT INTO agent_memory (agent_name, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_name, key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		agentName, key, string(encoded), models.Now())
	if err != nil {
		return fmt.Errorf("failed to set memory: %w", err)
	}
	return nil
}

// GetMemory loads and decodes the value stored under (agent, key).
func (s *SessionService) GetMemory(ctx context.Context, agentName, key string, out any) error {
	var raw string
	err := s.client.DB().GetContext(ctx, &raw,
		`SELECT value FROM agent_memory WHERE agent_name = ? AND key = ?`,
		agentName, key)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get memory: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode memory value: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
