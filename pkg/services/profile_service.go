package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/database"
	"github.com/overseer-ai/overseer/pkg/models"
)

// ProfileService manages agent employment profiles: identity, skill
// matrix, SLA targets, lifetime counters, and the daily performance and
// cost histories.
type ProfileService struct {
	client *database.Client

	// today's per-agent accumulators, flushed into performance_history
	// on every recorded task
	mu    sync.Mutex
	today map[string]*todayAccum
}

type todayAccum struct {
	date      string
	scores    []float64
	durations []float64
	tokens    int64
	successes int
}

// NewProfileService creates a new ProfileService.
func NewProfileService(client *database.Client) *ProfileService {
	return &ProfileService{
		client: client,
		today:  make(map[string]*todayAccum),
	}
}

type profileRow struct {
	AgentName           string `db:"agent_name"`
	Role                string `db:"role"`
	Department          string `db:"department"`
	HiredDate           string `db:"hired_date"`
	SkillMatrix         string `db:"skill_matrix"`
	SLATargets          string `db:"sla_targets"`
	TotalTasksCompleted int64  `db:"total_tasks_completed"`
	TotalTokensUsed     int64  `db:"total_tokens_used"`
}

func (r *profileRow) toModel() (*models.AgentProfile, error) {
	profile := &models.AgentProfile{
		AgentName:           r.AgentName,
		Role:                r.Role,
		Department:          r.Department,
		HiredDate:           r.HiredDate,
		SkillMatrix:         map[string]models.SkillEntry{},
		TotalTasksCompleted: r.TotalTasksCompleted,
		TotalTokensUsed:     r.TotalTokensUsed,
	}
	if err := json.Unmarshal([]byte(r.SkillMatrix), &profile.SkillMatrix); err != nil {
		return nil, fmt.Errorf("corrupt skill_matrix for %s: %w", r.AgentName, err)
	}
	if err := json.Unmarshal([]byte(r.SLATargets), &profile.SLATargets); err != nil {
		return nil, fmt.Errorf("corrupt sla_targets for %s: %w", r.AgentName, err)
	}
	return profile, nil
}

// EnsureDefaults seeds one profile row per configured agent. Existing rows
// are left untouched so hired_date and lifetime counters survive restarts.
func (s *ProfileService) EnsureDefaults(ctx context.Context, agents map[string]*config.AgentConfig) error {
	today := time.Now().Format("2006-01-02")
	for name, agent := range agents {
		matrix := make(map[string]models.SkillEntry, len(agent.Skills))
		for skill, level := range agent.Skills {
			matrix[skill] = models.SkillEntry{
				Level:    models.SkillLevel(level),
				LastUsed: today,
			}
		}
		targets := make([]models.SLATarget, 0, len(agent.SLATargets))
		for _, sla := range agent.SLATargets {
			targets = append(targets, models.SLATarget{
				MetricName:  sla.Metric,
				TargetValue: sla.Target,
				Unit:        sla.Unit,
			})
		}

		matrixJSON, err := json.Marshal(matrix)
		if err != nil {
			return fmt.Errorf("failed to encode skill matrix for %s: %w", name, err)
		}
		targetsJSON, err := json.Marshal(targets)
		if err != nil {
			return fmt.Errorf("failed to encode sla targets for %s: %w", name, err)
		}

		_, err = s.client.DB().ExecContext(ctx, `
			INSERT INTO agent_profiles
				(agent_name, role, department, hired_date, skill_matrix, sla_targets)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(agent_name) DO NOTHING`,
			name, agent.Role, agent.Department, today,
			string(matrixJSON), string(targetsJSON))
		if err != nil {
			return fmt.Errorf("failed to seed profile %s: %w", name, err)
		}
	}
	return nil
}

// Get loads one agent profile.
func (s *ProfileService) Get(ctx context.Context, agentName string) (*models.AgentProfile, error) {
	var row profileRow
	err := s.client.DB().GetContext(ctx, &row,
		`SELECT * FROM agent_profiles WHERE agent_name = ?`, agentName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return row.toModel()
}

// List loads every agent profile, ordered by name.
func (s *ProfileService) List(ctx context.Context) ([]*models.AgentProfile, error) {
	var rows []profileRow
	err := s.client.DB().SelectContext(ctx, &rows,
		`SELECT * FROM agent_profiles ORDER BY agent_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	profiles := make([]*models.AgentProfile, len(rows))
	for i := range rows {
		profile, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		profiles[i] = profile
	}
	return profiles, nil
}

// RecordTask folds one finished task into the agent's profile: lifetime
// counters, today's accumulators, the SLA current values, and the daily
// performance_history row.
func (s *ProfileService) RecordTask(ctx context.Context, agentName string, score, durationSec float64, tokens int64) error {
	today := time.Now().Format("2006-01-02")

	s.mu.Lock()
	acc := s.today[agentName]
	if acc == nil || acc.date != today {
		acc = &todayAccum{date: today}
		s.today[agentName] = acc
	}
	acc.scores = append(acc.scores, score)
	acc.durations = append(acc.durations, durationSec)
	acc.tokens += tokens
	if score >= 0.5 {
		acc.successes++
	}
	snapshot := acc.snapshot()
	s.mu.Unlock()

	res, err := s.client.DB().ExecContext(ctx, `
		UPDATE agent_profiles
		SET total_tasks_completed = total_tasks_completed + 1,
		    total_tokens_used     = total_tokens_used + ?
		WHERE agent_name = ?`, tokens, agentName)
	if err != nil {
		return fmt.Errorf("failed to update profile counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := s.refreshSLACurrents(ctx, agentName, snapshot); err != nil {
		return err
	}

	_, err = s.client.DB().ExecContext(ctx, `
		INSERT INTO performance_history
			(agent_name, date, tasks_completed, avg_score, success_rate, avg_response_time_sec, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_name, date) DO UPDATE SET
			tasks_completed       = excluded.tasks_completed,
			avg_score             = excluded.avg_score,
			success_rate          = excluded.success_rate,
			avg_response_time_sec = excluded.avg_response_time_sec,
			tokens_used           = excluded.tokens_used`,
		agentName, snapshot.Date, snapshot.TasksCompleted, snapshot.AvgScore,
		snapshot.SuccessRate, snapshot.AvgResponseTimeSec, snapshot.TokensUsed)
	if err != nil {
		return fmt.Errorf("failed to upsert daily snapshot: %w", err)
	}
	return nil
}

func (a *todayAccum) snapshot() models.DailySnapshot {
	n := len(a.scores)
	snap := models.DailySnapshot{Date: a.date, TasksCompleted: n, TokensUsed: a.tokens}
	if n == 0 {
		return snap
	}
	var scoreSum, durSum float64
	for i := range a.scores {
		scoreSum += a.scores[i]
		durSum += a.durations[i]
	}
	snap.AvgScore = scoreSum / float64(n)
	snap.SuccessRate = float64(a.successes) / float64(n)
	snap.AvgResponseTimeSec = durSum / float64(n)
	return snap
}

// refreshSLACurrents rewrites the profile's sla_targets JSON with the
// current values from today's accumulator.
func (s *ProfileService) refreshSLACurrents(ctx context.Context, agentName string, snap models.DailySnapshot) error {
	var raw string
	err := s.client.DB().GetContext(ctx, &raw,
		`SELECT sla_targets FROM agent_profiles WHERE agent_name = ?`, agentName)
	if err != nil {
		return fmt.Errorf("failed to load sla targets: %w", err)
	}
	var targets []models.SLATarget
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return fmt.Errorf("corrupt sla_targets for %s: %w", agentName, err)
	}
	for i := range targets {
		switch targets[i].MetricName {
		case "avg_score":
			targets[i].CurrentValue = snap.AvgScore
		case "success_rate":
			targets[i].CurrentValue = snap.SuccessRate
		case "avg_response_time":
			targets[i].CurrentValue = snap.AvgResponseTimeSec
		}
	}
	encoded, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("failed to encode sla targets: %w", err)
	}
	_, err = s.client.DB().ExecContext(ctx,
		`UPDATE agent_profiles SET sla_targets = ? WHERE agent_name = ?`,
		string(encoded), agentName)
	if err != nil {
		return fmt.Errorf("failed to store sla targets: %w", err)
	}
	return nil
}

// RecordCost appends one LLM cost record for the agent.
func (s *ProfileService) RecordCost(ctx context.Context, agentName, provider string, tokens int64, costUSD float64) error {
	_, err := s.client.DB().ExecContext(ctx, `
		INSERT INTO cost_history (agent_name, date, llm_provider, tokens_used, estimated_cost_usd)
		VALUES (?, ?, ?, ?, ?)`,
		agentName, time.Now().Format("2006-01-02"), provider, tokens, costUSD)
	if err != nil {
		return fmt.Errorf("failed to record cost: %w", err)
	}
	return nil
}

// Trend returns the agent's most recent daily snapshots, oldest first.
func (s *ProfileService) Trend(ctx context.Context, agentName string, days int) ([]models.DailySnapshot, error) {
	if days <= 0 {
		days = 7
	}
	var rows []struct {
		Date               string  `db:"date"`
		TasksCompleted     int     `db:"tasks_completed"`
		AvgScore           float64 `db:"avg_score"`
		SuccessRate        float64 `db:"success_rate"`
		AvgResponseTimeSec float64 `db:"avg_response_time_sec"`
		TokensUsed         int64   `db:"tokens_used"`
	}
	err := s.client.DB().SelectContext(ctx, &rows, `
		SELECT date, tasks_completed, avg_score, success_rate, avg_response_time_sec, tokens_used
		FROM performance_history
		WHERE agent_name = ?
		ORDER BY date DESC
		LIMIT ?`, agentName, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance trend: %w", err)
	}
	// Reverse into chronological order.
	trend := make([]models.DailySnapshot, len(rows))
	for i := range rows {
		r := rows[len(rows)-1-i]
		trend[i] = models.DailySnapshot{
			Date:               r.Date,
			TasksCompleted:     r.TasksCompleted,
			AvgScore:           r.AvgScore,
			SuccessRate:        r.SuccessRate,
			AvgResponseTimeSec: r.AvgResponseTimeSec,
			TokensUsed:         r.TokensUsed,
		}
	}
	return trend, nil
}

// SLACompliance returns the fraction of the profile's SLA targets that
// currently hold; a profile with no targets is fully compliant.
func (s *ProfileService) SLACompliance(profile *models.AgentProfile) float64 {
	if len(profile.SLATargets) == 0 {
		return 1.0
	}
	met := 0
	for _, target := range profile.SLATargets {
		if target.Met() {
			met++
		}
	}
	return float64(met) / float64(len(profile.SLATargets))
}

// FleetSummary rolls today's activity across the whole fleet.
func (s *ProfileService) FleetSummary(ctx context.Context) (*models.FleetSummary, error) {
	today := time.Now().Format("2006-01-02")

	var agents []struct {
		AgentName           string `db:"agent_name"`
		Role                string `db:"role"`
		Department          string `db:"department"`
		TotalTasksCompleted int64  `db:"total_tasks_completed"`
	}
	err := s.client.DB().SelectContext(ctx, &agents, `
		SELECT agent_name, role, department, total_tasks_completed
		FROM agent_profiles ORDER BY agent_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fleet agents: %w", err)
	}

	var perf []struct {
		AgentName string          `db:"agent_name"`
		Tasks     sql.NullInt64   `db:"tasks"`
		Score     sql.NullFloat64 `db:"score"`
	}
	err = s.client.DB().SelectContext(ctx, &perf, `
		SELECT agent_name,
		       SUM(tasks_completed) AS tasks,
		       AVG(avg_score)       AS score
		FROM performance_history
		WHERE date = ?
		GROUP BY agent_name`, today)
	if err != nil {
		return nil, fmt.Errorf("failed to query today's performance: %w", err)
	}

	var totalCost sql.NullFloat64
	err = s.client.DB().GetContext(ctx, &totalCost,
		`SELECT SUM(estimated_cost_usd) FROM cost_history WHERE date = ?`, today)
	if err != nil {
		return nil, fmt.Errorf("failed to query today's cost: %w", err)
	}

	type perfEntry struct {
		tasks int
		score sql.NullFloat64
	}
	perfMap := make(map[string]perfEntry, len(perf))
	totalTasksToday := 0
	var scoreSum float64
	scoreCount := 0
	for _, p := range perf {
		perfMap[p.AgentName] = perfEntry{tasks: int(p.Tasks.Int64), score: p.Score}
		totalTasksToday += int(p.Tasks.Int64)
		if p.Score.Valid {
			scoreSum += p.Score.Float64
			scoreCount++
		}
	}

	summary := &models.FleetSummary{
		TotalAgents:       len(agents),
		TotalTasksToday:   totalTasksToday,
		TotalCostTodayUSD: roundTo(totalCost.Float64, 6),
		Agents:            make([]models.FleetAgent, 0, len(agents)),
	}
	if scoreCount > 0 {
		summary.FleetAvgScore = roundTo(scoreSum/float64(scoreCount), 4)
	}

	for _, a := range agents {
		entry := perfMap[a.AgentName]
		fa := models.FleetAgent{
			AgentName:           a.AgentName,
			Role:                a.Role,
			Department:          a.Department,
			TotalTasksCompleted: a.TotalTasksCompleted,
			TasksToday:          entry.tasks,
		}
		if entry.score.Valid {
			fa.AvgScoreToday = roundTo(entry.score.Float64, 4)
		}
		summary.Agents = append(summary.Agents, fa)
	}
	return summary, nil
}

// DeleteHistoryBefore removes performance and cost history rows dated
// before cutoff. Returns total rows removed across both tables.
func (s *ProfileService) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffDate := cutoff.UTC().Format("2006-01-02")
	var total int64
	for _, table := range []string{"performance_history", "cost_history"} {
		res, err := s.client.DB().ExecContext(ctx,
			`DELETE FROM `+table+` WHERE date < ?`, cutoffDate)
		if err != nil {
			return total, fmt.Errorf("failed to delete old %s rows: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to read %s delete result: %w", table, err)
		}
		total += n
	}
	return total, nil
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
