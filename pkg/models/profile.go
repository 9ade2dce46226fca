package models

// SkillLevel grades a profiled skill from beginner to expert.
type SkillLevel int

const (
	SkillBeginner     SkillLevel = 1
	SkillIntermediate SkillLevel = 2
	SkillAdvanced     SkillLevel = 3
	SkillExpert       SkillLevel = 4
)

func (l SkillLevel) String() string {
	switch l {
	case SkillBeginner:
		return "BEGINNER"
	case SkillIntermediate:
		return "INTERMEDIATE"
	case SkillAdvanced:
		return "ADVANCED"
	case SkillExpert:
		return "EXPERT"
	}
	return "UNKNOWN"
}

// SkillEntry is one cell of an agent's skill matrix.
type SkillEntry struct {
	Level      SkillLevel `json:"level"`
	LastUsed   string     `json:"last_used,omitempty"`
	UsageCount int        `json:"usage_count"`
}

// SLAUnit names the measurement unit of an SLA target.
const (
	SLAUnitSeconds = "seconds"
	SLAUnitPercent = "percent"
	SLAUnitScore   = "score"
)

// SLATarget is one service-level objective tracked per agent.
// Targets in seconds are met when 0 < current <= target; score and
// percent targets are met when current >= target.
type SLATarget struct {
	MetricName   string  `json:"metric_name"`
	TargetValue  float64 `json:"target_value"`
	CurrentValue float64 `json:"current_value"`
	Unit         string  `json:"unit"`
}

// Met reports whether the target's SLA currently holds.
func (t SLATarget) Met() bool {
	if t.Unit == SLAUnitSeconds {
		return t.CurrentValue > 0 && t.CurrentValue <= t.TargetValue
	}
	return t.CurrentValue >= t.TargetValue
}

// AgentProfile is the durable record of one agent's identity, skills,
// SLA targets, and lifetime counters.
type AgentProfile struct {
	AgentName           string                `json:"agent_name"`
	Role                string                `json:"role"`
	Department          string                `json:"department"`
	HiredDate           string                `json:"hired_date"`
	SkillMatrix         map[string]SkillEntry `json:"skill_matrix"`
	SLATargets          []SLATarget           `json:"sla_targets"`
	TotalTasksCompleted int64                 `json:"total_tasks_completed"`
	TotalTokensUsed     int64                 `json:"total_tokens_used"`
}

// DailySnapshot is one agent-day of rolled-up performance.
type DailySnapshot struct {
	Date               string  `json:"date"`
	TasksCompleted     int     `json:"tasks_completed"`
	AvgScore           float64 `json:"avg_score"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResponseTimeSec float64 `json:"avg_response_time_sec"`
	TokensUsed         int64   `json:"tokens_used"`
}

// FleetAgent is one agent's line in the fleet summary.
type FleetAgent struct {
	AgentName           string  `json:"agent_name"`
	Role                string  `json:"role"`
	Department          string  `json:"department"`
	TotalTasksCompleted int64   `json:"total_tasks_completed"`
	TasksToday          int     `json:"tasks_today"`
	AvgScoreToday       float64 `json:"avg_score_today"`
}

// FleetSummary rolls the whole fleet up for the dashboard.
type FleetSummary struct {
	TotalAgents       int          `json:"total_agents"`
	TotalTasksToday   int          `json:"total_tasks_today"`
	FleetAvgScore     float64      `json:"fleet_avg_score"`
	TotalCostTodayUSD float64      `json:"total_cost_today_usd"`
	Agents            []FleetAgent `json:"agents"`
}
