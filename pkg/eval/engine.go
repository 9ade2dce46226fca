// Package eval scores agent output quality on a 0..1 scale and tracks
// per-agent statistics. Keyword heuristics always work; an optional
// LLM-judge pass takes precedence when it yields a parseable verdict.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/overseer-ai/overseer/pkg/llm"
)

// DefaultPassScore is the default pass threshold.
const DefaultPassScore = 0.7

// Record is one evaluation in the in-memory history.
type Record struct {
	AgentName string  `json:"agent_name"`
	Task      string  `json:"task"`
	Score     float64 `json:"score"`
	Timestamp string  `json:"timestamp"`
	Feedback  string  `json:"feedback,omitempty"`
}

// AgentStats aggregates an agent's evaluation history.
type AgentStats struct {
	Count       int     `json:"count"`
	AvgScore    float64 `json:"avg_score"`
	PassRate    float64 `json:"pass_rate"`
	LatestScore float64 `json:"latest_score"`
}

// Engine evaluates agent output quality.
type Engine struct {
	passScore float64
	llmClient *llm.Client
	logger    *slog.Logger

	mu      sync.Mutex
	history []Record
}

// New creates an Engine. llmClient may be nil; scoring then relies on the
// keyword heuristics alone.
func New(passScore float64, llmClient *llm.Client, logger *slog.Logger) *Engine {
	if passScore <= 0 || passScore > 1 {
		passScore = DefaultPassScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{passScore: passScore, llmClient: llmClient, logger: logger}
}

// Evaluate scores the output for the task. The result is clamped to [0,1]
// and appended to the history.
func (e *Engine) Evaluate(ctx context.Context, agentName, task, output string) float64 {
	score, feedback, ok := e.evaluateByLLM(ctx, task, output)
	if !ok {
		score = e.evaluateByHeuristics(task, output)
	}
	score = clamp01(score)

	e.mu.Lock()
	e.history = append(e.history, Record{
		AgentName: agentName,
		Task:      task,
		Score:     score,
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Feedback:  feedback,
	})
	e.mu.Unlock()

	return score
}

// evaluateByHeuristics averages the three keyword dimensions: structure,
// richness, relevance.
func (e *Engine) evaluateByHeuristics(task, output string) float64 {
	return (evalStructure(output) + evalRichness(output) + evalRelevance(task, output)) / 3
}

// evalStructure rewards markdown shape: headings, lists, multiple lines,
// key-value pairs.
func evalStructure(output string) float64 {
	score := 0.3
	if strings.Contains(output, "#") {
		score += 0.2
	}
	if strings.Contains(output, "-") || strings.Contains(output, "*") {
		score += 0.2
	}
	if len(strings.Split(output, "\n")) >= 3 {
		score += 0.15
	}
	if strings.Contains(output, ":") {
		score += 0.15
	}
	return min1(score)
}

// evalRichness grades raw length in bytes.
func evalRichness(output string) float64 {
	switch length := len(output); {
	case length >= 500:
		return 1.0
	case length >= 200:
		return 0.8
	case length >= 100:
		return 0.6
	case length >= 50:
		return 0.4
	default:
		return 0.2
	}
}

// evalRelevance measures how many task tokens reappear in the output.
// An empty task scores a neutral 0.5.
func evalRelevance(task, output string) float64 {
	cleaned := strings.NewReplacer("'", "", `"`, "").Replace(strings.ToLower(task))
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return 0.5
	}
	seen := make(map[string]bool, len(words))
	outputLower := strings.ToLower(output)
	matches := 0
	for _, word := range words {
		if seen[word] {
			continue
		}
		seen[word] = true
		if strings.Contains(outputLower, word) {
			matches++
		}
	}
	return min1(float64(matches) / float64(len(seen)))
}

const judgePromptTemplate = `你是輸出品質評審。請評估以下 Agent 輸出是否完成了任務，並以 JSON 回覆。

任務：%s

輸出：
%s

只回覆 JSON：
{"overall_score": 0.0, "dimensions": {"task_completion": 0.0, "accuracy": 0.0, "clarity": 0.0, "actionability": 0.0}, "feedback": "一句話", "pass": true}`

// evaluateByLLM runs the judge pass. ok=false on any failure so the
// heuristics carry the score.
func (e *Engine) evaluateByLLM(ctx context.Context, task, output string) (float64, string, bool) {
	if e.llmClient == nil || !e.llmClient.Available() {
		return 0, "", false
	}
	answer, err := e.llmClient.Chat(ctx, fmt.Sprintf(judgePromptTemplate, task, output),
		llm.WithMaxTokens(512))
	if err != nil || answer == "" {
		if err != nil {
			e.logger.Warn("LLM judge failed, falling back to heuristics", "error", err)
		}
		return 0, "", false
	}

	var parsed struct {
		OverallScore float64 `json:"overall_score"`
		Feedback     string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(answer)), &parsed); err != nil {
		e.logger.Warn("LLM judge verdict did not parse, falling back to heuristics", "error", err)
		return 0, "", false
	}
	return parsed.OverallScore, parsed.Feedback, true
}

// IsPassing reports whether the score meets the pass threshold.
func (e *Engine) IsPassing(score float64) bool {
	return score >= e.passScore
}

// PassScore returns the configured pass threshold.
func (e *Engine) PassScore() float64 {
	return e.passScore
}

// GetAgentStats aggregates the agent's evaluation history.
func (e *Engine) GetAgentStats(agentName string) AgentStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stats AgentStats
	var sum float64
	passed := 0
	for _, rec := range e.history {
		if rec.AgentName != agentName {
			continue
		}
		stats.Count++
		sum += rec.Score
		if rec.Score >= e.passScore {
			passed++
		}
		stats.LatestScore = rec.Score
	}
	if stats.Count > 0 {
		stats.AvgScore = sum / float64(stats.Count)
		stats.PassRate = float64(passed) / float64(stats.Count)
	}
	return stats
}

// History returns a snapshot copy of the evaluation history.
func (e *Engine) History() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Record, len(e.history))
	copy(out, e.history)
	return out
}

// Report renders a per-agent summary of the evaluation history.
func (e *Engine) Report() string {
	records := e.History()
	if len(records) == 0 {
		return "尚無評估記錄。"
	}
	agents := map[string]bool{}
	for _, rec := range records {
		agents[rec.AgentName] = true
	}
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{"=== Eval Engine Report ==="}
	for _, name := range names {
		stats := e.GetAgentStats(name)
		lines = append(lines, fmt.Sprintf("  %s: %d evaluations | Avg: %.2f | Pass rate: %.0f%%",
			name, stats.Count, stats.AvgScore, stats.PassRate*100))
	}
	return strings.Join(lines, "\n")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
