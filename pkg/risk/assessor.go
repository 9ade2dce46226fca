// Package risk classifies instructions ahead of execution. A rule pass
// over fixed keyword lists always runs; an optional LLM pass can only
// raise the level, never lower it.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/overseer-ai/overseer/pkg/llm"
	"github.com/overseer-ai/overseer/pkg/models"
)

// highRiskKeywords force HIGH regardless of anything else in the text.
var highRiskKeywords = []string{
	"刪除", "delete", "移除", "remove",
	"覆蓋", "overwrite",
	"全部", "all",
	"生產", "production", "prod",
	"客戶資料", "customer data",
	"薪資", "salary", "payroll",
	"合約", "contract",
	"機密", "confidential",
}

// medRiskKeywords force at least MEDIUM.
var medRiskKeywords = []string{
	"修改", "modify", "update", "編輯", "edit",
	"變更", "change",
	"批次", "batch",
	"發佈", "publish", "deploy",
	"通知", "notify",
	"流程變更", "process change",
}

// Assessment is the outcome of one risk evaluation.
type Assessment struct {
	Level  models.RiskLevel `json:"level"`
	Reason string           `json:"reason"`
	Mode   string           `json:"mode"` // "rule" or "llm"
}

// LogEntry is one line of the in-memory audit log.
type LogEntry struct {
	Task   string           `json:"task"`
	Agent  string           `json:"agent"`
	Level  models.RiskLevel `json:"level"`
	Reason string           `json:"reason"`
	Mode   string           `json:"mode"`
}

// llmConfidenceFloor is the minimum confidence an LLM verdict needs to
// participate in the final level.
const llmConfidenceFloor = 0.8

// Assessor evaluates instructions. The zero value is not usable; use New.
type Assessor struct {
	llmClient *llm.Client
	logger    *slog.Logger

	mu  sync.Mutex
	log []LogEntry
}

// New creates an Assessor. llmClient may be nil or offline; the rule pass
// carries the assessment alone in that case.
func New(llmClient *llm.Client, logger *slog.Logger) *Assessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assessor{llmClient: llmClient, logger: logger}
}

// Assess classifies the instruction. The rule verdict is the floor: when
// the LLM pass runs and is confident enough, the final level is the max of
// the two, so an LLM opinion can only escalate.
func (a *Assessor) Assess(ctx context.Context, task, agentName string) Assessment {
	result := a.assessByRules(task)

	if llmVerdict, ok := a.assessByLLM(ctx, task); ok {
		if models.MaxRiskLevel(result.Level, llmVerdict.Level) != result.Level {
			result = Assessment{
				Level:  llmVerdict.Level,
				Reason: llmVerdict.Reason,
				Mode:   "llm",
			}
		}
	}

	a.record(task, agentName, result)
	return result
}

func (a *Assessor) assessByRules(task string) Assessment {
	taskLower := strings.ToLower(task)

	if matches := matchKeywords(taskLower, highRiskKeywords); len(matches) > 0 {
		return Assessment{
			Level:  models.RiskHigh,
			Reason: "高風險關鍵字: " + strings.Join(head(matches, 3), ", "),
			Mode:   "rule",
		}
	}
	if matches := matchKeywords(taskLower, medRiskKeywords); len(matches) > 0 {
		return Assessment{
			Level:  models.RiskMedium,
			Reason: "中風險關鍵字: " + strings.Join(head(matches, 3), ", "),
			Mode:   "rule",
		}
	}
	return Assessment{
		Level:  models.RiskLow,
		Reason: "未偵測到風險關鍵字",
		Mode:   "rule",
	}
}

const llmPromptTemplate = `評估以下任務指令的執行風險，並以 JSON 回覆。

任務：%s

風險等級定義：
- LOW：唯讀或產出文件的任務，無副作用
- MEDIUM：會修改資料或對外發佈的任務
- HIGH：不可逆、涉及生產環境或敏感資料的任務

只回覆 JSON：{"level": "LOW|MEDIUM|HIGH", "reason": "一句話理由", "confidence": 0.0}`

// assessByLLM runs the optional second pass. Returns ok=false when the
// client is unavailable, the call fails, the answer does not parse, or
// the verdict is not confident enough.
func (a *Assessor) assessByLLM(ctx context.Context, task string) (Assessment, bool) {
	if a.llmClient == nil || !a.llmClient.Available() {
		return Assessment{}, false
	}

	answer, err := a.llmClient.Chat(ctx, fmt.Sprintf(llmPromptTemplate, task),
		llm.WithMaxTokens(256))
	if err != nil || answer == "" {
		if err != nil {
			a.logger.Warn("LLM risk pass failed, keeping rule verdict", "error", err)
		}
		return Assessment{}, false
	}

	var parsed struct {
		Level      string  `json:"level"`
		Reason     string  `json:"reason"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(answer)), &parsed); err != nil {
		a.logger.Warn("LLM risk verdict did not parse, keeping rule verdict", "error", err)
		return Assessment{}, false
	}
	level, err := models.ParseRiskLevel(parsed.Level)
	if err != nil || parsed.Confidence < llmConfidenceFloor {
		return Assessment{}, false
	}
	return Assessment{Level: level, Reason: parsed.Reason, Mode: "llm"}, true
}

func (a *Assessor) record(task, agentName string, result Assessment) {
	entry := LogEntry{
		Task:   truncate(task, 80),
		Agent:  agentName,
		Level:  result.Level,
		Reason: result.Reason,
		Mode:   result.Mode,
	}
	a.mu.Lock()
	a.log = append(a.log, entry)
	a.mu.Unlock()
}

// RequiresHumanApproval reports whether the level needs a human in the loop.
func RequiresHumanApproval(level models.RiskLevel) bool {
	return level == models.RiskMedium || level == models.RiskHigh
}

// Log returns a snapshot copy of the audit log.
func (a *Assessor) Log() []LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]LogEntry, len(a.log))
	copy(out, a.log)
	return out
}

// Report renders the last assessments as a text summary.
func (a *Assessor) Report() string {
	entries := a.Log()
	if len(entries) == 0 {
		return "尚無風險評估記錄。"
	}
	if len(entries) > 10 {
		entries = entries[len(entries)-10:]
	}
	lines := []string{"=== Risk Assessment Report ==="}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("  [%s] %s: %s — %s",
			e.Level, e.Agent, truncate(e.Task, 50), e.Reason))
	}
	return strings.Join(lines, "\n")
}

func matchKeywords(textLower string, keywords []string) []string {
	var matches []string
	for _, kw := range keywords {
		if strings.Contains(textLower, kw) {
			matches = append(matches, kw)
		}
	}
	return matches
}

func head(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
