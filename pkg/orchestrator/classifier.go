// Package orchestrator routes natural-language instructions to the agent
// fleet: intent classification, compound-task planning, result
// aggregation, and the dispatch façade consumed by the queue and the API.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/overseer-ai/overseer/pkg/llm"
)

// UnknownAgent is returned when no agent matches the instruction.
const UnknownAgent = "UNKNOWN"

// intentMap maps each agent to its trigger keywords, matched as
// case-insensitive substrings.
var intentMap = map[string][]string{
	"KM_AGENT": {
		"萃取", "sop", "文件", "知識", "整理", "盤點",
		"extract", "knowledge", "document", "organize",
		"知識卡片", "隱性知識", "結構化",
	},
	"PROCESS_AGENT": {
		"流程", "優化", "效率", "瓶頸", "改善",
		"process", "optimize", "bottleneck", "efficiency",
		"自動化", "再造", "重組",
	},
	"TALENT_AGENT": {
		"人才", "培訓", "能力", "學習", "評估",
		"talent", "skill", "training", "learning", "competency",
		"職能", "圖譜", "發展", "接班",
	},
	"DECISION_AGENT": {
		"決策", "分析", "風險", "比較", "數據",
		"decision", "risk", "analyze", "compare", "data",
		"方案", "評估", "建議",
	},
}

// supportedAgents is the closed agent set the LLM paths are constrained to.
var supportedAgents = []string{"KM_AGENT", "PROCESS_AGENT", "TALENT_AGENT", "DECISION_AGENT"}

func isSupportedAgent(name string) bool {
	for _, agent := range supportedAgents {
		if agent == name {
			return true
		}
	}
	return false
}

// Classifier maps an instruction to the agent that should handle it.
// The keyword table is the safety net; the LLM path is preferred when a
// provider is reachable.
type Classifier struct {
	llmClient *llm.Client
	logger    *slog.Logger
}

// NewClassifier creates a Classifier. llmClient may be nil.
func NewClassifier(llmClient *llm.Client, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llmClient: llmClient, logger: logger.With("component", "intent-classifier")}
}

const classifyPromptTemplate = `你是意圖分類器。判斷以下指令應該由哪個數位員工處理，並以 JSON 回覆。

可選的數位員工：
- KM_AGENT：知識萃取、文件整理、SOP
- PROCESS_AGENT：流程優化、效率改善、瓶頸分析
- TALENT_AGENT：人才培訓、能力評估、職能發展
- DECISION_AGENT：決策分析、風險評估、方案比較

指令：%s

只回覆 JSON：{"agent": "KM_AGENT|PROCESS_AGENT|TALENT_AGENT|DECISION_AGENT|UNKNOWN", "confidence": 0.0}`

// Classify returns the best agent for the instruction with a confidence
// in [0,1]. No match → ("UNKNOWN", 0).
func (c *Classifier) Classify(ctx context.Context, prompt string) (string, float64) {
	if agent, confidence, ok := c.classifyByLLM(ctx, prompt); ok {
		return agent, confidence
	}
	return c.classifyByKeywords(prompt)
}

// classifyByLLM asks the provider for a closed-set verdict. ok=false on
// any failure so the keyword table carries the classification.
func (c *Classifier) classifyByLLM(ctx context.Context, prompt string) (string, float64, bool) {
	if c.llmClient == nil || !c.llmClient.Available() {
		return "", 0, false
	}
	answer, err := c.llmClient.Chat(ctx, fmt.Sprintf(classifyPromptTemplate, prompt),
		llm.WithMaxTokens(128))
	if err != nil || answer == "" {
		if err != nil {
			c.logger.Warn("LLM classification failed, using keyword table", "error", err)
		}
		return "", 0, false
	}

	var parsed struct {
		Agent      string  `json:"agent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(answer)), &parsed); err != nil {
		c.logger.Warn("LLM classification did not parse, using keyword table", "error", err)
		return "", 0, false
	}
	if parsed.Agent != UnknownAgent && !isSupportedAgent(parsed.Agent) {
		return "", 0, false
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return parsed.Agent, parsed.Confidence, true
}

// classifyByKeywords scores each agent by keyword hits and picks the
// argmax. Confidence scales the hit count against 30% of the agent's
// keyword list, capped at 1.
func (c *Classifier) classifyByKeywords(prompt string) (string, float64) {
	promptLower := strings.ToLower(prompt)

	bestAgent := UnknownAgent
	bestScore := 0
	// Deterministic tie-break: iterate agents in fixed order.
	for _, agent := range supportedAgents {
		score := 0
		for _, kw := range intentMap[agent] {
			if strings.Contains(promptLower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestAgent = agent
			bestScore = score
		}
	}
	if bestAgent == UnknownAgent {
		return UnknownAgent, 0.0
	}

	denominator := float64(len(intentMap[bestAgent])) * 0.3
	if denominator < 1 {
		denominator = 1
	}
	confidence := float64(bestScore) / denominator
	if confidence > 1 {
		confidence = 1
	}
	return bestAgent, confidence
}

// SuggestKeywords renders a per-agent keyword hint for unroutable input.
func (c *Classifier) SuggestKeywords() string {
	agents := make([]string, 0, len(intentMap))
	for agent := range intentMap {
		agents = append(agents, agent)
	}
	sort.Strings(agents)

	lines := make([]string, 0, len(agents))
	for _, agent := range agents {
		keywords := intentMap[agent]
		sample := keywords
		if len(sample) > 3 {
			sample = sample[:3]
		}
		lines = append(lines, fmt.Sprintf("  %s: %s", agent, strings.Join(sample, ", ")))
	}
	return strings.Join(lines, "\n")
}
