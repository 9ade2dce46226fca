package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/overseer-ai/overseer/pkg/llm"
)

// AgentResult is one agent's contribution to an aggregation.
type AgentResult struct {
	Agent  string `json:"agent"`
	Result string `json:"result"`
}

// Aggregator merges multiple agent outputs into one report.
type Aggregator struct {
	llmClient *llm.Client
	logger    *slog.Logger
}

// NewAggregator creates an Aggregator. llmClient may be nil.
func NewAggregator(llmClient *llm.Client, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{llmClient: llmClient, logger: logger.With("component", "result-aggregator")}
}

// Aggregate merges the results in input order. With a reachable provider
// AND a merge instruction, the LLM synthesizes the report; otherwise (or
// on an empty LLM answer) the outputs are concatenated under
// "=== <agent> ===" headers.
func (a *Aggregator) Aggregate(ctx context.Context, results []AgentResult, mergeInstruction string) string {
	if len(results) == 0 {
		return ""
	}
	if mergeInstruction != "" && a.llmClient != nil && a.llmClient.Available() {
		if merged := a.aggregateByLLM(ctx, results, mergeInstruction); merged != "" {
			return merged
		}
	}
	return aggregateSimple(results)
}

func (a *Aggregator) aggregateByLLM(ctx context.Context, results []AgentResult, mergeInstruction string) string {
	sections := make([]string, len(results))
	for i, r := range results {
		sections[i] = fmt.Sprintf("[%s]\n%s", r.Agent, r.Result)
	}
	prompt := fmt.Sprintf("%s\n\n以下是各 Agent 的輸出結果：\n\n%s",
		mergeInstruction, strings.Join(sections, "\n\n"))

	answer, err := a.llmClient.Chat(ctx, prompt)
	if err != nil {
		a.logger.Warn("LLM merge failed, concatenating outputs", "error", err)
		return ""
	}
	return answer
}

func aggregateSimple(results []AgentResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		agent := r.Agent
		if agent == "" {
			agent = "AGENT"
		}
		parts[i] = fmt.Sprintf("=== %s ===\n%s", agent, r.Result)
	}
	return strings.Join(parts, "\n\n")
}
