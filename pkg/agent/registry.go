// Package agent holds the registered agent fleet and the default
// LLM-backed executor behind each agent name. The platform treats an
// agent as an opaque function from instruction to textual output; this
// package supplies that function for every configured agent.
package agent

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/harness"
	"github.com/overseer-ai/overseer/pkg/llm"
	"github.com/overseer-ai/overseer/pkg/services"
)

// Status is one agent's runtime snapshot for the status API.
type Status struct {
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Department      string   `json:"department"`
	Description     string   `json:"description"`
	Status          string   `json:"status"`
	TasksCompleted  int64    `json:"tasks_completed"`
	TriggerKeywords []string `json:"trigger_keywords,omitempty"`
}

// Agent pairs a configured definition with its executor and run counters.
type Agent struct {
	cfg      *config.AgentConfig
	executor harness.Executor

	mu        sync.Mutex
	running   int
	taskCount int64
}

// Name returns the agent's registered name.
func (a *Agent) Name() string { return a.cfg.Name }

// Config returns the agent's definition.
func (a *Agent) Config() *config.AgentConfig { return a.cfg }

// Status reports the agent's identity and run counters. Keyword heads are
// capped at five, matching the dashboard contract.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := "IDLE"
	if a.cfg.Status != "" && a.cfg.Status != "ACTIVE" {
		state = a.cfg.Status
	} else if a.running > 0 {
		state = "WORKING"
	}
	keywords := a.cfg.TriggerKeywords
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	return Status{
		Name:            a.cfg.Name,
		Role:            a.cfg.Role,
		Department:      a.cfg.Department,
		Description:     a.cfg.Description,
		Status:          state,
		TasksCompleted:  a.taskCount,
		TriggerKeywords: append([]string(nil), keywords...),
	}
}

func (a *Agent) begin() {
	a.mu.Lock()
	a.running++
	a.mu.Unlock()
}

func (a *Agent) finish() {
	a.mu.Lock()
	a.running--
	a.taskCount++
	a.mu.Unlock()
}

// Registry resolves agent names to executors. It satisfies the
// orchestrator's ExecutorRegistry contract.
type Registry struct {
	agents map[string]*Agent
	logger *slog.Logger
}

// NewRegistry builds the fleet from configured definitions. Every agent
// gets the default executor: LLM-backed when a provider is reachable,
// structured offline report otherwise.
func NewRegistry(agents map[string]*config.AgentConfig, llmClient *llm.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		agents: make(map[string]*Agent, len(agents)),
		logger: logger.With("component", "agent_registry"),
	}
	for name, cfg := range agents {
		a := &Agent{cfg: cfg}
		a.executor = newDefaultExecutor(a, llmClient, r.logger)
		r.agents[name] = a
	}
	return r
}

// Executor returns the named agent's session executor.
func (r *Registry) Executor(agentName string) (harness.Executor, bool) {
	a, ok := r.agents[agentName]
	if !ok {
		return nil, false
	}
	return a.executor, true
}

// Get returns the named agent.
func (r *Registry) Get(agentName string) (*Agent, error) {
	a, ok := r.agents[agentName]
	if !ok {
		return nil, services.NewValidationError("agent_name", fmt.Sprintf("unknown agent %q", agentName))
	}
	return a, nil
}

// List returns all agents ordered by name.
func (r *Registry) List() []*Agent {
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].cfg.Name < out[j].cfg.Name })
	return out
}

// Statuses returns the fleet snapshot keyed by agent name.
func (r *Registry) Statuses() map[string]Status {
	out := make(map[string]Status, len(r.agents))
	for name, a := range r.agents {
		out[name] = a.Status()
	}
	return out
}
