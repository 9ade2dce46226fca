// Package config loads, merges, and validates platform configuration:
// compiled-in defaults, optional YAML registries (agents.yaml,
// workflows.yaml), and environment overrides.
package config

import (
	"github.com/overseer-ai/overseer/pkg/models"
)

// Config is the fully merged and validated runtime configuration.
type Config struct {
	Agents    map[string]*AgentConfig
	Workflows map[string]*models.WorkflowDefinition
	Queue     *QueueConfig
	Server    *ServerConfig
	Storage   *StorageConfig
	Retention *RetentionConfig
	Defaults  *DefaultsConfig
	HITL      *HITLConfig
}

// Stats summarizes the loaded registries for startup logging.
type Stats struct {
	Agents    int
	Workflows int
}

// Stats returns registry sizes.
func (c *Config) Stats() Stats {
	return Stats{
		Agents:    len(c.Agents),
		Workflows: len(c.Workflows),
	}
}

// GetAgent returns the named agent definition.
func (c *Config) GetAgent(name string) (*AgentConfig, error) {
	agent, ok := c.Agents[name]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

// GetWorkflow returns the named workflow definition.
func (c *Config) GetWorkflow(id string) (*models.WorkflowDefinition, error) {
	wf, ok := c.Workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return wf, nil
}

// AgentNames returns the registered agent names in no particular order.
func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	return names
}
