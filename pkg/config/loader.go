package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/overseer-ai/overseer/pkg/models"
)

// agentsYAMLConfig is the agents.yaml file structure. System sections are
// optional overrides of the compiled-in defaults.
type agentsYAMLConfig struct {
	Agents    map[string]*AgentConfig `yaml:"agents"`
	Queue     *QueueConfig            `yaml:"queue"`
	Server    *ServerConfig           `yaml:"server"`
	Storage   *StorageConfig          `yaml:"storage"`
	Retention *RetentionConfig        `yaml:"retention"`
	Defaults  *DefaultsConfig         `yaml:"defaults"`
	HITL      *HITLConfig             `yaml:"hitl"`
}

// workflowsYAMLConfig is the workflows.yaml file structure.
type workflowsYAMLConfig struct {
	Workflows []*models.WorkflowDefinition `yaml:"workflows"`
}

// Initialize loads, merges, validates, and returns ready-to-use
// configuration. Both YAML registries are optional; an empty or missing
// config directory yields the compiled-in defaults.
//
// Steps performed:
//  1. Load agents.yaml and workflows.yaml from configDir (if present)
//  2. Expand environment variables in the raw text
//  3. Merge user definitions over compiled-in defaults
//  4. Validate all configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"agents", stats.Agents,
		"workflows", stats.Workflows)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	cfg := &Config{
		Agents:    BuiltinAgents(),
		Workflows: make(map[string]*models.WorkflowDefinition),
		Queue:     DefaultQueueConfig(),
		Server:    DefaultServerConfig(),
		Storage:   DefaultStorageConfig(),
		Retention: DefaultRetentionConfig(),
		Defaults:  DefaultDefaultsConfig(),
		HITL:      DefaultHITLConfig(),
	}

	if configDir == "" {
		return cfg, nil
	}

	agentsFile, err := loadAgentsYAML(filepath.Join(configDir, "agents.yaml"))
	if err != nil {
		return nil, err
	}
	if agentsFile != nil {
		if err := mergeSystemSections(cfg, agentsFile); err != nil {
			return nil, err
		}
		if err := mergeAgents(cfg.Agents, agentsFile.Agents); err != nil {
			return nil, err
		}
	}

	workflows, err := loadWorkflowsYAML(filepath.Join(configDir, "workflows.yaml"))
	if err != nil {
		return nil, err
	}
	for _, wf := range workflows {
		cfg.Workflows[wf.WorkflowID] = wf
	}

	return cfg, nil
}

func loadAgentsYAML(path string) (*agentsYAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("agents.yaml not found, using built-in defaults", "path", path)
			return nil, nil
		}
		return nil, &LoadError{File: "agents.yaml", Err: err}
	}

	var parsed agentsYAMLConfig
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &parsed); err != nil {
		return nil, &LoadError{File: "agents.yaml", Err: fmt.Errorf("%w: %w", ErrInvalidYAML, err)}
	}
	return &parsed, nil
}

func loadWorkflowsYAML(path string) ([]*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &LoadError{File: "workflows.yaml", Err: err}
	}

	var parsed workflowsYAMLConfig
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &parsed); err != nil {
		return nil, &LoadError{File: "workflows.yaml", Err: fmt.Errorf("%w: %w", ErrInvalidYAML, err)}
	}
	return parsed.Workflows, nil
}

// mergeSystemSections overrides the default system sections with any
// non-zero fields the user supplied.
func mergeSystemSections(cfg *Config, file *agentsYAMLConfig) error {
	sections := []struct {
		name string
		dst  any
		src  any
	}{
		{"queue", cfg.Queue, file.Queue},
		{"server", cfg.Server, file.Server},
		{"storage", cfg.Storage, file.Storage},
		{"retention", cfg.Retention, file.Retention},
		{"defaults", cfg.Defaults, file.Defaults},
		{"hitl", cfg.HITL, file.HITL},
	}
	for _, s := range sections {
		if s.src == nil || isNilPointer(s.src) {
			continue
		}
		if err := mergo.Merge(s.dst, s.src, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge %s config: %w", s.name, err)
		}
	}
	return nil
}

func isNilPointer(v any) bool {
	switch p := v.(type) {
	case *QueueConfig:
		return p == nil
	case *ServerConfig:
		return p == nil
	case *StorageConfig:
		return p == nil
	case *RetentionConfig:
		return p == nil
	case *DefaultsConfig:
		return p == nil
	case *HITLConfig:
		return p == nil
	}
	return v == nil
}

// mergeAgents overlays user agent definitions onto the built-in registry.
// User fields override built-in fields; agents unknown to the registry are
// added as-is.
func mergeAgents(builtin map[string]*AgentConfig, user map[string]*AgentConfig) error {
	for name, userAgent := range user {
		if userAgent == nil {
			continue
		}
		if userAgent.Name == "" {
			userAgent.Name = name
		}
		base, ok := builtin[name]
		if !ok {
			if userAgent.Status == "" {
				userAgent.Status = "ACTIVE"
			}
			builtin[name] = userAgent
			continue
		}
		if err := mergo.Merge(base, userAgent, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge agent %s: %w", name, err)
		}
	}
	return nil
}
