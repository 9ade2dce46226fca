package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overseer-ai/overseer/pkg/models"
)

func validConfig() *Config {
	return &Config{
		Agents:    BuiltinAgents(),
		Workflows: map[string]*models.WorkflowDefinition{},
		Queue:     DefaultQueueConfig(),
		Server:    DefaultServerConfig(),
		Storage:   DefaultStorageConfig(),
		Retention: DefaultRetentionConfig(),
		Defaults:  DefaultDefaultsConfig(),
		HITL:      DefaultHITLConfig(),
	}
}

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, validate(validConfig()))
}

func TestValidate_AgentErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Agents["X"] = &AgentConfig{Name: "X"}
	err := validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)

	cfg = validConfig()
	cfg.Agents["KM_AGENT"].Skills["文件解析"] = 9
	err = validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "agent", verr.Component)
	assert.Equal(t, "KM_AGENT", verr.ID)
}

func TestValidate_QueueErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.WorkerCount = 0
	assert.ErrorIs(t, validate(cfg), ErrInvalidValue)

	cfg = validConfig()
	cfg.Queue.MaxRetries = -1
	assert.ErrorIs(t, validate(cfg), ErrInvalidValue)
}

func TestValidate_HITLErrors(t *testing.T) {
	cfg := validConfig()
	cfg.HITL.TimeoutHours = 0
	assert.ErrorIs(t, validate(cfg), ErrInvalidValue)
}

func TestValidateWorkflow(t *testing.T) {
	tests := []struct {
		name    string
		wf      *models.WorkflowDefinition
		wantErr bool
	}{
		{
			name: "valid chain with branch",
			wf: &models.WorkflowDefinition{
				WorkflowID: "wf",
				Steps: []models.WorkflowStep{
					{StepID: "a", Type: models.StepAgent, AgentName: "KM_AGENT", OnFailure: "b"},
					{StepID: "b", Type: models.StepMerge},
				},
			},
		},
		{
			name:    "missing id",
			wf:      &models.WorkflowDefinition{Steps: []models.WorkflowStep{{StepID: "a", Type: models.StepMerge}}},
			wantErr: true,
		},
		{
			name:    "no steps",
			wf:      &models.WorkflowDefinition{WorkflowID: "wf"},
			wantErr: true,
		},
		{
			name: "duplicate step ids",
			wf: &models.WorkflowDefinition{
				WorkflowID: "wf",
				Steps: []models.WorkflowStep{
					{StepID: "a", Type: models.StepMerge},
					{StepID: "a", Type: models.StepMerge},
				},
			},
			wantErr: true,
		},
		{
			name: "agent step without agent",
			wf: &models.WorkflowDefinition{
				WorkflowID: "wf",
				Steps:      []models.WorkflowStep{{StepID: "a", Type: models.StepAgent}},
			},
			wantErr: true,
		},
		{
			name: "condition step without expression",
			wf: &models.WorkflowDefinition{
				WorkflowID: "wf",
				Steps:      []models.WorkflowStep{{StepID: "a", Type: models.StepCondition}},
			},
			wantErr: true,
		},
		{
			name: "parallel step without branches",
			wf: &models.WorkflowDefinition{
				WorkflowID: "wf",
				Steps:      []models.WorkflowStep{{StepID: "a", Type: models.StepParallel}},
			},
			wantErr: true,
		},
		{
			name: "branch to unknown step",
			wf: &models.WorkflowDefinition{
				WorkflowID: "wf",
				Steps: []models.WorkflowStep{
					{StepID: "a", Type: models.StepAgent, AgentName: "KM_AGENT", OnSuccess: "ghost"},
				},
			},
			wantErr: true,
		},
		{
			name: "unknown step type",
			wf: &models.WorkflowDefinition{
				WorkflowID: "wf",
				Steps:      []models.WorkflowStep{{StepID: "a", Type: "TELEPORT"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorkflow(tt.wf)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
