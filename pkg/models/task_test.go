package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TaskPriority
		wantErr bool
	}{
		{"critical", "CRITICAL", PriorityCritical, false},
		{"lowercase", "high", PriorityHigh, false},
		{"default empty", "", PriorityNormal, false},
		{"padded", " LOW ", PriorityLow, false},
		{"unknown", "URGENT", PriorityNormal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePriority(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaskPriorityJSON(t *testing.T) {
	data, err := json.Marshal(PriorityCritical)
	require.NoError(t, err)
	assert.Equal(t, `"CRITICAL"`, string(data))

	var p TaskPriority
	require.NoError(t, json.Unmarshal([]byte(`"low"`), &p))
	assert.Equal(t, PriorityLow, p)

	require.NoError(t, json.Unmarshal([]byte(`1`), &p))
	assert.Equal(t, PriorityHigh, p)

	assert.Error(t, json.Unmarshal([]byte(`9`), &p))
}

func TestCanonicalTimeOrdering(t *testing.T) {
	// Lexical order of formatted values must match chronological order,
	// including sub-second gaps.
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	earlier := FormatTime(base.Add(100 * time.Millisecond))
	later := FormatTime(base.Add(120 * time.Millisecond))
	assert.Less(t, earlier, later)

	parsed, err := ParseTime(earlier)
	require.NoError(t, err)
	assert.Equal(t, base.Add(100*time.Millisecond), parsed)
}

func TestParseTimeAcceptsRFC3339(t *testing.T) {
	parsed, err := ParseTime("2026-03-14T09:26:53Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, parsed.Year())

	_, err = ParseTime("not-a-time")
	assert.Error(t, err)
}

func TestTaskStatusTerminal(t *testing.T) {
	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
	assert.True(t, TaskStatusCancelled.Terminal())
	assert.False(t, TaskStatusPending.Terminal())
	assert.False(t, TaskStatusRunning.Terminal())
	assert.False(t, TaskStatusWaitingApproval.Terminal())
}

func TestMaxRiskLevel(t *testing.T) {
	assert.Equal(t, RiskHigh, MaxRiskLevel(RiskMedium, RiskHigh))
	assert.Equal(t, RiskHigh, MaxRiskLevel(RiskHigh, RiskLow))
	assert.Equal(t, RiskMedium, MaxRiskLevel(RiskLow, RiskMedium))
	assert.Equal(t, RiskLow, MaxRiskLevel(RiskLow, RiskLow))
	// Unknown levels never win.
	assert.Equal(t, RiskLow, MaxRiskLevel(RiskLow, RiskLevel("WILD")))
}

func TestSLATargetMet(t *testing.T) {
	assert.True(t, SLATarget{Unit: SLAUnitSeconds, TargetValue: 30, CurrentValue: 12}.Met())
	assert.False(t, SLATarget{Unit: SLAUnitSeconds, TargetValue: 30, CurrentValue: 0}.Met())
	assert.False(t, SLATarget{Unit: SLAUnitSeconds, TargetValue: 30, CurrentValue: 45}.Met())
	assert.True(t, SLATarget{Unit: SLAUnitScore, TargetValue: 0.75, CurrentValue: 0.8}.Met())
	assert.False(t, SLATarget{Unit: SLAUnitPercent, TargetValue: 0.9, CurrentValue: 0.85}.Met())
}
