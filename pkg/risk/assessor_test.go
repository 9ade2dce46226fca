package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/overseer-ai/overseer/pkg/models"
)

func TestAssess_RulePass(t *testing.T) {
	tests := []struct {
		name  string
		task  string
		level models.RiskLevel
	}{
		{"chinese high keyword", "請刪除舊的報表", models.RiskHigh},
		{"english high keyword", "overwrite the production config", models.RiskHigh},
		{"case-insensitive", "DELETE the staging rows", models.RiskHigh},
		{"sensitive data", "整理客戶資料清單", models.RiskHigh},
		{"chinese medium keyword", "修改出貨流程說明", models.RiskMedium},
		{"english medium keyword", "publish the new SOP", models.RiskMedium},
		{"clean task", "整理採購SOP重點", models.RiskLow},
		{"empty task", "", models.RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(nil, nil)
			result := a.Assess(context.Background(), tt.task, "KM_AGENT")
			assert.Equal(t, tt.level, result.Level)
			assert.Equal(t, "rule", result.Mode)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestAssess_HighBeatsMedium(t *testing.T) {
	a := New(nil, nil)
	// Contains both a medium keyword (修改) and a high keyword (全部).
	result := a.Assess(context.Background(), "修改全部設定", "PROCESS_AGENT")
	assert.Equal(t, models.RiskHigh, result.Level)
}

func TestAssess_AuditLog(t *testing.T) {
	a := New(nil, nil)
	longTask := ""
	for i := 0; i < 30; i++ {
		longTask += "刪除舊資料 "
	}
	a.Assess(context.Background(), longTask, "KM_AGENT")
	a.Assess(context.Background(), "整理文件", "KM_AGENT")

	log := a.Log()
	assert.Len(t, log, 2)
	assert.Equal(t, models.RiskHigh, log[0].Level)
	assert.Equal(t, "KM_AGENT", log[0].Agent)
	assert.LessOrEqual(t, len([]rune(log[0].Task)), 80)

	// The returned slice is a snapshot; mutating it must not leak back.
	log[0].Agent = "MUTATED"
	assert.Equal(t, "KM_AGENT", a.Log()[0].Agent)
}

func TestRequiresHumanApproval(t *testing.T) {
	assert.False(t, RequiresHumanApproval(models.RiskLow))
	assert.True(t, RequiresHumanApproval(models.RiskMedium))
	assert.True(t, RequiresHumanApproval(models.RiskHigh))
}

func TestReport(t *testing.T) {
	a := New(nil, nil)
	assert.Equal(t, "尚無風險評估記錄。", a.Report())

	a.Assess(context.Background(), "刪除報表", "KM_AGENT")
	report := a.Report()
	assert.Contains(t, report, "Risk Assessment Report")
	assert.Contains(t, report, "HIGH")
}
