package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overseer-ai/overseer/pkg/agent"
	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/database"
	"github.com/overseer-ai/overseer/pkg/eval"
	"github.com/overseer-ai/overseer/pkg/harness"
	"github.com/overseer-ai/overseer/pkg/hitl"
	"github.com/overseer-ai/overseer/pkg/models"
	"github.com/overseer-ai/overseer/pkg/orchestrator"
	"github.com/overseer-ai/overseer/pkg/queue"
	"github.com/overseer-ai/overseer/pkg/risk"
	"github.com/overseer-ai/overseer/pkg/services"
	"github.com/overseer-ai/overseer/pkg/workflow"
)

type serverFixture struct {
	server *Server
	router http.Handler
	gate   *hitl.Gate
	queue  *queue.Queue
}

// newTestServer wires a full API server over an in-memory database with
// the offline (no LLM) component stack. Queue workers are not started;
// submitted tasks stay pending, which the cancel tests rely on.
func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	ctx := context.Background()

	client, err := database.NewClient(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		Agents:    config.BuiltinAgents(),
		Queue:     config.DefaultQueueConfig(),
		Server:    &config.ServerConfig{Host: "127.0.0.1", Port: "0", JWTSecret: "test-secret", TokenTTL: time.Hour},
		Storage:   config.DefaultStorageConfig(),
		Retention: config.DefaultRetentionConfig(),
		Defaults:  config.DefaultDefaultsConfig(),
		HITL:      &config.HITLConfig{TimeoutHours: 24},
	}

	sessions := services.NewSessionService(client)
	profiles := services.NewProfileService(client)
	require.NoError(t, profiles.EnsureDefaults(ctx, cfg.Agents))

	gate := hitl.NewGate(client, cfg.HITL, nil, nil)
	pipeline := harness.New(sessions, profiles, risk.New(nil, nil), gate, eval.New(0.7, nil, nil), nil, nil)
	registry := agent.NewRegistry(cfg.Agents, nil, nil)

	var dispatcher *orchestrator.Dispatcher
	taskQueue := queue.New(client, cfg.Queue, func(ctx context.Context, agentName, instruction string) (string, error) {
		return dispatcher.ExecuteForQueue(ctx, agentName, instruction)
	}, nil)
	dispatcher = orchestrator.NewDispatcher(nil, pipeline, registry, taskQueue, nil)

	engine := workflow.NewEngine(func(ctx context.Context, agentName, instruction string) (string, error) {
		return dispatcher.ExecuteForQueue(ctx, agentName, instruction)
	}, nil)

	server := NewServer(cfg, client, registry, dispatcher, taskQueue, gate, engine, sessions, profiles, nil, nil)
	return &serverFixture{
		server: server,
		router: server.Router(),
		gate:   gate,
		queue:  taskQueue,
	}
}

func (f *serverFixture) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadyUnauthenticated(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = f.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequiredOnAPIRoutes(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/status", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestViewerCannotDispatch(t *testing.T) {
	f := newTestServer(t)
	token := f.login(t, "viewer", "viewer123")

	rec := f.do(t, http.MethodPost, "/api/dispatch", token, map[string]string{"prompt": "整理文件"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Read-only surfaces stay open to viewers.
	rec = f.do(t, http.MethodGet, "/api/agents", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDispatchRoundTrip(t *testing.T) {
	f := newTestServer(t)
	token := f.login(t, "admin", "admin123")

	rec := f.do(t, http.MethodPost, "/api/dispatch", token, map[string]string{
		"prompt": "請幫我萃取報關作業知識",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Result struct {
			Agent   string `json:"agent"`
			Success bool   `json:"success"`
			Output  string `json:"output"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "KM_AGENT", resp.Result.Agent)
	assert.True(t, resp.Result.Success)
	assert.NotEmpty(t, resp.Result.Output)

	rec = f.do(t, http.MethodGet, "/api/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "萃取")
}

func TestQueueSubmitStatusCancel(t *testing.T) {
	f := newTestServer(t)
	token := f.login(t, "admin", "admin123")

	rec := f.do(t, http.MethodPost, "/api/queue/submit", token, map[string]any{
		"agent_name":  "KM_AGENT",
		"instruction": "extract SOP",
		"priority":    "HIGH",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var submit struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submit))
	assert.Equal(t, "pending", submit.Status)

	rec = f.do(t, http.MethodGet, "/api/queue/tasks/"+submit.TaskID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var task models.QueuedTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, models.TaskStatusPending, task.Status)

	rec = f.do(t, http.MethodGet, "/api/queue/pending?agent_name=KM_AGENT", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), submit.TaskID)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/queue/tasks/%s/cancel", submit.TaskID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Cancelling again conflicts: the task is no longer pending.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/queue/tasks/%s/cancel", submit.TaskID), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueueSubmitValidation(t *testing.T) {
	f := newTestServer(t)
	token := f.login(t, "admin", "admin123")

	rec := f.do(t, http.MethodPost, "/api/queue/submit", token, map[string]any{
		"agent_name": "KM_AGENT", "instruction": "x", "priority": "URGENT",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/queue/submit", token, map[string]any{
		"agent_name": "GHOST_AGENT", "instruction": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/queue/tasks/no-such-task", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprovalRoundTrip(t *testing.T) {
	f := newTestServer(t)
	token := f.login(t, "admin", "admin123")
	ctx := context.Background()

	req, err := f.gate.CheckAndGate(ctx, "delete all customer data", "KM_AGENT", models.RiskHigh, "high risk keywords")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalPending, req.Status)

	rec := f.do(t, http.MethodGet, "/api/approvals/pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), req.RequestID)

	rec = f.do(t, http.MethodPost, "/api/approvals/"+req.RequestID+"/approve", token, map[string]string{
		"resolved_by": "admin", "note": "ok",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resolved models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, models.ApprovalApproved, resolved.Status)
	assert.True(t, f.gate.IsApproved(ctx, req.RequestID))

	// Terminal states are monotone: re-resolving conflicts.
	rec = f.do(t, http.MethodPost, "/api/approvals/"+req.RequestID+"/reject", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/approvals/no-such-id", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExpireApprovalsEndpoint(t *testing.T) {
	f := newTestServer(t)
	token := f.login(t, "monitor", "monitor123")

	rec := f.do(t, http.MethodPost, "/api/approvals/expire", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ExpiredCount int      `json:"expired_count"`
		ExpiredIDs   []string `json:"expired_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.ExpiredCount)
	assert.NotNil(t, resp.ExpiredIDs)
}

func TestWorkflowRoutes(t *testing.T) {
	f := newTestServer(t)
	token := f.login(t, "admin", "admin123")

	rec := f.do(t, http.MethodGet, "/api/workflows", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quality_retry")

	rec = f.do(t, http.MethodPost, "/api/workflows/no-such-workflow/execute", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/workflows/quality_retry/execute", token, map[string]any{
		"params": map[string]any{"topic": "整理報關文件知識"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result models.WorkflowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "quality_retry", result.WorkflowID)
	assert.NotEmpty(t, result.Results)
}

func TestStatusAndProfilesEndpoints(t *testing.T) {
	f := newTestServer(t)
	token := f.login(t, "viewer", "viewer123")

	rec := f.do(t, http.MethodGet, "/api/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "KM_AGENT")
	assert.Contains(t, rec.Body.String(), "intent_mode")

	rec = f.do(t, http.MethodGet, "/api/profiles", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "DECISION_AGENT")

	rec = f.do(t, http.MethodGet, "/api/profiles/fleet", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "total_agents")
}
