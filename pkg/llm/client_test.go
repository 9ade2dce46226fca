package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestChat_OfflineMode(t *testing.T) {
	client := newClient(nil)

	answer, err := client.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Empty(t, answer)

	assert.False(t, client.Available())
	status := client.Status()
	assert.Equal(t, "offline", status.Active)
	assert.True(t, status.OfflineMode)
	assert.False(t, status.IsLLM)
	assert.Empty(t, status.Available)
}

func TestChat_AnthropicRequestShape(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"text": "答覆內容"}},
		})
	}))
	defer srv.Close()

	client := newClient([]provider{newAnthropicProvider("test-key", srv.URL)},
		WithRetryConfig(fastRetry()))

	answer, err := client.Chat(context.Background(), "請分析",
		WithSystemPrompt("你是分析師"), WithMaxTokens(512))
	require.NoError(t, err)
	assert.Equal(t, "答覆內容", answer)

	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, anthropicModel, gotBody["model"])
	assert.Equal(t, "你是分析師", gotBody["system"])
	assert.EqualValues(t, 512, gotBody["max_tokens"])

	assert.Equal(t, "anthropic", client.ActiveProvider())
	assert.True(t, client.Status().IsLLM)
}

func TestChat_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	client := newClient([]provider{newOpenAIProvider("k", srv.URL)},
		WithRetryConfig(fastRetry()))

	answer, err := client.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.EqualValues(t, 2, calls.Load())
}

func TestChat_AuthErrorIsFatal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newClient([]provider{newOpenAIProvider("bad", srv.URL)},
		WithRetryConfig(fastRetry()))

	_, err := client.Chat(context.Background(), "hi")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "4xx must not be retried")
}

func TestChat_FallsBackToNextProvider(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "from gemini"}}}},
			},
		})
	}))
	defer up.Close()

	client := newClient([]provider{
		newAnthropicProvider("k", down.URL),
		newGoogleProvider("k", up.URL),
	}, WithRetryConfig(RetryConfig{MaxRetries: 0, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))

	answer, err := client.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "from gemini", answer)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "fenced block",
			content: "Here you go:\n```json\n{\"level\": \"HIGH\"}\n```",
			want:    `{"level": "HIGH"}`,
		},
		{
			name:    "bare object",
			content: `prefix {"agent": "KM_AGENT", "confidence": 0.9} suffix`,
			want:    `{"agent": "KM_AGENT", "confidence": 0.9}`,
		},
		{
			name:    "trailing comma removed",
			content: `{"a": 1, "b": 2,}`,
			want:    `{"a": 1, "b": 2}`,
		},
		{
			name:    "line comment stripped, urls survive",
			content: "{\n\"url\": \"http://example.com\", // note\n\"a\": 1\n}",
			want:    "{\n\"url\": \"http://example.com\",\n\"a\": 1\n}",
		},
		{
			name:    "no json",
			content: "sorry, cannot help",
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.content)
			assert.Equal(t, tt.want, got)
			if tt.want != "" {
				var decoded map[string]any
				assert.NoError(t, json.Unmarshal([]byte(got), &decoded))
			}
		})
	}
}
