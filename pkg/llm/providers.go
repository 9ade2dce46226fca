package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Default models per provider.
const (
	anthropicModel = "claude-sonnet-4-20250514"
	openAIModel    = "gpt-4o"
	googleModel    = "gemini-2.0-flash"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	openAIBaseURL    = "https://api.openai.com"
	googleBaseURL    = "https://generativelanguage.googleapis.com"
)

// postJSON performs the request and decodes the response into out,
// classifying 429/5xx as retryable and other non-2xx as fatal.
func postJSON(ctx context.Context, httpClient *http.Client, req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return &retryableError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &retryableError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &retryableError{err: fmt.Errorf("upstream returned %d: %s", resp.StatusCode, truncate(string(body), 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// --- Anthropic ---

type anthropicProvider struct {
	apiKey  string
	baseURL string
}

func newAnthropicProvider(apiKey, baseURL string) *anthropicProvider {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &anthropicProvider{apiKey: apiKey, baseURL: baseURL}
}

func (p *anthropicProvider) name() string { return "anthropic" }

func (p *anthropicProvider) chat(ctx context.Context, httpClient *http.Client, prompt, systemPrompt string, maxTokens int) (string, error) {
	payload := map[string]any{
		"model":      anthropicModel,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if systemPrompt != "" {
		payload["system"] = systemPrompt
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := postJSON(ctx, httpClient, req, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("anthropic response contained no content")
	}
	return parsed.Content[0].Text, nil
}

// --- OpenAI ---

type openAIProvider struct {
	apiKey  string
	baseURL string
}

func newOpenAIProvider(apiKey, baseURL string) *openAIProvider {
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return &openAIProvider{apiKey: apiKey, baseURL: baseURL}
}

func (p *openAIProvider) name() string { return "openai" }

func (p *openAIProvider) chat(ctx context.Context, httpClient *http.Client, prompt, systemPrompt string, maxTokens int) (string, error) {
	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body, err := json.Marshal(map[string]any{
		"model":      openAIModel,
		"messages":   messages,
		"max_tokens": maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, httpClient, req, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// --- Google ---

type googleProvider struct {
	apiKey  string
	baseURL string
}

func newGoogleProvider(apiKey, baseURL string) *googleProvider {
	if baseURL == "" {
		baseURL = googleBaseURL
	}
	return &googleProvider{apiKey: apiKey, baseURL: baseURL}
}

func (p *googleProvider) name() string { return "google" }

func (p *googleProvider) chat(ctx context.Context, httpClient *http.Client, prompt, systemPrompt string, maxTokens int) (string, error) {
	full := prompt
	if systemPrompt != "" {
		full = systemPrompt + "\n\n" + prompt
	}
	body, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": full}}},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, googleModel, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := postJSON(ctx, httpClient, req, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("google response contained no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
