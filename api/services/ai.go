package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AIProvider is the interface for AI model providers
type AIProvider interface {
	GenerateText(ctx context.Context, prompt string, systemPrompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, systemPrompt string) (string, error)
	GetProviderName() string
}

const (
	anthropicURL = "https://api.anthropic.com/v1/messages"
	openAIURL    = "https://api.openai.com/v1/chat/completions"
	maxTokens    = 4096
)

var defaultHTTPClient = &http.Client{Timeout: 2 * time.Minute}

// AnthropicProvider implements Claude AI
type AnthropicProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

// OpenAIProvider implements OpenAI
type OpenAIProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

// OllamaProvider implements a local Ollama chat model
type OllamaProvider struct {
	Host   string
	Model  string
	Client *http.Client
}

func NewAIProvider(provider, apiKey, model, ollamaHost string) AIProvider {
	switch strings.ToLower(provider) {
	case "openai":
		return &OpenAIProvider{APIKey: apiKey, Model: model}
	case "ollama":
		return &OllamaProvider{Host: ollamaHost, Model: model}
	default:
		return &AnthropicProvider{APIKey: apiKey, Model: model}
	}
}

func (a *AnthropicProvider) GetProviderName() string {
	return "anthropic"
}

func (a *AnthropicProvider) GenerateText(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":      a.Model,
		"max_tokens": maxTokens,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         a.APIKey,
		"anthropic-version": "2023-06-01",
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := postJSON(ctx, a.Client, orDefault(a.BaseURL, anthropicURL), headers, reqBody, &result); err != nil {
		return "", err
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	return result.Content[0].Text, nil
}

// GenerateJSON is the same as GenerateText for Anthropic (no special JSON mode)
func (a *AnthropicProvider) GenerateJSON(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	return a.GenerateText(ctx, prompt, systemPrompt)
}

func (o *OpenAIProvider) GetProviderName() string {
	return "openai"
}

// GenerateText is for non-JSON responses (explanations, questions, answers)
func (o *OpenAIProvider) GenerateText(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	return o.chat(ctx, prompt, systemPrompt, false)
}

// GenerateJSON asks for a JSON object response (evaluations, syllabi)
func (o *OpenAIProvider) GenerateJSON(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	return o.chat(ctx, prompt, systemPrompt, true)
}

func (o *OpenAIProvider) chat(ctx context.Context, prompt, systemPrompt string, jsonMode bool) (string, error) {
	reqBody := map[string]interface{}{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"max_tokens": maxTokens,
	}
	if jsonMode {
		reqBody["response_format"] = map[string]string{"type": "json_object"}
	}
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", o.APIKey),
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, o.Client, orDefault(o.BaseURL, openAIURL), headers, reqBody, &result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}

func (ol *OllamaProvider) GetProviderName() string {
	return "ollama"
}

func (ol *OllamaProvider) GenerateText(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	return ol.chat(ctx, prompt, systemPrompt, false)
}

func (ol *OllamaProvider) GenerateJSON(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	return ol.chat(ctx, prompt, systemPrompt, true)
}

func (ol *OllamaProvider) chat(ctx context.Context, prompt, systemPrompt string, jsonMode bool) (string, error) {
	url := fmt.Sprintf("%s/api/chat", strings.TrimRight(ol.Host, "/"))

	reqBody := map[string]interface{}{
		"model": ol.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"stream": false,
	}
	if jsonMode {
		reqBody["format"] = "json"
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := postJSON(ctx, ol.Client, url, nil, reqBody, &result); err != nil {
		return "", err
	}

	return result.Message.Content, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, reqBody interface{}, out interface{}) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = defaultHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
