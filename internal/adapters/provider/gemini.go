package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/libtrack/core/internal/domain/entities"
)

// GeminiClient calls the Gemini generateContent endpoint. It is the fallback
// provider: it walks an ordered model list until one yields non-empty text,
// and tags the reply with the model that answered.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	models     []string
	httpClient *http.Client
}

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Models  []string
	Timeout time.Duration
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{"gemini-1.5-flash", "gemini-1.5-flash-8b", "gemini-1.5-pro"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		models:  cfg.Models,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name identifies the provider in responses and logs.
func (c *GeminiClient) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete tries each configured model in order and returns the first
// non-empty reply. The tag names the model that answered.
func (c *GeminiClient) Complete(ctx context.Context, system string, history []entities.ChatTurn, message string) (string, string, error) {
	if c.apiKey == "" {
		return "", "", fmt.Errorf("gemini: %w", entities.ErrNoProvider)
	}

	contents := make([]geminiContent, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Role == entities.ChatRoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Text}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: message}}})

	reqBody := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          contents,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	var lastErr error
	for _, model := range c.models {
		text, err := c.generate(ctx, model, jsonData)
		if err != nil {
			lastErr = err
			continue
		}
		return text, model, nil
	}
	return "", "", fmt.Errorf("gemini: all models failed: %w", lastErr)
}

func (c *GeminiClient) generate(ctx context.Context, model string, jsonData []byte) (string, error) {
	callCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("gemini %s: create request: %w", model, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini %s: request failed: %w", model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini %s: read response: %w", model, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini %s: status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("gemini %s: parse response: %w", model, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("gemini %s: api error: %s", model, parsed.Error.Message)
	}

	for _, cand := range parsed.Candidates {
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("gemini %s: %w", model, entities.ErrEmptyCompletion)
}
