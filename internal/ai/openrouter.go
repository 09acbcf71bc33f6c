package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ragchat/internal/model"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "mistralai/mistral-nemo"
)

type OpenRouterConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	HTTPReferer string // optional attribution header
	XTitle      string // optional attribution header
}

// OpenRouterProvider calls the OpenRouter chat-completions API. It is safe
// for concurrent use; remote calls need no serialization.
type OpenRouterProvider struct {
	cfg        OpenRouterConfig
	httpClient *http.Client
	usage      UsageSink
}

// NewOpenRouterProvider fails with ErrMissingAPIKey when no credential is
// configured; the absence is a deployment mistake and is never downgraded.
func NewOpenRouterProvider(cfg OpenRouterConfig, usage UsageSink) (*OpenRouterProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenRouterModel
	}
	return &OpenRouterProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		usage:      usage,
	}, nil
}

func (p *OpenRouterProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	sys := req.SystemPrompt
	if sys == "" {
		sys = defaultSystemPrompt
	}
	messages := make([]ChatMessage, 0, len(req.History)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: sys})
	messages = append(messages, req.History...)
	messages = append(messages, ChatMessage{Role: "user", Content: req.Prompt})

	reqBody := map[string]interface{}{
		"model":       p.cfg.Model,
		"messages":    messages,
		"temperature": 0.2,
		"max_tokens":  512,
		"stream":      false,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		p.record(0, "", "error", "")
		return "", fmt.Errorf("marshal openrouter request failed: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		p.record(len(bodyBytes), "", "error", "")
		return "", fmt.Errorf("build openrouter request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	if p.cfg.HTTPReferer != "" {
		httpReq.Header.Set("HTTP-Referer", p.cfg.HTTPReferer)
	}
	if p.cfg.XTitle != "" {
		httpReq.Header.Set("X-Title", p.cfg.XTitle)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.record(len(bodyBytes), "", "error", "")
		return "", fmt.Errorf("openrouter request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		p.record(len(bodyBytes), "", "error", "")
		return "", fmt.Errorf("read openrouter response failed: %w", err)
	}

	// The raw payload is logged either way, mirroring the token ledger:
	// failed calls still consume quota worth recording.
	if resp.StatusCode != http.StatusOK {
		p.record(len(bodyBytes), "", fmt.Sprintf("http_%d", resp.StatusCode), string(raw))
		return "", fmt.Errorf("openrouter error (%d): %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		p.record(len(bodyBytes), "", "error", string(raw))
		return "", fmt.Errorf("parse openrouter json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		p.record(len(bodyBytes), "", "error", string(raw))
		return "", fmt.Errorf("unexpected openrouter response structure: %s", string(raw))
	}

	answer := strings.TrimSpace(parsed.Choices[0].Message.Content)
	p.record(len(bodyBytes), answer, "ok", string(raw))
	return answer, nil
}

func (p *OpenRouterProvider) record(promptChars int, answer, status, rawPayload string) {
	if p.usage == nil {
		return
	}
	p.usage.Record(model.UsageRecord{
		Provider:    string(ProviderOpenRouter),
		Model:       p.cfg.Model,
		Status:      status,
		PromptChars: promptChars,
		AnswerChars: len(answer),
		RawPayload:  rawPayload,
		CreatedAt:   time.Now(),
	})
}
