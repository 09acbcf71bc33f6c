package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ragchat/internal/model"
)

// localWeightsMu serializes all generation against the single set of local
// model weights. Concurrent invocation corrupts shared inference state, so
// every Complete call across the process takes this lock. Remote backends
// have no such restriction.
var localWeightsMu sync.Mutex

const (
	defaultLocalBaseURL = "http://127.0.0.1:8081"
	defaultLocalModel   = "mistralai/Mistral-7B-Instruct-v0.3"
)

type LocalConfig struct {
	BaseURL string
	Model   string
}

// LocalProvider calls a locally hosted instruct model over the inference
// server's completion endpoint, formatting the Mistral chat template itself.
type LocalProvider struct {
	cfg        LocalConfig
	httpClient *http.Client
	usage      UsageSink
}

func NewLocalProvider(cfg LocalConfig, usage UsageSink) *LocalProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultLocalBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultLocalModel
	}
	return &LocalProvider{
		cfg: cfg,
		// Local generation can legitimately run for minutes; the query
		// timeout arrives through ctx.
		httpClient: &http.Client{},
		usage:      usage,
	}
}

func (p *LocalProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	prompt := formatInstructPrompt(req)

	localWeightsMu.Lock()
	defer localWeightsMu.Unlock()

	answer, err := p.generate(ctx, prompt)
	p.record(prompt, answer, err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func (p *LocalProvider) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"prompt":      prompt,
		"n_predict":   512,
		"temperature": 0.2,
		"stream":      false,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal local completion request failed: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/completion"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build local completion request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("local completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read local completion response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("local completion status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse local completion json failed: %w", err)
	}
	return parsed.Content, nil
}

func (p *LocalProvider) record(prompt, answer string, callErr error) {
	if p.usage == nil {
		return
	}
	status := "ok"
	if callErr != nil {
		status = "error"
	}
	p.usage.Record(model.UsageRecord{
		Provider:    string(ProviderLocal),
		Model:       p.cfg.Model,
		Status:      status,
		PromptChars: len(prompt),
		AnswerChars: len(answer),
		CreatedAt:   time.Now(),
	})
}

// formatInstructPrompt renders the Mistral instruct template. History is
// folded into the instruction block as plain dialogue lines; the template has
// no native multi-turn form for a single completion call.
func formatInstructPrompt(req CompletionRequest) string {
	var b strings.Builder
	b.WriteString("<s>[INST] ")
	sys := req.SystemPrompt
	if sys == "" {
		sys = defaultSystemPrompt
	}
	b.WriteString(sys)
	b.WriteString("\n\n")
	for _, m := range req.History {
		switch m.Role {
		case model.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString(req.Prompt)
	b.WriteString(" [/INST]")
	return b.String()
}
