package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenRouterProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "https://example.test" {
			t.Errorf("unexpected referer %q", got)
		}

		var body struct {
			Model       string        `json:"model"`
			Messages    []ChatMessage `json:"messages"`
			Temperature float64       `json:"temperature"`
			MaxTokens   int           `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "mistralai/mistral-nemo" {
			t.Errorf("unexpected model %q", body.Model)
		}
		if body.Temperature != 0.2 || body.MaxTokens != 512 {
			t.Errorf("unexpected sampling params: %v / %d", body.Temperature, body.MaxTokens)
		}
		if len(body.Messages) != 4 {
			t.Errorf("expected system+history+user = 4 messages, got %d", len(body.Messages))
		} else {
			if body.Messages[0].Role != "system" {
				t.Errorf("first message should be system, got %q", body.Messages[0].Role)
			}
			last := body.Messages[len(body.Messages)-1]
			if last.Role != "user" || last.Content != "the question" {
				t.Errorf("unexpected final message: %+v", last)
			}
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": " the answer "}},
			},
		})
	}))
	defer srv.Close()

	sink := &memorySink{}
	p, err := NewOpenRouterProvider(OpenRouterConfig{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		HTTPReferer: "https://example.test",
	}, sink)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	answer, err := p.Complete(context.Background(), CompletionRequest{
		Prompt: "the question",
		History: []ChatMessage{
			{Role: "user", Content: "earlier"},
			{Role: "assistant", Content: "reply"},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if answer != "the answer" {
		t.Fatalf("expected trimmed answer, got %q", answer)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 usage record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Status != "ok" || rec.RawPayload == "" {
		t.Fatalf("unexpected usage record: %+v", rec)
	}
}

func TestOpenRouterProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"quota exhausted"}`))
	}))
	defer srv.Close()

	sink := &memorySink{}
	p, err := NewOpenRouterProvider(OpenRouterConfig{BaseURL: srv.URL, APIKey: "k"}, sink)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = p.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	if err == nil {
		t.Fatal("expected error from 402 response")
	}
	if !strings.Contains(err.Error(), "openrouter error (402)") {
		t.Fatalf("unexpected error text: %v", err)
	}

	// failures still land in the ledger with the status code
	if len(sink.records) != 1 || sink.records[0].Status != "http_402" {
		t.Fatalf("expected http_402 usage record, got %+v", sink.records)
	}
}

func TestOpenRouterProvider_BadBaseURLRecorded(t *testing.T) {
	sink := &memorySink{}
	// the named port makes request construction itself fail, before any
	// network I/O
	p, err := NewOpenRouterProvider(OpenRouterConfig{BaseURL: "http://[::1]:namedport", APIKey: "k"}, sink)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = p.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	if err == nil {
		t.Fatal("expected error from unusable base URL")
	}

	// even calls that never leave the process get a ledger entry
	if len(sink.records) != 1 || sink.records[0].Status != "error" {
		t.Fatalf("expected error usage record, got %+v", sink.records)
	}
}
