package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"winivox/internal/config"
	"winivox/internal/services"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": content,
					},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestCompleteJSONSendsChatRequest(t *testing.T) {
	var got chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"summary":"x"}`}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL + "/v1", Model: "gpt-5-mini"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != `{"summary":"x"}` {
		t.Fatalf("content = %q", content)
	}
	if got.Model != "gpt-5-mini" || len(got.Messages) != 2 || got.ResponseFormat["type"] != "json_object" {
		t.Fatalf("unexpected request %#v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[1].Content != "user" {
		t.Fatalf("unexpected messages %#v", got.Messages)
	}
}

type countingTransport struct {
	calls int
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	return http.DefaultTransport.RoundTrip(req)
}

func TestWithHTTPClientRoutesRequests(t *testing.T) {
	server := completionServer(t, `{"ok":true}`)
	defer server.Close()

	transport := &countingTransport{}
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithHTTPClient(&http.Client{Transport: transport}),
		WithHTTPClient(nil),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if transport.calls != 1 {
		t.Fatalf("custom transport saw %d calls, want 1", transport.calls)
	}
}

func TestCompleteJSONRequiresKey(t *testing.T) {
	client := NewClient(Config{Model: "m"})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if client.Configured() {
		t.Fatal("client without key reports configured")
	}
}

func TestCompleteJSONStripsCodeFence(t *testing.T) {
	server := completionServer(t, "```json\n{\"ok\":true}\n```")
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil || !parsed.OK {
		t.Fatalf("DecodeLLMJSON(%q) = %v, ok=%v", content, err, parsed.OK)
	}
}

func TestCompleteJSONReportsRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message":       map[string]any{"content": "", "refusal": "cannot help"},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryMaxAttempts(1),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil || !strings.Contains(err.Error(), `refusal="cannot help"`) {
		t.Fatalf("expected refusal in error, got %v", err)
	}
}

func TestCompleteJSONEmptyContentHasSnippet(t *testing.T) {
	server := completionServer(t, "")
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestPostRetriesServerErrorsAndStopsOnClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("body not replayed on retry: %q", body)
		}
		switch r.URL.Path {
		case "/flaky":
			if calls < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte("done"))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL},
		WithRetryBackoff(0, 0),
		WithRetryMaxAttempts(3),
	)
	body, err := client.Post(context.Background(), "test", "flaky", "text/plain", []byte("payload"))
	if err != nil {
		t.Fatalf("Post returned error: %v", err)
	}
	if string(body) != "done" || calls != 3 {
		t.Fatalf("Post = %q after %d calls", body, calls)
	}

	calls = 0
	if _, err := client.Post(context.Background(), "test", "bad", "text/plain", []byte("payload")); err == nil {
		t.Fatal("expected 400 to fail")
	}
	if calls != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", calls)
	}
}

func TestConfigFromOpenAI(t *testing.T) {
	cfg := ConfigFromOpenAI(config.OpenAI{APIKey: "k", BaseURL: "http://x", TimeoutSeconds: 9}, "model-a")
	if cfg.APIKey != "k" || cfg.BaseURL != "http://x" || cfg.Model != "model-a" || cfg.TimeoutSeconds != 9 {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if NewClient(Config{}).cfg.BaseURL != defaultBaseURL {
		t.Fatal("expected default base url")
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	var target struct {
		Summary string `json:"summary"`
	}
	cases := []string{
		`{"summary":"a"}`,
		"```json\n{\"summary\":\"a\"}\n```",
		"Here you go: {\"summary\":\"a\"} thanks",
	}
	for _, input := range cases {
		target.Summary = ""
		if err := DecodeLLMJSON(input, &target); err != nil {
			t.Fatalf("DecodeLLMJSON(%q): %v", input, err)
		}
		if target.Summary != "a" {
			t.Fatalf("DecodeLLMJSON(%q) summary = %q", input, target.Summary)
		}
	}
	if err := DecodeLLMJSON("not json", &target); err == nil {
		t.Fatal("expected error for prose")
	}
	if err := DecodeLLMJSON("  ", &target); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
