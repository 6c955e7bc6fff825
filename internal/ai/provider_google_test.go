package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const geminiOK = `{
  "candidates": [{"content": {"parts": [{"text": "Gemini "}, {"text": "response"}]}}],
  "usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 12}
}`

func TestGoogleProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify Gemini-specific URL pattern.
		if !strings.Contains(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing or wrong API key header")
		}

		var req geminiRequest
		json.NewDecoder(r.Body).Decode(&req)

		if len(req.Contents) == 0 {
			t.Error("no contents in request")
		}

		w.Write([]byte(geminiOK))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Gemini response" {
		t.Errorf("content = %q, want %q", resp.Content, "Gemini response")
	}
	if resp.InputTokens != 8 {
		t.Errorf("input_tokens = %d, want 8", resp.InputTokens)
	}
}

func TestGoogleProvider_Complete_RoleMappings(t *testing.T) {
	var received geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(geminiOK))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))

	_, err := provider.Complete(context.Background(), CompletionRequest{
		System: "Tu es un professeur.",
		Messages: []Message{
			{Role: RoleSystem, Content: "Sois bref."},
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "hi"},
			{Role: RoleUser, Content: "explique Andromaque"},
		},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// System messages go to systemInstruction, assistant maps to "model".
	if len(received.Contents) != 3 {
		t.Fatalf("got %d contents, want 3 (system should be lifted out)", len(received.Contents))
	}
	if received.Contents[1].Role != "model" {
		t.Errorf("assistant role mapped to %q, want %q", received.Contents[1].Role, "model")
	}
	if received.SystemInstruction == nil {
		t.Fatal("systemInstruction missing")
	}
	if got := received.SystemInstruction.Parts[0].Text; got != "Tu es un professeur.\n\nSois bref." {
		t.Errorf("systemInstruction = %q", got)
	}
}

func TestGoogleProvider_Complete_StructuredOutput(t *testing.T) {
	var received geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(geminiOK))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Messages:         []Message{{Role: RoleUser, Content: "quiz"}},
		Temperature:      0.5,
		ResponseMIMEType: "application/json",
		ResponseSchema:   map[string]any{"type": "OBJECT"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	cfg := received.GenerationConfig
	if cfg == nil {
		t.Fatal("generationConfig missing")
	}
	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("responseMimeType = %q", cfg.ResponseMIMEType)
	}
	if cfg.ResponseSchema["type"] != "OBJECT" {
		t.Errorf("responseSchema = %v", cfg.ResponseSchema)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.5 {
		t.Errorf("temperature = %v, want 0.5", cfg.Temperature)
	}
}

func TestGoogleProvider_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "forbidden"}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))

	_, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})

	if err == nil {
		t.Fatal("Complete() should return error on API error")
	}
}

func TestGoogleProvider_Complete_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestGoogleProvider_MissingKey(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	provider := NewGoogleProvider("", WithGoogleBaseURL(server.URL))

	_, err := provider.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Complete() error = %v, want ErrConfiguration", err)
	}
	_, err = provider.StreamComplete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("StreamComplete() error = %v, want ErrConfiguration", err)
	}
	if err := provider.HealthCheck(context.Background()); !errors.Is(err, ErrConfiguration) {
		t.Errorf("HealthCheck() error = %v, want ErrConfiguration", err)
	}
	if called {
		t.Error("no request should reach the provider without a key")
	}
}

func TestGoogleProvider_StreamComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q, want sse", r.URL.Query().Get("alt"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"Pyrrhus ", "est le ", "fils d'Achille."} {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\r\n\r\n", text)
		}
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"promptTokenCount\":20,\"candidatesTokenCount\":9}}\r\n\r\n")
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	ch, err := provider.StreamComplete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "Qui est Pyrrhus ?"}},
	})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}

	var fragments []string
	var last StreamChunk
	for c := range ch {
		if c.Error != nil {
			t.Fatalf("stream error = %v", c.Error)
		}
		if c.Content != "" {
			fragments = append(fragments, c.Content)
		}
		last = c
	}

	if got := strings.Join(fragments, ""); got != "Pyrrhus est le fils d'Achille." {
		t.Errorf("joined = %q", got)
	}
	if len(fragments) != 3 {
		t.Errorf("got %d fragments, want 3", len(fragments))
	}
	if !last.Done {
		t.Error("last chunk should be Done")
	}
	if last.InputTokens != 20 || last.OutputTokens != 9 {
		t.Errorf("usage = (%d, %d), want (20, 9)", last.InputTokens, last.OutputTokens)
	}
}

func TestGoogleProvider_StreamComplete_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "bad key"}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	if _, err := provider.StreamComplete(context.Background(), CompletionRequest{}); err == nil {
		t.Fatal("StreamComplete() should fail before streaming on non-200 status")
	}
}

func TestGoogleProvider_StreamComplete_BadEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	ch, err := provider.StreamComplete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}

	var got string
	var streamErr error
	for c := range ch {
		got += c.Content
		if c.Error != nil {
			streamErr = c.Error
		}
	}
	if got != "ok" {
		t.Errorf("content before failure = %q, want ok", got)
	}
	if streamErr == nil {
		t.Error("expected a mid-stream error")
	}
}

func TestGoogleProvider_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy", http.StatusForbidden, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.URL.Path, "/models") {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
			err := provider.HealthCheck(context.Background())

			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGoogleProvider_Models(t *testing.T) {
	provider := NewGoogleProvider("test-key")
	models := provider.Models()

	if len(models) == 0 {
		t.Fatal("Models() returned empty list")
	}
	for _, m := range models {
		if m.Name == "" {
			t.Errorf("model %q has empty name", m.ID)
		}
	}
}

func TestGoogleProvider_StreamComplete_ErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Pyrrhus est\"}]}}]}\r\n\r\n")
		fmt.Fprint(w, "data: {\"error\":{\"code\":503,\"message\":\"The model is overloaded.\",\"status\":\"UNAVAILABLE\"}}\r\n\r\n")
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	ch, err := provider.StreamComplete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}

	var got string
	var streamErr error
	done := false
	for c := range ch {
		got += c.Content
		done = done || c.Done
		if c.Error != nil {
			streamErr = c.Error
		}
	}
	if got != "Pyrrhus est" {
		t.Errorf("content before failure = %q", got)
	}
	if streamErr == nil || !strings.Contains(streamErr.Error(), "UNAVAILABLE") {
		t.Errorf("stream error = %v, want the provider error", streamErr)
	}
	if done {
		t.Error("an interrupted stream must not report Done")
	}
}

func TestGoogleProvider_StreamComplete_NoText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"finishReason\":\"SAFETY\"}],\"usageMetadata\":{\"promptTokenCount\":12}}\r\n\r\n")
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	ch, err := provider.StreamComplete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}

	var streamErr error
	for c := range ch {
		if c.Done {
			t.Error("a stream without text must not report Done")
		}
		if c.Error != nil {
			streamErr = c.Error
		}
	}
	if !errors.Is(streamErr, ErrEmptyResponse) {
		t.Fatalf("stream error = %v, want ErrEmptyResponse", streamErr)
	}
	if !strings.Contains(streamErr.Error(), "SAFETY") {
		t.Errorf("stream error = %v, want the finish reason", streamErr)
	}
}

func TestGoogleProvider_Complete_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":429,"message":"Resource exhausted.","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	_, err := provider.Complete(context.Background(), CompletionRequest{})
	if err == nil || !strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		t.Errorf("Complete() error = %v, want the provider error", err)
	}
	if errors.Is(err, ErrEmptyResponse) {
		t.Error("a provider error is not an empty response")
	}
}

func TestGateway_StreamTutorReply_GeminiErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Pyrrhus est\"}]}}]}\r\n\r\n")
		fmt.Fprint(w, "data: {\"error\":{\"code\":503,\"message\":\"overloaded\",\"status\":\"UNAVAILABLE\"}}\r\n\r\n")
	}))
	defer server.Close()

	gw := NewGateway(NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL)))
	ch, err := gw.StreamTutorReply(context.Background(), nil, "Qui est Pyrrhus ?", "cours")
	if err != nil {
		t.Fatalf("StreamTutorReply() error = %v", err)
	}

	var streamErr error
	for c := range ch {
		if c.Done {
			t.Error("an interrupted reply must not report Done")
		}
		if c.Error != nil {
			streamErr = c.Error
		}
	}
	if !errors.Is(streamErr, ErrTransport) {
		t.Errorf("stream error = %v, want ErrTransport", streamErr)
	}
}
