package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-flash"

	// Upper bound for one SSE line; a single event carries one JSON response.
	maxSSELineSize = 1 << 20
)

// GoogleProvider implements Provider for Google Gemini.
type GoogleProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	models  []ModelInfo
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithGoogleBaseURL sets the base URL (for testing).
func WithGoogleBaseURL(url string) GoogleOption {
	return func(p *GoogleProvider) {
		p.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(client *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		p.client = client
	}
}

// NewGoogleProvider creates a new Google Gemini provider. An empty API key is accepted
// here and reported as ErrConfiguration on first use.
func NewGoogleProvider(apiKey string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		apiKey:  apiKey,
		baseURL: defaultGeminiBaseURL,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// geminiRequest is the request body for the Gemini generateContent API.
type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int            `json:"maxOutputTokens,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

// geminiResponse is the response from the Gemini API. Streaming sends one per SSE event.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *geminiError `json:"error,omitempty"`
}

// geminiError is the error envelope Gemini sends in place of candidates, including
// inside an already started stream.
type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *geminiError) Error() string {
	return fmt.Sprintf("gemini error %d %s: %s", e.Code, e.Status, e.Message)
}

func (r geminiResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func (p *GoogleProvider) buildRequest(req CompletionRequest) (geminiRequest, string) {
	model := req.Model
	if model == "" {
		model = defaultGeminiModel
	}

	var system []string
	if req.System != "" {
		system = append(system, req.System)
	}

	contents := make([]geminiContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			// Gemini has no system content role; it goes to systemInstruction.
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	gemReq := geminiRequest{Contents: contents}
	if len(system) > 0 {
		gemReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}

	if req.MaxTokens > 0 || req.Temperature > 0 || req.ResponseMIMEType != "" || req.ResponseSchema != nil {
		config := &geminiGenerationConfig{
			MaxOutputTokens:  req.MaxTokens,
			ResponseMIMEType: req.ResponseMIMEType,
			ResponseSchema:   req.ResponseSchema,
		}
		if req.Temperature > 0 {
			temp := req.Temperature
			config.Temperature = &temp
		}
		gemReq.GenerationConfig = config
	}
	return gemReq, model
}

func (p *GoogleProvider) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: Google API key is not set (APPREND_AI_GOOGLE_API_KEY)", ErrConfiguration)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

func (p *GoogleProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	gemReq, model := p.buildRequest(req)

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	httpReq, err := p.newRequest(ctx, http.MethodPost, url, gemReq)
	if err != nil {
		return CompletionResponse{}, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, fmt.Errorf("gemini api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		return CompletionResponse{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if gemResp.Error != nil {
		return CompletionResponse{}, gemResp.Error
	}

	text := gemResp.text()
	if text == "" {
		if reason := gemResp.finishReason(); reason != "" && reason != "STOP" {
			return CompletionResponse{}, fmt.Errorf("%w: finish reason %s", ErrEmptyResponse, reason)
		}
		return CompletionResponse{}, ErrEmptyResponse
	}

	return CompletionResponse{
		Content:      text,
		Model:        model,
		InputTokens:  gemResp.UsageMetadata.PromptTokenCount,
		OutputTokens: gemResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// StreamComplete calls streamGenerateContent with server-sent events. HTTP and status
// errors are returned directly; failures after the first event arrive on the channel.
// Cancelling ctx aborts the underlying request.
func (p *GoogleProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	gemReq, model := p.buildRequest(req)

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, model)
	httpReq, err := p.newRequest(ctx, http.MethodPost, url, gemReq)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(c StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var inputTokens, outputTokens int
		var finishReason string
		emitted := false
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "" {
				continue
			}

			var event geminiResponse
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				send(StreamChunk{Error: fmt.Errorf("unmarshal stream event: %w", err)})
				return
			}
			if event.Error != nil {
				send(StreamChunk{Error: fmt.Errorf("stream interrupted: %w", event.Error)})
				return
			}
			if reason := event.finishReason(); reason != "" {
				finishReason = reason
			}
			if event.UsageMetadata.PromptTokenCount > 0 {
				inputTokens = event.UsageMetadata.PromptTokenCount
			}
			if event.UsageMetadata.CandidatesTokenCount > 0 {
				outputTokens = event.UsageMetadata.CandidatesTokenCount
			}
			if text := event.text(); text != "" {
				emitted = true
				if !send(StreamChunk{Content: text}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			send(StreamChunk{Error: fmt.Errorf("read stream: %w", err)})
			return
		}
		// A stream with no text at all (a blocked prompt, say) is not a reply.
		if !emitted {
			err := ErrEmptyResponse
			if finishReason != "" {
				err = fmt.Errorf("%w: finish reason %s", ErrEmptyResponse, finishReason)
			}
			send(StreamChunk{Error: err})
			return
		}
		send(StreamChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
	}()

	return ch, nil
}

func (p *GoogleProvider) Models() []ModelInfo {
	if p.models != nil {
		return p.models
	}
	return []ModelInfo{
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", MaxTokens: 1048576, Description: "Most capable Google model"},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", MaxTokens: 1048576, Description: "Fast, affordable Google model"},
	}
}

func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	req, err := p.newRequest(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
