package ai

import "context"

// MockProvider is a test double for AI providers.
type MockProvider struct {
	Response    string
	Chunks      []string // streamed fragments; defaults to Response as one fragment
	Err         error    // returned before any output
	StreamErr   error    // sent after Chunks instead of the final Done chunk
	Gate        chan struct{}
	LastRequest *CompletionRequest // captures the last request for inspection
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.LastRequest = &req
	if m.Err != nil {
		return CompletionResponse{}, m.Err
	}
	if m.Response == "" {
		return CompletionResponse{}, ErrEmptyResponse
	}
	return CompletionResponse{
		Content:      m.Response,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(m.Response),
	}, nil
}

func (m *MockProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	m.LastRequest = &req
	if m.Err != nil {
		return nil, m.Err
	}

	chunks := m.Chunks
	if chunks == nil {
		chunks = []string{m.Response}
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		if m.Gate != nil {
			select {
			case <-m.Gate:
			case <-ctx.Done():
				return
			}
		}

		out := 0
		for _, c := range chunks {
			select {
			case ch <- StreamChunk{Content: c}:
				out += len(c)
			case <-ctx.Done():
				return
			}
		}

		last := StreamChunk{Done: true, InputTokens: 10, OutputTokens: out}
		if m.StreamErr != nil {
			last = StreamChunk{Error: m.StreamErr}
		}
		select {
		case ch <- last:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (m *MockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "mock", Name: "Mock Model", MaxTokens: 4096, Description: "Test mock"},
	}
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}
