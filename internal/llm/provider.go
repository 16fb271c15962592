// Package llm defines the contract with the external generation service and
// its OpenAI and Ollama backends.
package llm

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the whole response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Stream sends a completion request and returns a channel of text
	// fragments. The provider closes the channel when generation ends, fails
	// or ctx is cancelled. A failure is delivered as the last event.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
	// Name returns the name of this provider.
	Name() string
}

// StreamEvent is one fragment of a streamed completion, or its failure.
type StreamEvent struct {
	Content string
	Err     error
}

// Collect drains a stream into a single string.
func Collect(events <-chan StreamEvent) (string, error) {
	var out []byte
	for ev := range events {
		if ev.Err != nil {
			return string(out), ev.Err
		}
		out = append(out, ev.Content...)
	}
	return string(out), nil
}

// send delivers ev unless ctx is done. It reports whether the consumer is
// still listening.
func send(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
