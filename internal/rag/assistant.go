// Package rag answers questions about the indexed documents by retrieving
// the closest passages and handing them to the language model.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/llm"
	"github.com/ziadkadry99/docqa/internal/metrics"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

var tracer = otel.Tracer("github.com/ziadkadry99/docqa/internal/rag")

// Apology replaces the answer when generation fails.
const Apology = "Sorry, I encountered an error generating the response."

const DefaultTopK = 3

// Retriever finds the passages most relevant to a question.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]vectordb.SearchResult, error)
}

// Assistant answers questions from retrieved passages.
type Assistant struct {
	retriever   Retriever
	provider    llm.Provider
	model       string
	topK        int
	temperature float64
	maxTokens   int
	logger      *zap.Logger
	metrics     *metrics.Collector
}

// Option configures an Assistant.
type Option func(*Assistant)

func WithModel(model string) Option {
	return func(a *Assistant) { a.model = model }
}

// WithTopK sets how many passages are retrieved per question.
func WithTopK(k int) Option {
	return func(a *Assistant) {
		if k > 0 {
			a.topK = k
		}
	}
}

func WithTemperature(t float64) Option {
	return func(a *Assistant) { a.temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(a *Assistant) { a.maxTokens = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(a *Assistant) { a.metrics = c }
}

// New creates an Assistant.
func New(retriever Retriever, provider llm.Provider, opts ...Option) *Assistant {
	a := &Assistant{
		retriever: retriever,
		provider:  provider,
		topK:      DefaultTopK,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TopK returns the number of passages retrieved per question.
func (a *Assistant) TopK() int { return a.topK }

// Reply is a streamed answer. Fragments is closed when generation ends;
// Text and Err are valid only after that.
type Reply struct {
	Sources []vectordb.SearchResult

	fragments chan string
	text      string
	err       error
}

// Fragments returns the answer as it is generated, with reasoning blocks
// removed.
func (r *Reply) Fragments() <-chan string { return r.fragments }

// Text returns the cleaned full answer, or Apology if generation failed.
func (r *Reply) Text() string { return r.text }

// Err returns the generation failure, if any. It is already reflected in
// Text, so callers typically only log it.
func (r *Reply) Err() error { return r.err }

// Ask retrieves passages for question and starts generating an answer. An
// error is returned only if retrieval fails. Generation failures end the
// stream with Apology. Cancelling ctx stops generation.
func (a *Assistant) Ask(ctx context.Context, question string) (*Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question is empty")
	}

	ctx, span := tracer.Start(ctx, "rag.Ask")
	span.SetAttributes(attribute.Int("rag.top_k", a.topK))

	results, err := a.retriever.Search(ctx, question, a.topK)
	if err != nil {
		span.RecordError(err)
		span.End()
		a.count("error")
		return nil, fmt.Errorf("retrieving passages: %w", err)
	}
	span.SetAttributes(attribute.Int("rag.passages", len(results)))

	reply := &Reply{
		Sources:   results,
		fragments: make(chan string),
	}

	req := llm.CompletionRequest{
		Model:       a.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: FormatPrompt(question, results)}},
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}
	events, err := a.provider.Stream(ctx, req)
	if err != nil {
		go func() {
			defer span.End()
			a.fail(ctx, reply, err, false)
		}()
		return reply, nil
	}

	go func() {
		defer span.End()
		a.relay(ctx, reply, events)
	}()
	return reply, nil
}

func (a *Assistant) relay(ctx context.Context, reply *Reply, events <-chan llm.StreamEvent) {
	var raw strings.Builder
	var filter thinkFilter
	emitted := false

	for ev := range events {
		if ev.Err != nil {
			a.fail(ctx, reply, ev.Err, emitted)
			return
		}
		raw.WriteString(ev.Content)
		if out := filter.Write(ev.Content); out != "" {
			if !deliver(ctx, reply.fragments, out) {
				a.fail(ctx, reply, ctx.Err(), emitted)
				return
			}
			emitted = true
		}
	}
	if ctx.Err() != nil {
		a.fail(ctx, reply, ctx.Err(), emitted)
		return
	}
	if out := filter.Flush(); out != "" {
		deliver(ctx, reply.fragments, out)
	}

	reply.text = CleanAnswer(raw.String())
	a.count("ok")
	close(reply.fragments)
}

// fail ends the reply with Apology, separated from any partial answer.
func (a *Assistant) fail(ctx context.Context, reply *Reply, err error, emitted bool) {
	a.logger.Error("generating answer failed", zap.String("provider", a.provider.Name()), zap.Error(err))
	reply.err = err
	reply.text = Apology
	a.count("error")

	msg := Apology
	if emitted {
		msg = "\n\n" + Apology
	}
	deliver(ctx, reply.fragments, msg)
	close(reply.fragments)
}

func (a *Assistant) count(result string) {
	if a.metrics != nil {
		a.metrics.Questions.WithLabelValues(result).Inc()
	}
}

func deliver(ctx context.Context, ch chan<- string, s string) bool {
	select {
	case ch <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

// Answer asks a question and waits for the whole answer.
func (a *Assistant) Answer(ctx context.Context, question string) (string, []vectordb.SearchResult, error) {
	reply, err := a.Ask(ctx, question)
	if err != nil {
		return "", nil, err
	}
	for range reply.Fragments() {
	}
	return reply.Text(), reply.Sources, nil
}
