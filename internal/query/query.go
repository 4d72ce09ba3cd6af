// Package query orchestrates answering a question: embed, retrieve,
// prompt, generate — degrading gracefully at every step instead of
// surfacing upstream failures to the caller.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/engineqa/engineqa/internal/errcode"
	"github.com/engineqa/engineqa/internal/provider"
	"github.com/engineqa/engineqa/internal/rag"
)

const (
	chatTemperature = 0.2
	chatMaxTokens   = 512
)

const systemPrompt = `You are an assistant for advertising-engine operations and troubleshooting.

Rules:
1. Answer ONLY from the reference material supplied in the user message.
   If the material does not contain enough information, say plainly
   "Based on the available material, I am not sure."
   Never invent or guess an answer.
2. For troubleshooting questions, give actionable, step-by-step advice,
   with every step grounded in the supplied material.
3. Structure the answer: answer the question directly first, list
   alternative solutions separately, and cite sources accurately.
4. Be concise and use consistent technical terminology.

Answer format:

Based on the reference material:
[answer]

Related references:
- [source titles]`

// Generator is the slice of the upstream client the orchestrator needs
// for answer generation.
type Generator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Chat(ctx context.Context, messages []provider.Message, temperature float32, maxTokens int) (string, error)
}

// PassageRetriever finds grounding passages for an embedded question.
type PassageRetriever interface {
	Retrieve(ctx context.Context, vec []float32, topK int) ([]rag.Passage, error)
}

// Source is one cited passage in a response.
type Source struct {
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Response is the full answer payload for one question.
type Response struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	Degraded  bool     `json:"degraded"`
	ErrorCode string   `json:"error_code,omitempty"`
	TraceID   string   `json:"trace_id"`
}

// Service runs the query pipeline. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	generator Generator
	retriever PassageRetriever
	logger    *slog.Logger
}

// NewService creates a query Service.
func NewService(generator Generator, retriever PassageRetriever, logger *slog.Logger) (*Service, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{generator: generator, retriever: retriever, logger: logger}, nil
}

// Answer runs the pipeline for one question. It never returns an error
// for upstream or retrieval failures; those become degraded responses so
// the HTTP boundary can stay a 200. topK <= 0 means the configured
// default.
func (s *Service) Answer(ctx context.Context, question string, topK int) Response {
	traceID := uuid.NewString()
	logger := s.logger.With("trace_id", traceID)

	logger.Info("received query", "top_k", topK)

	vec, err := s.generator.Embed(ctx, question)
	if err != nil {
		code := errcode.Classify(err)
		logger.Warn("embedding failed", "error_code", code, "error", err)
		// Nothing was retrieved yet, so there are no sources to offer.
		return degradedResponse(traceID, code, nil)
	}

	passages, err := s.retriever.Retrieve(ctx, vec, topK)
	if err != nil {
		if !errors.Is(err, rag.ErrBelowThreshold) {
			logger.Warn("retrieval failed", "error", err)
		}
		return degradedResponse(traceID, errcode.RetrievalFailed, nil)
	}
	if len(passages) == 0 {
		logger.Info("no matching passages")
		return noMatchResponse(traceID)
	}

	messages := buildMessages(question, passages)
	answer, err := s.generator.Chat(ctx, messages, chatTemperature, chatMaxTokens)
	if err != nil {
		code := errcode.Classify(err)
		logger.Error("chat generation failed", "error_code", code, "error", err)

		if errcode.ShouldDegrade(code) {
			// The model is down but retrieval worked; hand the caller
			// the material to read themselves.
			return degradedWithSourcesResponse(traceID, code, toSources(passages))
		}
		return degradedResponse(traceID, code, nil)
	}

	logger.Info("query completed", "sources", len(passages))
	return Response{
		Answer:  answer,
		Sources: toSources(passages),
		TraceID: traceID,
	}
}

// buildMessages assembles the two-message prompt: the fixed system
// instruction plus the question with its numbered reference material.
func buildMessages(question string, passages []rag.Passage) []provider.Message {
	var ctxText strings.Builder
	for i, p := range passages {
		if i > 0 {
			ctxText.WriteString("\n\n")
		}
		fmt.Fprintf(&ctxText, "[Source %d] %s\nPath: %s\nContent: %s\n",
			i+1, p.TitlePath, p.Path, p.Snippet)
	}

	return []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nReference material:\n%s",
			question, ctxText.String())},
	}
}

func toSources(passages []rag.Passage) []Source {
	sources := make([]Source, len(passages))
	for i, p := range passages {
		sources[i] = Source{
			Title:   p.TitlePath,
			Path:    p.Path,
			Snippet: p.Snippet,
			Score:   p.Score,
		}
	}
	return sources
}

func noMatchResponse(traceID string) Response {
	return Response{
		Answer: "I could not find relevant reference material for this question in the knowledge base. " +
			"Try a more specific description, or contact the engineering team for help.",
		Sources:   []Source{},
		Degraded:  true,
		ErrorCode: string(errcode.NoMatch),
		TraceID:   traceID,
	}
}

func degradedResponse(traceID string, code errcode.Code, sources []Source) Response {
	if sources == nil {
		sources = []Source{}
	}
	return Response{
		Answer:    fmt.Sprintf("The service is temporarily unavailable: %s.", errcode.Description(code)),
		Sources:   sources,
		Degraded:  true,
		ErrorCode: string(code),
		TraceID:   traceID,
	}
}

func degradedWithSourcesResponse(traceID string, code errcode.Code, sources []Source) Response {
	var refs strings.Builder
	if len(sources) == 0 {
		refs.WriteString("No related reference documents were found.")
	} else {
		refs.WriteString("Here are some related reference documents you can consult directly:\n")
		for _, s := range sources {
			fmt.Fprintf(&refs, "- [%s] %s\n", s.Title, s.Path)
		}
	}

	return Response{
		Answer: fmt.Sprintf("Answer generation is temporarily unavailable: %s.\n\n%s",
			errcode.Description(code), refs.String()),
		Sources:   sources,
		Degraded:  true,
		ErrorCode: string(code),
		TraceID:   traceID,
	}
}
