package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// Generator is the generative-model capability the pipeline consumes. Both
// methods return the completion text; an empty string with a nil error is
// a well-formed response that produced no content.
type Generator interface {
	SummarizeChunk(ctx context.Context, text string) (string, error)
	ReduceSummaries(ctx context.Context, text string) (string, error)
}

// emptyCompletionPlaceholder stands in when the model returns a
// well-formed response with no completion text. A content gap is not a
// reason to fail the whole invocation.
const emptyCompletionPlaceholder = "[no summary produced for this section]"

// Summarizer sends one chunk at a time to the model. Throttling is the
// only retried failure: a bounded backoff loop with doubling delay and a
// hard attempt cap, surfacing ErrRateLimitExceeded on exhaustion. Every
// other service error aborts immediately as ErrSummarizationFailed.
type Summarizer struct {
	gen         Generator
	backoffBase time.Duration
	maxAttempts int
}

func NewSummarizer(gen Generator, backoffBase time.Duration, maxAttempts int) *Summarizer {
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Summarizer{gen: gen, backoffBase: backoffBase, maxAttempts: maxAttempts}
}

// SummarizeChunk produces the summary for one chunk, retrying the entire
// request on throttling.
func (s *Summarizer) SummarizeChunk(ctx context.Context, chunk models.TextChunk) (models.ChunkSummary, error) {
	text, err := s.generate(ctx, chunk.Index, s.gen.SummarizeChunk, chunk.Text)
	if err != nil {
		return models.ChunkSummary{}, err
	}
	return models.ChunkSummary{Index: chunk.Index, Text: text}, nil
}

// Reduce runs the second-order pass that condenses concatenated chunk
// summaries into one overview, under the same retry policy.
func (s *Summarizer) Reduce(ctx context.Context, concatenated string) (string, error) {
	return s.generate(ctx, -1, s.gen.ReduceSummaries, concatenated)
}

func (s *Summarizer) generate(ctx context.Context, chunkIndex int, call func(context.Context, string) (string, error), text string) (string, error) {
	backoff := s.backoffBase
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		completion, err := call(ctx, text)
		if err == nil {
			if completion == "" {
				slog.Warn("Model returned no completion text. Substituting placeholder.", "chunkIndex", chunkIndex)
				return emptyCompletionPlaceholder, nil
			}
			return completion, nil
		}
		if !IsThrottle(err) {
			return "", fmt.Errorf("%w: chunk %d: %v", ErrSummarizationFailed, chunkIndex, err)
		}
		if attempt == s.maxAttempts {
			return "", fmt.Errorf("%w: chunk %d after %d attempts: %v", ErrRateLimitExceeded, chunkIndex, attempt, err)
		}
		slog.Warn(
			"Model call throttled, will retry.",
			"chunkIndex", chunkIndex,
			"attempt", attempt,
			"maxAttempts", s.maxAttempts,
			"backoff", backoff.String(),
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", fmt.Errorf("%w: chunk %d: %v", ErrSummarizationFailed, chunkIndex, ctx.Err())
		}
	}
	return "", fmt.Errorf("%w: chunk %d", ErrRateLimitExceeded, chunkIndex)
}
