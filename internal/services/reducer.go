package services

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// Reducer assembles per-chunk summaries into the final summary text.
type Reducer struct {
	summarizer *Summarizer
	maxTokens  int
}

func NewReducer(summarizer *Summarizer, maxTokens int) *Reducer {
	return &Reducer{summarizer: summarizer, maxTokens: maxTokens}
}

// Reduce concatenates the summaries in chunk-index order, one per line,
// regardless of the order they completed in. If the concatenation's
// estimated token count exceeds the per-chunk budget, exactly one
// reduction pass condenses it into a single overview; the result is never
// re-reduced, whatever its size.
func (r *Reducer) Reduce(ctx context.Context, summaries []models.ChunkSummary) (string, error) {
	ordered := make([]models.ChunkSummary, len(summaries))
	copy(ordered, summaries)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	lines := make([]string, 0, len(ordered))
	for _, s := range ordered {
		lines = append(lines, s.Text)
	}
	concatenated := strings.Join(lines, "\n")

	if len(ordered) <= 1 || EstimateTokens(concatenated) <= r.maxTokens {
		return concatenated, nil
	}
	slog.Info("Concatenated summaries exceed budget, running reduction pass.",
		"summaryCount", len(ordered), "estimatedTokens", EstimateTokens(concatenated))
	return r.summarizer.Reduce(ctx, concatenated)
}
