package services

import "github.com/Lllllllleong/docsummaryflow/internal/models"

// charsPerToken is the fixed approximation used to size chunks against a
// model token budget: 4 characters per token. The same ratio is used by
// the reducer's overflow check so both sides agree on what "fits".
const charsPerToken = 4

// ChunkText splits text into contiguous, non-overlapping chunks of at
// most maxTokens*charsPerToken runes each, preserving document order.
// Chunks may split mid-word; boundary awareness is intentionally absent.
// Empty text yields no chunks. Concatenating the chunks in order
// reconstructs the input exactly.
func ChunkText(text string, maxTokens int) []models.TextChunk {
	maxChars := maxTokens * charsPerToken
	if maxChars <= 0 {
		maxChars = 1
	}
	runes := []rune(text)
	chunks := make([]models.TextChunk, 0, (len(runes)+maxChars-1)/maxChars)
	for start := 0; start < len(runes); start += maxChars {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.TextChunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
	}
	return chunks
}

// EstimateTokens approximates the token count of text with the shared
// chars-per-token ratio, rounding up.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + charsPerToken - 1) / charsPerToken
}
