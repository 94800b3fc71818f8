package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Chunk Summarizer Prompts ---
const SummarizerSystemPrompt = "You are an academic research assistant. Your task is to summarize excerpts of scholarly and technical documents. Write in a precise, academic register, preserve key findings, figures, and terminology, and never add information that is not present in the source text."
const SummarizerUserPromptTemplate = `Summarize the following document excerpt. Capture the main arguments, findings, and any concrete figures. Respond with the summary only, then write %s on its own line.

Excerpt:
%s`

// --- Reducer Prompts ---
const ReducerSystemPrompt = "You are an academic research assistant. Your task is to distill multiple partial summaries of one document into a single coherent overview."
const ReducerUserPromptTemplate = `The following are summaries of consecutive sections of one document, in document order. Distill them into one overview that reads as a single summary. Respond with the overview only, then write %s on its own line.

Section summaries:
%s`

// stopMarker ends the model's turn. It is stripped from completions; the
// model cannot continue past it.
const stopMarker = "<END_OF_SUMMARY>"

// VertexClient holds the pre-configured generative models for the
// pipeline: one for per-chunk summaries, one for the reduction pass.
type VertexClient struct {
	summarizerModel *genai.GenerativeModel
	reducerModel    *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a client holding both models. Both run at low
// temperature with bounded output and an explicit stop sequence.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	generationConfig := genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: genai.Ptr[int32](512),
		StopSequences:   []string{stopMarker},
	}

	summarizerModel := baseClient.GenerativeModel(modelName)
	summarizerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SummarizerSystemPrompt)},
	}
	summarizerModel.GenerationConfig = generationConfig

	reducerModel := baseClient.GenerativeModel(modelName)
	reducerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ReducerSystemPrompt)},
	}
	reducerModel.GenerationConfig = generationConfig

	return &VertexClient{
		summarizerModel: summarizerModel,
		reducerModel:    reducerModel,
		baseClient:      baseClient,
	}, nil
}

// SummarizeChunk produces the first-order summary of one chunk of text.
func (c *VertexClient) SummarizeChunk(ctx context.Context, text string) (string, error) {
	prompt := genai.Text(fmt.Sprintf(SummarizerUserPromptTemplate, stopMarker, text))
	resp, err := c.summarizerModel.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate chunk summary: %w", err)
	}
	return extractCompletion(resp), nil
}

// ReduceSummaries condenses concatenated chunk summaries into one overview.
func (c *VertexClient) ReduceSummaries(ctx context.Context, text string) (string, error) {
	prompt := genai.Text(fmt.Sprintf(ReducerUserPromptTemplate, stopMarker, text))
	resp, err := c.reducerModel.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate reduced summary: %w", err)
	}
	return extractCompletion(resp), nil
}

// extractCompletion robustly pulls the text content out of a model
// response. A response with no text parts yields the empty string; the
// caller decides what a content gap means.
func extractCompletion(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			builder.WriteString(string(txt))
		}
	}

	completion := strings.TrimSpace(builder.String())
	completion = strings.TrimSuffix(completion, stopMarker)
	return strings.TrimSpace(completion)
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
