package gcp

import (
	"testing"

	"cloud.google.com/go/vertexai/genai"
)

func responseWith(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: parts},
		}},
	}
}

func TestExtractCompletion(t *testing.T) {
	resp := responseWith(genai.Text("A concise summary."), genai.Text(" More detail."))
	if got := extractCompletion(resp); got != "A concise summary. More detail." {
		t.Fatalf("unexpected completion: %q", got)
	}
}

func TestExtractCompletionStripsStopMarker(t *testing.T) {
	resp := responseWith(genai.Text("The summary.\n" + stopMarker))
	if got := extractCompletion(resp); got != "The summary." {
		t.Fatalf("stop marker not stripped: %q", got)
	}
}

func TestExtractCompletionEmpty(t *testing.T) {
	cases := []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
		responseWith(),
	}
	for i, resp := range cases {
		if got := extractCompletion(resp); got != "" {
			t.Fatalf("case %d: expected empty completion, got %q", i, got)
		}
	}
}
