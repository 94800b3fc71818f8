package services

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// fakeOCR scripts the OCR service: statuses are consumed one per poll
// until exhausted (then the job reports success), and pages holds the
// result pages keyed by shard index.
type fakeOCR struct {
	syncBlocks []models.Block
	syncErr    error
	startErr   error
	statuses   []models.JobStatus
	pages      []models.Page

	syncCalls  int
	startCalls int
	pollCalls  int
	fetchCalls int
	pollIdx    int
}

func (f *fakeOCR) DetectText(ctx context.Context, doc models.DocumentReference) ([]models.Block, error) {
	f.syncCalls++
	return f.syncBlocks, f.syncErr
}

func (f *fakeOCR) StartTextDetection(ctx context.Context, doc models.DocumentReference) (string, error) {
	f.startCalls++
	if f.startErr != nil {
		return "", f.startErr
	}
	return "job-1", nil
}

func (f *fakeOCR) GetTextDetection(ctx context.Context, jobID, cursor string) (models.Page, error) {
	if cursor == "" {
		f.pollCalls++
		if f.pollIdx < len(f.statuses) {
			st := f.statuses[f.pollIdx]
			f.pollIdx++
			if st != models.JobSucceeded {
				return models.Page{Status: st}, nil
			}
		}
		if len(f.pages) == 0 {
			return models.Page{Status: models.JobSucceeded}, nil
		}
		return f.pages[0], nil
	}
	f.fetchCalls++
	i, err := strconv.Atoi(cursor)
	if err != nil || i >= len(f.pages) {
		return models.Page{}, errors.New("bad cursor")
	}
	return f.pages[i], nil
}

func (f *fakeOCR) totalCalls() int {
	return f.syncCalls + f.startCalls + f.pollCalls + f.fetchCalls
}

func testExtractor(ocr OCRService, maxAttempts int) *Extractor {
	return NewExtractor(ocr, time.Millisecond, maxAttempts)
}

func TestClassifyFormat(t *testing.T) {
	cases := map[string]DocumentFormat{
		"report.pdf":     FormatPaginated,
		"scan.TIFF":      FormatPaginated,
		"photo.png":      FormatImage,
		"photo.JPEG":     FormatImage,
		"photo.jpg":      FormatImage,
		"notes.txt":      FormatUnsupported,
		"archive.tar.gz": FormatUnsupported,
		"no-extension":   FormatUnsupported,
	}
	for object, want := range cases {
		if got := ClassifyFormat(object); got != want {
			t.Fatalf("ClassifyFormat(%q): got %v want %v", object, got, want)
		}
	}
}

func TestExtractUnsupportedBeforeAnyCall(t *testing.T) {
	ocr := &fakeOCR{}
	_, err := testExtractor(ocr, 3).Extract(context.Background(), models.DocumentReference{Bucket: "b", Object: "doc.docx"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
	if ocr.totalCalls() != 0 {
		t.Fatalf("expected zero service calls, got %d", ocr.totalCalls())
	}
}

func TestExtractImageLineConcatenation(t *testing.T) {
	ocr := &fakeOCR{syncBlocks: []models.Block{
		{Type: models.BlockLine, Text: "first line"},
		{Type: models.BlockWord, Text: "ignored"},
		{Type: models.BlockLine, Text: "second line"},
	}}
	text, err := testExtractor(ocr, 3).Extract(context.Background(), models.DocumentReference{Bucket: "b", Object: "scan.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "first line\nsecond line\n" {
		t.Fatalf("unexpected text: %q", text)
	}
	if ocr.syncCalls != 1 || ocr.startCalls != 0 {
		t.Fatalf("expected one sync call, got sync=%d start=%d", ocr.syncCalls, ocr.startCalls)
	}
}

func TestExtractPaginatedCollectsAllPages(t *testing.T) {
	ocr := &fakeOCR{
		statuses: []models.JobStatus{models.JobInProgress, models.JobInProgress, models.JobSucceeded},
		pages: []models.Page{
			{Status: models.JobSucceeded, Blocks: []models.Block{{Type: models.BlockLine, Text: "page one"}}, NextCursor: "1"},
			{Status: models.JobSucceeded, Blocks: []models.Block{{Type: models.BlockLine, Text: "page two"}}, NextCursor: "2"},
			{Status: models.JobSucceeded, Blocks: []models.Block{{Type: models.BlockLine, Text: "page three"}}},
		},
	}
	text, err := testExtractor(ocr, 10).Extract(context.Background(), models.DocumentReference{Bucket: "b", Object: "doc.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "page one\npage two\npage three\n" {
		t.Fatalf("partial or reordered collection: %q", text)
	}
	if ocr.pollCalls != 3 {
		t.Fatalf("expected 3 polls, got %d", ocr.pollCalls)
	}
	if ocr.fetchCalls != 2 {
		t.Fatalf("expected 2 continuation fetches, got %d", ocr.fetchCalls)
	}
}

func TestExtractJobFailure(t *testing.T) {
	ocr := &fakeOCR{statuses: []models.JobStatus{models.JobInProgress, models.JobFailed}}
	_, err := testExtractor(ocr, 10).Extract(context.Background(), models.DocumentReference{Bucket: "b", Object: "doc.pdf"})
	if !errors.Is(err, ErrExtractionJobFailed) {
		t.Fatalf("got %v, want ErrExtractionJobFailed", err)
	}
}

func TestExtractPollingBound(t *testing.T) {
	// A job that never terminates must hit the attempt cap, not loop.
	ocr := &fakeOCR{statuses: make([]models.JobStatus, 100)}
	for i := range ocr.statuses {
		ocr.statuses[i] = models.JobInProgress
	}
	_, err := testExtractor(ocr, 4).Extract(context.Background(), models.DocumentReference{Bucket: "b", Object: "doc.pdf"})
	if !errors.Is(err, ErrExtractionTimeout) {
		t.Fatalf("got %v, want ErrExtractionTimeout", err)
	}
	if ocr.pollCalls != 4 {
		t.Fatalf("expected exactly 4 polls, got %d", ocr.pollCalls)
	}
}

func TestExtractServiceErrorPropagates(t *testing.T) {
	ocr := &fakeOCR{syncErr: errors.New("vision unavailable")}
	_, err := testExtractor(ocr, 3).Extract(context.Background(), models.DocumentReference{Bucket: "b", Object: "scan.jpg"})
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("got %v, want ErrExtractionFailed", err)
	}
}

func TestNextStateTransitions(t *testing.T) {
	cases := []struct {
		status  models.JobStatus
		attempt int
		max     int
		want    jobState
	}{
		{models.JobInProgress, 1, 60, statePolling},
		{models.JobInProgress, 59, 60, statePolling},
		{models.JobInProgress, 60, 60, stateTimedOut},
		{models.JobSucceeded, 60, 60, stateSucceeded},
		{models.JobFailed, 1, 60, stateFailed},
	}
	for _, tc := range cases {
		if got := nextState(tc.status, tc.attempt, tc.max); got != tc.want {
			t.Fatalf("nextState(%s, %d, %d): got %v want %v", tc.status, tc.attempt, tc.max, got, tc.want)
		}
	}
}
