package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// OCRService is the capability contract the extractor consumes. The sync
// call covers single-page raster images; the start/poll pair covers
// paginated formats that need an async job.
type OCRService interface {
	DetectText(ctx context.Context, doc models.DocumentReference) ([]models.Block, error)
	StartTextDetection(ctx context.Context, doc models.DocumentReference) (string, error)
	GetTextDetection(ctx context.Context, jobID, cursor string) (models.Page, error)
}

// DocumentFormat is the coarse classification that decides the extraction
// path, derived from the object key's extension before any service call.
type DocumentFormat int

const (
	FormatUnsupported DocumentFormat = iota
	FormatImage                      // single sync OCR call
	FormatPaginated                  // async job + polling + pagination
)

// ClassifyFormat maps an object key to its extraction path. Matching is
// case-insensitive on the final extension.
func ClassifyFormat(object string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(object)) {
	case ".png", ".jpeg", ".jpg":
		return FormatImage
	case ".pdf", ".tiff":
		return FormatPaginated
	default:
		return FormatUnsupported
	}
}

// jobState is the explicit state of the polling machine:
// SUBMITTED -> POLLING -> SUCCEEDED | FAILED | TIMED_OUT.
type jobState int

const (
	stateSubmitted jobState = iota
	statePolling
	stateSucceeded
	stateFailed
	stateTimedOut
)

// nextState computes the transition after one poll observation. attempt is
// 1-based; once it reaches maxAttempts without a terminal status the job
// times out.
func nextState(status models.JobStatus, attempt, maxAttempts int) jobState {
	switch status {
	case models.JobSucceeded:
		return stateSucceeded
	case models.JobFailed:
		return stateFailed
	default:
		if attempt >= maxAttempts {
			return stateTimedOut
		}
		return statePolling
	}
}

// Extractor turns a document reference into its full extracted plain
// text, hiding whether extraction ran synchronously or as a polled job.
type Extractor struct {
	ocr          OCRService
	pollInterval time.Duration
	maxAttempts  int
}

func NewExtractor(ocr OCRService, pollInterval time.Duration, maxAttempts int) *Extractor {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	return &Extractor{ocr: ocr, pollInterval: pollInterval, maxAttempts: maxAttempts}
}

// Extract returns the document's plain text. Unsupported formats fail
// before any service call.
func (e *Extractor) Extract(ctx context.Context, doc models.DocumentReference) (string, error) {
	switch ClassifyFormat(doc.Object) {
	case FormatImage:
		blocks, err := e.ocr.DetectText(ctx, doc)
		if err != nil {
			return "", fmt.Errorf("%w: detect text on gs://%s/%s: %v", ErrExtractionFailed, doc.Bucket, doc.Object, err)
		}
		return linesFromBlocks(blocks), nil
	case FormatPaginated:
		blocks, err := e.runJob(ctx, doc)
		if err != nil {
			return "", err
		}
		return linesFromBlocks(blocks), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, doc.Object)
	}
}

// runJob submits an async text-detection job and drives it to a terminal
// state, then paginates every result page. All blocks are collected
// before any text is assembled; stopping early would drop pages.
func (e *Extractor) runJob(ctx context.Context, doc models.DocumentReference) ([]models.Block, error) {
	jobID, err := e.ocr.StartTextDetection(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: start job for gs://%s/%s: %v", ErrExtractionFailed, doc.Bucket, doc.Object, err)
	}
	job := &models.ExtractionJob{ID: jobID, Status: models.JobInProgress}
	logCtx := slog.With("gcsObject", doc.Object, "jobId", jobID)
	logCtx.Info("Extraction job submitted.")

	state := stateSubmitted
	for attempt := 1; state != stateSucceeded; attempt++ {
		select {
		case <-time.After(e.pollInterval):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, ctx.Err())
		}
		page, err := e.ocr.GetTextDetection(ctx, job.ID, "")
		if err != nil {
			return nil, fmt.Errorf("%w: poll job %s: %v", ErrExtractionFailed, job.ID, err)
		}
		job.Status = page.Status
		state = nextState(page.Status, attempt, e.maxAttempts)
		switch state {
		case stateFailed:
			return nil, fmt.Errorf("%w: job %s", ErrExtractionJobFailed, job.ID)
		case stateTimedOut:
			return nil, fmt.Errorf("%w: job %s after %d polls", ErrExtractionTimeout, job.ID, attempt)
		case stateSucceeded:
			job.Blocks = append(job.Blocks, page.Blocks...)
			job.Cursor = page.NextCursor
		}
	}

	for job.Cursor != "" {
		page, err := e.ocr.GetTextDetection(ctx, job.ID, job.Cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch results for job %s: %v", ErrExtractionFailed, job.ID, err)
		}
		job.Blocks = append(job.Blocks, page.Blocks...)
		job.Cursor = page.NextCursor
	}
	logCtx.Info("Extraction job complete.", "blockCount", len(job.Blocks))
	return job.Blocks, nil
}

// linesFromBlocks concatenates line-level block text, one line per block,
// in the order the service returned them.
func linesFromBlocks(blocks []models.Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Type != models.BlockLine {
			continue
		}
		b.WriteString(blk.Text)
		b.WriteString("\n")
	}
	return b.String()
}
