package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/docsummaryflow/internal/gcp"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

// summarySuffix marks produced artifacts. Keys already carrying it are
// skipped, so a summary landing in a watched bucket can never re-trigger
// the pipeline against itself.
const summarySuffix = "-summary.txt"

// SummaryObjectName derives the output key: the original key with its
// final extension replaced by the summary suffix.
func SummaryObjectName(object string) string {
	return strings.TrimSuffix(object, filepath.Ext(object)) + summarySuffix
}

// ObjectStore is the storage capability the pipeline consumes. Writes are
// conditional creates; writing an object that already exists is a no-op.
type ObjectStore interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
	WriteObject(ctx context.Context, bucket, object, content string) error
}

// Recorder keeps the optional Firestore audit trail. All calls are
// best-effort; failures are logged and never fail the invocation.
type Recorder interface {
	Begin(ctx context.Context, doc models.DocumentReference) (string, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

// Launcher hands the finished summary off to a downstream workflow.
type Launcher interface {
	Launch(ctx context.Context, argument map[string]any) error
}

// SummaryConfig holds all configuration for the summarizer function.
type SummaryConfig struct {
	ProjectID           string
	VertexAIRegion      string
	SummaryModel        string
	MaxChunkTokens      int
	PollInterval        time.Duration
	MaxPollAttempts     int
	ThrottleBackoff     time.Duration
	MaxSummaryAttempts  int
	SummaryConcurrency  int
	OCROutputBucket     string
	OCROutputPrefix     string
	FirestoreCollection string
	WorkflowID          string
	WorkflowLocation    string
}

func loadSummaryConfig() (*SummaryConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	ocrOutputBucket := gcp.GetEnv("OCR_OUTPUT_BUCKET", "")
	if ocrOutputBucket == "" {
		return nil, fmt.Errorf("OCR_OUTPUT_BUCKET environment variable must be set")
	}

	return &SummaryConfig{
		ProjectID:           projectID,
		VertexAIRegion:      gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		SummaryModel:        gcp.GetEnv("SUMMARY_MODEL", "gemini-1.5-flash"),
		MaxChunkTokens:      gcp.GetEnvInt("MAX_CHUNK_TOKENS", 2000),
		PollInterval:        time.Duration(gcp.GetEnvInt("POLL_INTERVAL_SECONDS", 5)) * time.Second,
		MaxPollAttempts:     gcp.GetEnvInt("MAX_POLL_ATTEMPTS", 60),
		ThrottleBackoff:     time.Duration(gcp.GetEnvInt("THROTTLE_BACKOFF_SECONDS", 2)) * time.Second,
		MaxSummaryAttempts:  gcp.GetEnvInt("MAX_SUMMARY_ATTEMPTS", 5),
		SummaryConcurrency:  gcp.GetEnvInt("SUMMARY_CONCURRENCY", 4),
		OCROutputBucket:     ocrOutputBucket,
		OCROutputPrefix:     gcp.GetEnv("OCR_OUTPUT_PREFIX", "ocr-output"),
		FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", ""),
		WorkflowID:          gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation:    gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}, nil
}

// SummaryFunction holds the dependencies for one summarization pipeline.
type SummaryFunction struct {
	store      ObjectStore
	extractor  *Extractor
	summarizer *Summarizer
	reducer    *Reducer
	recorder   Recorder // nil when auditing is disabled
	launcher   Launcher // nil when hand-off is disabled
	config     SummaryConfig
}

// NewSummaryFunction loads configuration from the environment and builds
// all GCP clients. Clients are constructed once here and injected into
// the components, never held as globals.
func NewSummaryFunction(ctx context.Context) (*SummaryFunction, error) {
	config, err := loadSummaryConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	ocr, err := gcp.NewVisionOCR(ctx, storageClient, config.OCROutputBucket, config.OCROutputPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.SummaryModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	var recorder Recorder
	if config.FirestoreCollection != "" {
		r, err := gcp.NewFirestoreRecorder(ctx, config.ProjectID, config.FirestoreCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore recorder: %w", err)
		}
		recorder = r
	}
	var launcher Launcher
	if config.WorkflowID != "" {
		l, err := gcp.NewWorkflowLauncher(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to create workflow launcher: %w", err)
		}
		launcher = l
	}

	f := newSummaryFunction(*config, gcp.NewObjectStore(storageClient), ocr, vertexClient, recorder, launcher)
	slog.Info("Summarizer function initialized.", "model", config.SummaryModel, "maxChunkTokens", config.MaxChunkTokens)
	return f, nil
}

// newSummaryFunction wires the components from already-built
// collaborators. Tests use it to substitute fakes.
func newSummaryFunction(config SummaryConfig, store ObjectStore, ocr OCRService, gen Generator, recorder Recorder, launcher Launcher) *SummaryFunction {
	summarizer := NewSummarizer(gen, config.ThrottleBackoff, config.MaxSummaryAttempts)
	return &SummaryFunction{
		store:      store,
		extractor:  NewExtractor(ocr, config.PollInterval, config.MaxPollAttempts),
		summarizer: summarizer,
		reducer:    NewReducer(summarizer, config.MaxChunkTokens),
		recorder:   recorder,
		launcher:   launcher,
		config:     config,
	}
}

// Process runs one end-to-end invocation. The returned Outcome is the
// externally observable result; the error is non-nil only for processing
// failures (status 500) so the platform never retries rejected input.
func (f *SummaryFunction) Process(ctx context.Context, e models.GCSEvent) (models.Outcome, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if e.Bucket == "" || e.Name == "" {
		err := fmt.Errorf("%w: bucket=%q object=%q", ErrMalformedTrigger, e.Bucket, e.Name)
		logCtx.Error("Rejecting malformed trigger event.", "error", err)
		return models.Outcome{StatusCode: http.StatusBadRequest, Message: err.Error()}, nil
	}
	if strings.HasSuffix(e.Name, summarySuffix) {
		logCtx.Info("Object is a previously produced summary. Skipping.")
		return models.Outcome{StatusCode: http.StatusOK, Message: "skipped: object is a summary artifact"}, nil
	}
	if ClassifyFormat(e.Name) == FormatUnsupported {
		err := fmt.Errorf("%w: %s", ErrUnsupportedFormat, e.Name)
		logCtx.Error("Rejecting unsupported document format.", "error", err)
		return models.Outcome{StatusCode: http.StatusBadRequest, Message: err.Error()}, nil
	}

	doc := e.Document()
	recordID := f.beginRecord(ctx, logCtx, doc)

	summaryObject, err := f.run(ctx, logCtx, doc, recordID)
	if err != nil {
		logCtx.Error("Pipeline failed.", "error", err)
		f.updateRecord(ctx, logCtx, recordID, map[string]any{"status": "FAILED", "errorDetails": err.Error()})
		return models.Outcome{StatusCode: HTTPStatus(err), Message: err.Error()}, err
	}

	f.updateRecord(ctx, logCtx, recordID, map[string]any{"status": "SUCCEEDED", "summaryObject": summaryObject})
	logCtx.Info("Summary written.", "summaryObject", summaryObject)
	return models.Outcome{
		StatusCode: http.StatusOK,
		Message:    fmt.Sprintf("summary written to gs://%s/%s", doc.Bucket, summaryObject),
	}, nil
}

func (f *SummaryFunction) run(ctx context.Context, logCtx *slog.Logger, doc models.DocumentReference, recordID string) (string, error) {
	if strings.EqualFold(filepath.Ext(doc.Object), ".pdf") {
		pageCount, err := f.validatePDF(ctx, doc)
		if err != nil {
			return "", err
		}
		logCtx.Info("PDF validated.", "pageCount", pageCount)
		f.updateRecord(ctx, logCtx, recordID, map[string]any{"pageCount": pageCount})
	}

	f.updateRecord(ctx, logCtx, recordID, map[string]any{"status": "EXTRACTING"})
	text, err := f.extractor.Extract(ctx, doc)
	if err != nil {
		return "", err
	}

	chunks := ChunkText(text, f.config.MaxChunkTokens)
	logCtx.Info("Text extracted and chunked.", "textRunes", len([]rune(text)), "chunkCount", len(chunks))
	f.updateRecord(ctx, logCtx, recordID, map[string]any{"status": "SUMMARIZING", "chunkCount": len(chunks)})

	summaries, err := f.summarizeChunks(ctx, chunks)
	if err != nil {
		return "", err
	}
	final, err := f.reducer.Reduce(ctx, summaries)
	if err != nil {
		return "", err
	}

	// The single storage write happens only after every chunk succeeded;
	// a failed invocation leaves no partial artifact.
	summaryObject := SummaryObjectName(doc.Object)
	if err := f.store.WriteObject(ctx, doc.Bucket, summaryObject, final); err != nil {
		return "", fmt.Errorf("failed to write summary object: %w", err)
	}

	if f.launcher != nil {
		argument := map[string]any{"bucket": doc.Bucket, "summaryObject": summaryObject}
		if err := f.launcher.Launch(ctx, argument); err != nil {
			logCtx.Error("Failed to trigger downstream workflow.", "error", err)
		}
	}
	return summaryObject, nil
}

// summarizeChunks fans the chunks out under a bounded errgroup. Results
// land in a slice keyed by chunk index, so completion order can never
// reorder the output.
func (f *SummaryFunction) summarizeChunks(ctx context.Context, chunks []models.TextChunk) ([]models.ChunkSummary, error) {
	summaries := make([]models.ChunkSummary, len(chunks))
	eg, gctx := errgroup.WithContext(ctx)
	limit := f.config.SummaryConcurrency
	if limit <= 0 {
		limit = 1
	}
	eg.SetLimit(limit)

	for _, chunk := range chunks {
		eg.Go(func() error {
			summary, err := f.summarizer.SummarizeChunk(gctx, chunk)
			if err != nil {
				return err
			}
			summaries[chunk.Index] = summary
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// validatePDF downloads the PDF and checks it parses before any OCR quota
// is spent. Corrupt uploads fail here with the cause attached.
func (f *SummaryFunction) validatePDF(ctx context.Context, doc models.DocumentReference) (int, error) {
	data, err := f.store.ReadObject(ctx, doc.Bucket, doc.Object)
	if err != nil {
		return 0, fmt.Errorf("%w: read gs://%s/%s: %v", ErrExtractionFailed, doc.Bucket, doc.Object, err)
	}
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	pageCount, err := api.PageCount(bytes.NewReader(data), cfg)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid PDF gs://%s/%s: %v", ErrExtractionFailed, doc.Bucket, doc.Object, err)
	}
	return pageCount, nil
}

func (f *SummaryFunction) beginRecord(ctx context.Context, logCtx *slog.Logger, doc models.DocumentReference) string {
	if f.recorder == nil {
		return ""
	}
	id, err := f.recorder.Begin(ctx, doc)
	if err != nil {
		logCtx.Error("Failed to create invocation record. Continuing without audit trail.", "error", err)
		return ""
	}
	return id
}

func (f *SummaryFunction) updateRecord(ctx context.Context, logCtx *slog.Logger, id string, fields map[string]any) {
	if f.recorder == nil || id == "" {
		return
	}
	if err := f.recorder.Update(ctx, id, fields); err != nil {
		logCtx.Error("Failed to update invocation record.", "recordId", id, "error", err)
	}
}
