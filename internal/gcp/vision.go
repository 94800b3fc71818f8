package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	vision "google.golang.org/api/vision/v1"
)

const documentTextDetection = "DOCUMENT_TEXT_DETECTION"

// VisionOCR adapts the Cloud Vision API to the extractor's OCR
// capability. Synchronous image annotation maps to the sync contract;
// asyncBatchAnnotate plus operation polling maps to the job contract,
// with the JSON result shards Vision writes to GCS acting as result
// pages and the shard index as the pagination cursor.
type VisionOCR struct {
	service       *vision.Service
	storageClient *storage.Client
	outputBucket  string
	outputPrefix  string
}

func NewVisionOCR(ctx context.Context, storageClient *storage.Client, outputBucket, outputPrefix string) (*VisionOCR, error) {
	if outputBucket == "" {
		return nil, fmt.Errorf("NewVisionOCR: outputBucket cannot be empty")
	}
	service, err := vision.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("vision.NewService: %w", err)
	}
	return &VisionOCR{
		service:       service,
		storageClient: storageClient,
		outputBucket:  outputBucket,
		outputPrefix:  strings.Trim(outputPrefix, "/"),
	}, nil
}

// DetectText runs one synchronous annotation call against a single-page
// raster image and returns its typed blocks.
func (o *VisionOCR) DetectText(ctx context.Context, doc models.DocumentReference) ([]models.Block, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Source: &vision.ImageSource{GcsImageUri: gcsURI(doc)}},
			Features: []*vision.Feature{{Type: documentTextDetection}},
		}},
	}
	resp, err := o.service.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("images.annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("images.annotate returned no responses")
	}
	annotation := resp.Responses[0]
	if annotation.Error != nil {
		return nil, fmt.Errorf("images.annotate: %s", annotation.Error.Message)
	}
	return blocksFromAnnotation(annotation.FullTextAnnotation), nil
}

// StartTextDetection submits an async annotation job for a paginated
// document. The returned job ID carries both the operation name and the
// output prefix the result shards will land under, so later polls are
// self-contained.
func (o *VisionOCR) StartTextDetection(ctx context.Context, doc models.DocumentReference) (string, error) {
	prefix := fmt.Sprintf("%s/%s/", o.outputPrefix, uuid.NewString())
	req := &vision.AsyncBatchAnnotateFilesRequest{
		Requests: []*vision.AsyncAnnotateFileRequest{{
			InputConfig: &vision.InputConfig{
				GcsSource: &vision.GcsSource{Uri: gcsURI(doc)},
				MimeType:  mimeTypeFor(doc.Object),
			},
			Features: []*vision.Feature{{Type: documentTextDetection}},
			OutputConfig: &vision.OutputConfig{
				GcsDestination: &vision.GcsDestination{Uri: fmt.Sprintf("gs://%s/%s", o.outputBucket, prefix)},
				BatchSize:      20,
			},
		}},
	}
	op, err := o.service.Files.AsyncBatchAnnotate(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("files.asyncBatchAnnotate: %w", err)
	}
	return op.Name + "|" + prefix, nil
}

// GetTextDetection reports the job's status and, once it has succeeded,
// returns one result page per call. The cursor is the index of the next
// shard to read; an empty next cursor means all shards were consumed.
func (o *VisionOCR) GetTextDetection(ctx context.Context, jobID, cursor string) (models.Page, error) {
	opName, prefix, ok := strings.Cut(jobID, "|")
	if !ok {
		return models.Page{}, fmt.Errorf("malformed job id %q", jobID)
	}

	op, err := o.service.Operations.Get(opName).Context(ctx).Do()
	if err != nil {
		return models.Page{}, fmt.Errorf("operations.get %s: %w", opName, err)
	}
	if !op.Done {
		return models.Page{Status: models.JobInProgress}, nil
	}
	if op.Error != nil {
		return models.Page{Status: models.JobFailed}, nil
	}

	shards, err := o.listShards(ctx, prefix)
	if err != nil {
		return models.Page{}, err
	}
	index := 0
	if cursor != "" {
		index, err = strconv.Atoi(cursor)
		if err != nil || index < 0 || index >= len(shards) {
			return models.Page{}, fmt.Errorf("invalid cursor %q for job %s", cursor, opName)
		}
	}
	if len(shards) == 0 {
		return models.Page{Status: models.JobSucceeded}, nil
	}

	blocks, err := o.readShard(ctx, shards[index])
	if err != nil {
		return models.Page{}, err
	}
	next := ""
	if index+1 < len(shards) {
		next = strconv.Itoa(index + 1)
	}
	return models.Page{Status: models.JobSucceeded, Blocks: blocks, NextCursor: next}, nil
}

// listShards returns the sorted names of the JSON result shards the job
// wrote under its output prefix.
func (o *VisionOCR) listShards(ctx context.Context, prefix string) ([]string, error) {
	query := &storage.Query{Prefix: prefix}
	it := o.storageClient.Bucket(o.outputBucket).Objects(ctx, query)

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list result shards under %s: %w", prefix, err)
		}
		if strings.HasSuffix(attrs.Name, ".json") {
			names = append(names, attrs.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// readShard parses one result shard into typed blocks.
func (o *VisionOCR) readShard(ctx context.Context, object string) ([]models.Block, error) {
	reader, err := o.storageClient.Bucket(o.outputBucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open result shard %s: %w", object, err)
	}
	defer reader.Close()

	var fileResp vision.AnnotateFileResponse
	if err := json.NewDecoder(reader).Decode(&fileResp); err != nil {
		return nil, fmt.Errorf("failed to decode result shard %s: %w", object, err)
	}

	var blocks []models.Block
	for _, resp := range fileResp.Responses {
		if resp == nil {
			continue
		}
		blocks = append(blocks, blocksFromAnnotation(resp.FullTextAnnotation)...)
	}
	return blocks, nil
}

// blocksFromAnnotation flattens a full-text annotation into typed blocks.
// Each paragraph becomes one line block; words are also emitted so
// callers can filter by type.
func blocksFromAnnotation(annotation *vision.TextAnnotation) []models.Block {
	if annotation == nil {
		return nil
	}
	var blocks []models.Block
	for _, page := range annotation.Pages {
		for _, block := range page.Blocks {
			for _, paragraph := range block.Paragraphs {
				var line strings.Builder
				for _, word := range paragraph.Words {
					var text strings.Builder
					for _, symbol := range word.Symbols {
						text.WriteString(symbol.Text)
					}
					blocks = append(blocks, models.Block{Type: models.BlockWord, Text: text.String()})
					if line.Len() > 0 {
						line.WriteString(" ")
					}
					line.WriteString(text.String())
				}
				if line.Len() > 0 {
					blocks = append(blocks, models.Block{Type: models.BlockLine, Text: line.String()})
				}
			}
		}
	}
	return blocks
}

func gcsURI(doc models.DocumentReference) string {
	return fmt.Sprintf("gs://%s/%s", doc.Bucket, doc.Object)
}

func mimeTypeFor(object string) string {
	if strings.EqualFold(filepath.Ext(object), ".tiff") {
		return "image/tiff"
	}
	return "application/pdf"
}
