package models

import "time"

// DocumentReference identifies the uploaded document to process.
// It is built from the trigger event and never mutated afterwards.
type DocumentReference struct {
	Bucket string
	Object string
}

// JobStatus is the status the OCR service reports for an async job.
type JobStatus string

const (
	JobInProgress JobStatus = "IN_PROGRESS"
	JobSucceeded  JobStatus = "SUCCEEDED"
	JobFailed     JobStatus = "FAILED"
)

// BlockType classifies an OCR block. Only line blocks contribute text.
type BlockType string

const (
	BlockLine BlockType = "LINE"
	BlockWord BlockType = "WORD"
)

// Block is one typed unit of OCR output.
type Block struct {
	Type BlockType
	Text string
}

// Page is one page of async OCR results. An empty NextCursor means the
// last page has been read.
type Page struct {
	Status     JobStatus
	Blocks     []Block
	NextCursor string
}

// ExtractionJob tracks an in-flight async OCR request across polls.
type ExtractionJob struct {
	ID     string
	Status JobStatus
	Blocks []Block
	Cursor string
}

// TextChunk is a contiguous slice of the extracted text. Index is the
// 0-based position of the chunk in the document; Start and End are the
// rune range it covers.
type TextChunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// ChunkSummary is the model's summary of one chunk. Index ties it back to
// the source chunk so summaries can be reassembled in document order.
type ChunkSummary struct {
	Index int
	Text  string
}

// InvocationRecord is the Firestore audit document for one pipeline run.
// It is written best-effort and the pipeline never reads it back.
type InvocationRecord struct {
	Bucket        string    `firestore:"bucket,omitempty"`
	Object        string    `firestore:"object,omitempty"`
	Status        string    `firestore:"status,omitempty"`
	ErrorDetails  string    `firestore:"errorDetails,omitempty"`
	PageCount     int       `firestore:"pageCount,omitempty"`
	ChunkCount    int       `firestore:"chunkCount,omitempty"`
	SummaryObject string    `firestore:"summaryObject,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt,omitempty"`
}
