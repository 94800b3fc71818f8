package models

// These structs define the payloads crossing the function boundary: the
// GCS trigger event coming in and the outcome reported back.

// GCSEvent is the storage object notification carried by the CloudEvent
// that triggers the function.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// Outcome is the externally observable result of one invocation: an
// HTTP-style status code plus a human-readable message. 200 covers both
// success and the idempotent skip, 400 malformed or unsupported input,
// 500 processing failure.
type Outcome struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Document returns the reference the event points at.
func (e GCSEvent) Document() DocumentReference {
	return DocumentReference{Bucket: e.Bucket, Object: e.Name}
}
