package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// FirestoreRecorder keeps one audit document per invocation. It is
// strictly best-effort observability: the pipeline never reads records
// back and carries no state between invocations.
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreRecorder(ctx context.Context, projectID, collection string) (*FirestoreRecorder, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore recorder")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreRecorder{client: client, collection: collection}, nil
}

// Begin creates the invocation record and returns its document ID.
func (r *FirestoreRecorder) Begin(ctx context.Context, doc models.DocumentReference) (string, error) {
	record := models.InvocationRecord{
		Bucket:    doc.Bucket,
		Object:    doc.Object,
		Status:    "STARTED",
		CreatedAt: time.Now(),
	}
	ref, _, err := r.client.Collection(r.collection).Add(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to create invocation record: %w", err)
	}
	return ref.ID, nil
}

// Update applies field updates to an existing invocation record.
func (r *FirestoreRecorder) Update(ctx context.Context, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	_, err := r.client.Collection(r.collection).Doc(id).Update(ctx, updates)
	return err
}
