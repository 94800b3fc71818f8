package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/Lllllllleong/docsummaryflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	summaryInstance *services.SummaryFunction
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework routes the GCS
	// object-finalize event here.
	functions.CloudEvent("SummarizeDocument", summarizeDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// summarizeDocument is the Cloud Function entry point.
func summarizeDocument(ctx context.Context, e cloudevents.Event) error {
	// One-time initialization of all service clients.
	once.Do(func() {
		summaryInstance, initErr = services.NewSummaryFunction(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	outcome, err := summaryInstance.Process(ctx, gcsEvent)
	slog.Info("Invocation finished.", "statusCode", outcome.StatusCode, "message", outcome.Message)

	// Only processing failures are returned, so the platform retries 500s
	// but never re-runs malformed or unsupported input.
	if outcome.StatusCode >= http.StatusInternalServerError {
		return err
	}
	return nil
}
