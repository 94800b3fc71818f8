package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowLauncher hands a finished summary off to a Cloud Workflows
// execution for any downstream processing.
type WorkflowLauncher struct {
	client *executions.Client
	parent string
}

func NewWorkflowLauncher(ctx context.Context, projectID, location, workflowID string) (*WorkflowLauncher, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowLauncher{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}, nil
}

// Launch starts one workflow execution with the given JSON argument.
func (l *WorkflowLauncher) Launch(ctx context.Context, argument map[string]any) error {
	payload, err := json.Marshal(argument)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow argument: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: l.parent,
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	if _, err := l.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}
