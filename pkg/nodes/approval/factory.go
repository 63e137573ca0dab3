package approval

import (
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
)

// ApprovalExecutorFactory creates ApprovalExecutor instances.
type ApprovalExecutorFactory struct{}

// NewApprovalExecutorFactory creates a new approval executor factory.
func NewApprovalExecutorFactory() protocol.ExecutorFactory {
	return &ApprovalExecutorFactory{}
}

// Create creates a new ApprovalExecutor instance.
func (f *ApprovalExecutorFactory) Create(resources protocol.Resources) (protocol.Executor, error) {
	return NewApprovalExecutor(), nil
}

// Kind returns the node kind.
func (f *ApprovalExecutorFactory) Kind() models.NodeKind {
	return models.NodeKindApproval
}

// Name returns the factory name.
func (f *ApprovalExecutorFactory) Name() string {
	return "Approval"
}

// Description returns the factory description.
func (f *ApprovalExecutorFactory) Description() string {
	return "Pauses the run until a human approves or rejects it"
}

// Schema returns the JSON schema for approval node data.
func (f *ApprovalExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message shown to the approver. Supports templating",
				"examples": []string{
					"Refund of {{.variables.lastOutput.amount}} for {{.variables.input.customer}}?",
				},
			},
			"approval_id": map[string]any{
				"type":        "string",
				"description": "Approval id template. Defaults to <execution id>:<node id>",
			},
			"user_id": map[string]any{
				"type":        "string",
				"description": "Approver the request is addressed to. Supports templating",
			},
		},
		"required": []string{"message"},
	}
}
