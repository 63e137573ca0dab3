package registry

import (
	"github.com/dukex/flowgate/pkg/nodes/approval"
	"github.com/dukex/flowgate/pkg/nodes/extraction"
	"github.com/dukex/flowgate/pkg/nodes/log"
	"github.com/dukex/flowgate/pkg/nodes/tool"
	"github.com/dukex/flowgate/pkg/nodes/transform"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	r.RegisterNode(extraction.NewExtractionExecutorFactory())
	r.RegisterNode(approval.NewApprovalExecutorFactory())
	r.RegisterNode(tool.NewToolExecutorFactory())
	r.RegisterNode(transform.NewTransformExecutorFactory())
	r.RegisterNode(log.NewLogExecutorFactory())
}
