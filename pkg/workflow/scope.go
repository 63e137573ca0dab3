package workflow

import (
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/template"
)

func scopeOf(run *models.RunRecord, state models.ExecutionState) template.Scope {
	return template.Scope{
		ExecutionID: run.ExecutionID,
		WorkflowID:  run.WorkflowID,
		State:       state,
	}
}
