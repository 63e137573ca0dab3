// Package transform provides the transform node executor.
package transform

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/dukex/flowgate/pkg/template"
)

// TransformExecutor renders assignments into run variables.
type TransformExecutor struct{}

// NewTransformExecutor creates a new transform executor.
func NewTransformExecutor() *TransformExecutor {
	return &TransformExecutor{}
}

// Execute renders every assignment against the same state snapshot.
// Assignments do not see each other's results.
func (e *TransformExecutor) Execute(_ context.Context, request protocol.Request) (*protocol.Result, error) {
	data, ok := request.Node.Data.(*models.TransformData)
	if !ok {
		return nil, protocol.UnexpectedData(request.Node, models.NodeKindTransform)
	}

	if len(data.Assignments) == 0 {
		return nil, errors.New("missing required field 'assignments'")
	}

	scope := request.Scope()
	variables := make(map[string]any, len(data.Assignments))

	for _, name := range slices.Sorted(maps.Keys(data.Assignments)) {
		value, err := template.RenderWithState(data.Assignments[name], scope)
		if err != nil {
			return nil, fmt.Errorf("transformation of '%s' failed: %w", name, err)
		}

		variables[name] = value
	}

	return &protocol.Result{
		Variables: variables,
		Output:    maps.Clone(variables),
	}, nil
}
