package cmd

import (
	"log/slog"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/eventbus"
	"github.com/dukex/flowgate/pkg/llm"
	"github.com/dukex/flowgate/pkg/lock"
	"github.com/dukex/flowgate/pkg/persistence"
	"github.com/dukex/flowgate/pkg/registry"
	"github.com/dukex/flowgate/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// Core is the execution core shared by every binary.
type Core struct {
	Gate    *approval.Gate
	Machine *workflow.Machine
}

// NewCore wires the approval gate and the state machine over the given collaborators.
func NewCore(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	resolver *llm.Resolver,
	locker lock.Locker,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
) *Core {
	gate := approval.NewGate(store.ApprovalRepository(), publisher, logger)

	machine, err := workflow.NewMachine(workflow.Config{
		Persistence: store,
		Executors:   reg,
		Gate:        gate,
		Credentials: llm.NewEnvCredentials(resolver),
		Locker:      locker,
		Publisher:   publisher,
		Tracer:      tracer,
		Logger:      logger,
	})
	if err != nil {
		panic(err)
	}

	return &Core{Gate: gate, Machine: machine}
}
