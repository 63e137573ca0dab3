package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/cmd"
	"github.com/dukex/flowgate/pkg/llm"
	"github.com/dukex/flowgate/pkg/log"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/services"
	json "github.com/goccy/go-json"
	cli "github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "flowgate",
		Usage:                 "Operate workflow runs and approvals",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (file://, postgres://, badger://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the run lock (in-memory lock when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing node plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.DurationFlag{
				Name:    "tool-timeout",
				Usage:   "Default timeout of a tool invocation",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("TOOL_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "graphs",
				Aliases: []string{"g"},
				Usage:   "Manage workflow graphs",
				Commands: []*cli.Command{
					{
						Name:      "import",
						Usage:     "Validate and store a graph from a JSON file",
						ArgsUsage: "<file>",
						Action:    withEnv(importGraph),
					},
					{
						Name:      "show",
						Usage:     "Print a stored graph",
						ArgsUsage: "<workflow-id>",
						Action:    withEnv(showGraph),
					},
				},
			},
			{
				Name:    "runs",
				Aliases: []string{"r"},
				Usage:   "Start and drive runs",
				Commands: []*cli.Command{
					{
						Name:      "start",
						Usage:     "Start a run of a workflow",
						ArgsUsage: "<workflow-id>",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "input",
								Usage: "Run input as JSON",
							},
							&cli.BoolFlag{
								Name:  "advance",
								Usage: "Step the run until it pauses or ends",
							},
						},
						Action: withEnv(startRun),
					},
					{
						Name:      "step",
						Usage:     "Execute the node under the run cursor",
						ArgsUsage: "<execution-id>",
						Action:    withEnv(stepRun),
					},
					{
						Name:      "advance",
						Usage:     "Step the run until it pauses or ends",
						ArgsUsage: "<execution-id>",
						Action:    withEnv(advanceRun),
					},
					{
						Name:      "status",
						Usage:     "Print the run record",
						ArgsUsage: "<execution-id>",
						Action:    withEnv(runStatus),
					},
					{
						Name:      "cancel",
						Usage:     "Cancel the run",
						ArgsUsage: "<execution-id>",
						Action:    withEnv(cancelRun),
					},
				},
			},
			{
				Name:    "approvals",
				Aliases: []string{"a"},
				Usage:   "Inspect and decide approvals",
				Commands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "Print an approval record",
						ArgsUsage: "<approval-id>",
						Action:    withEnv(showApproval),
					},
					{
						Name:      "approve",
						Usage:     "Approve and resume the paused run",
						ArgsUsage: "<approval-id>",
						Flags:     decisionFlags(),
						Action:    withEnv(decide(models.ApprovalStatusApproved)),
					},
					{
						Name:      "reject",
						Usage:     "Reject and fail the paused run",
						ArgsUsage: "<approval-id>",
						Flags:     decisionFlags(),
						Action:    withEnv(decide(models.ApprovalStatusRejected)),
					},
				},
			},
		},
	}
}

func decisionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "by",
			Usage:   "Who decided",
			Sources: cli.EnvVars("USER"),
		},
		&cli.StringFlag{
			Name:  "comment",
			Usage: "Decision comment",
		},
	}
}

// env holds the services of one command invocation.
type env struct {
	out       io.Writer
	graphs    *services.Graphs
	runs      *services.Runs
	approvals *services.Approvals
}

func (e *env) print(value any) error {
	encoder := json.NewEncoder(e.out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

type action func(ctx context.Context, command *cli.Command, e *env) error

// withEnv opens the configured collaborators around a command action.
func withEnv(run action) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		root := command.Root()

		log.Setup(root.String("log-level"))
		logger := log.WithModule("flowgate-cli")

		resolver := llm.NewResolver()
		resources := cmd.NewResources(logger, resolver, root.Duration("tool-timeout"))
		registry := cmd.NewRegistry(ctx, logger, resources, root.String("plugins-path"))

		persistence := cmd.NewPersistence(ctx, logger, root.String("database-url"))
		defer closeWith(ctx, logger, "persistence", func() error { return persistence.Close(ctx) })

		eventBus := cmd.NewEventBus(root.String("event-bus"), root.String("kafka-brokers"), "flowgate-cli", logger)
		defer closeWith(ctx, logger, "event bus", eventBus.Close)

		locker := cmd.NewLocker(root.String("redis-url"), 5*time.Minute, logger)
		core := cmd.NewCore(logger, persistence, registry, resolver, locker, eventBus, nil)

		out := root.Writer
		if out == nil {
			out = os.Stdout
		}

		return run(ctx, command, &env{
			out:       out,
			graphs:    services.NewGraphs(persistence),
			runs:      services.NewRuns(core.Machine, core.Gate, logger),
			approvals: services.NewApprovals(core.Gate),
		})
	}
}

func closeWith(ctx context.Context, logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.ErrorContext(ctx, "Failed to close "+name, "error", err)
	}
}

func requireArg(command *cli.Command, name string) (string, error) {
	value := command.Args().First()
	if value == "" {
		return "", fmt.Errorf("missing %s argument", name)
	}

	return value, nil
}

func importGraph(ctx context.Context, command *cli.Command, e *env) error {
	path, err := requireArg(command, "file")
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read graph: %w", err)
	}

	var graph models.Graph
	if err := json.Unmarshal(raw, &graph); err != nil {
		return fmt.Errorf("failed to decode graph: %w", err)
	}

	if graph.ID == "" {
		return errors.New("graph id is required")
	}

	saved, err := e.graphs.Save(ctx, graph.ID, &graph)
	if err != nil {
		return err
	}

	return e.print(saved)
}

func showGraph(ctx context.Context, command *cli.Command, e *env) error {
	id, err := requireArg(command, "workflow-id")
	if err != nil {
		return err
	}

	graph, err := e.graphs.Get(ctx, id)
	if err != nil {
		return err
	}

	return e.print(graph)
}

func startRun(ctx context.Context, command *cli.Command, e *env) error {
	workflowID, err := requireArg(command, "workflow-id")
	if err != nil {
		return err
	}

	var input any

	if raw := command.String("input"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return fmt.Errorf("invalid --input: %w", err)
		}
	}

	run, err := e.runs.Start(ctx, services.StartRunRequest{
		WorkflowID: workflowID,
		Input:      input,
		Advance:    command.Bool("advance"),
	})
	if err != nil {
		return err
	}

	return e.print(run)
}

func stepRun(ctx context.Context, command *cli.Command, e *env) error {
	id, err := requireArg(command, "execution-id")
	if err != nil {
		return err
	}

	result, err := e.runs.Step(ctx, id)
	if err != nil {
		return err
	}

	return e.print(result)
}

func advanceRun(ctx context.Context, command *cli.Command, e *env) error {
	id, err := requireArg(command, "execution-id")
	if err != nil {
		return err
	}

	result, err := e.runs.Advance(ctx, id)
	if err != nil {
		return err
	}

	return e.print(result)
}

func runStatus(ctx context.Context, command *cli.Command, e *env) error {
	id, err := requireArg(command, "execution-id")
	if err != nil {
		return err
	}

	run, err := e.runs.Get(ctx, id)
	if err != nil {
		return err
	}

	return e.print(run)
}

func cancelRun(ctx context.Context, command *cli.Command, e *env) error {
	id, err := requireArg(command, "execution-id")
	if err != nil {
		return err
	}

	status, err := e.runs.Cancel(ctx, id)
	if err != nil {
		return err
	}

	return e.print(map[string]any{"execution_id": id, "status": status})
}

func showApproval(ctx context.Context, command *cli.Command, e *env) error {
	id, err := requireArg(command, "approval-id")
	if err != nil {
		return err
	}

	record, err := e.approvals.Get(ctx, id)
	if err != nil {
		return err
	}

	return e.print(record)
}

func decide(status models.ApprovalStatus) action {
	return func(ctx context.Context, command *cli.Command, e *env) error {
		id, err := requireArg(command, "approval-id")
		if err != nil {
			return err
		}

		result, err := e.runs.Decide(ctx, id, approval.Decision{
			Status:    status,
			DecidedBy: command.String("by"),
			Comment:   command.String("comment"),
		})
		if err != nil {
			if result != nil {
				_ = e.print(result)
			}

			return err
		}

		return e.print(result)
	}
}
