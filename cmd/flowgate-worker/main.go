package main

import (
	"context"
	"os"
	"time"

	"github.com/dukex/flowgate/pkg/cmd"
	"github.com/dukex/flowgate/pkg/llm"
	"github.com/dukex/flowgate/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "flowgate-worker",
		EnableShellCompletion: true,
		Usage:                 "Advance and resume runs from the event bus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file://, postgres://, badger://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
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
			&cli.DurationFlag{
				Name:    "lock-ttl",
				Usage:   "Expiry of a run lock held by a crashed process",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("LOCK_TTL"),
			},
			&cli.DurationFlag{
				Name:    "tool-timeout",
				Usage:   "Default timeout of a tool invocation",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("TOOL_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing node plugins",
				Value:    "./plugins",
				Required: false,
				Sources:  cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowgate-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Flowgate Worker")

			tracer, shutdown := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "flowgate-worker", logger)
			defer func() {
				if err := shutdown(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
				}
			}()

			resolver := llm.NewResolver()
			resources := cmd.NewResources(logger, resolver, command.Duration("tool-timeout"))
			registry := cmd.NewRegistry(ctx, logger, resources, command.String("plugins-path"))

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "flowgate-worker", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			locker := cmd.NewLocker(command.String("redis-url"), command.Duration("lock-ttl"), logger)
			core := cmd.NewCore(logger, persistence, registry, resolver, locker, eventBus, tracer)

			worker := NewWorkerManager(
				workerID,
				core.Machine,
				core.Gate,
				eventBus,
				logger,
			)

			err := worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
