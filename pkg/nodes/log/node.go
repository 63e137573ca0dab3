// Package log provides the log node executor.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/dukex/flowgate/pkg/template"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogExecutor renders a message and writes it to the run logger.
type LogExecutor struct {
	logger *slog.Logger
}

// NewLogExecutor creates a new log executor.
func NewLogExecutor(logger *slog.Logger) *LogExecutor {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogExecutor{logger: logger}
}

// Execute performs the logging operation.
func (e *LogExecutor) Execute(ctx context.Context, request protocol.Request) (*protocol.Result, error) {
	data, ok := request.Node.Data.(*models.LogData)
	if !ok {
		return nil, protocol.UnexpectedData(request.Node, models.NodeKindLog)
	}

	levelName := data.Level
	if levelName == "" {
		levelName = "info"
	}

	level, ok := logLevels[levelName]
	if !ok {
		return nil, fmt.Errorf("invalid log level '%s' (must be debug, info, warn, or error)", levelName)
	}

	message, err := template.RenderStringWithState(data.Message, request.Scope())
	if err != nil {
		return nil, fmt.Errorf("failed to render log message template: %w", err)
	}

	request.Logger(e.logger).Log(ctx, level, message)

	return &protocol.Result{
		Output: map[string]any{
			"message": message,
			"level":   levelName,
			"logged":  true,
		},
	}, nil
}
