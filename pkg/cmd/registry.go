// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/flowgate/pkg/llm"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/dukex/flowgate/pkg/registry"
	"github.com/dukex/flowgate/pkg/toolclient"
)

func registerNodePlugins(ctx context.Context, log *slog.Logger, reg *registry.Registry, pluginsPath string) {
	nodePlugins, err := reg.LoadNodePlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range nodePlugins {
		log.InfoContext(ctx, "Registered node plugin", "type", plugin.Kind())
	}
}

// NewResources builds the shared executor dependencies: the model client for every
// supported provider and the tool invocation client.
func NewResources(log *slog.Logger, resolver *llm.Resolver, toolTimeout time.Duration) protocol.Resources {
	return protocol.Resources{
		Models:   llm.NewOpenAIModels(resolver, llm.WithModelsLogger(log)),
		Resolver: resolver,
		Tools: toolclient.New(
			toolclient.WithTimeout(toolTimeout),
			toolclient.WithLogger(log),
		),
		Logger: log,
	}
}

// NewRegistry registers the built-in node executors, then the plugins found under
// pluginsPath. A plugin may replace a built-in kind.
func NewRegistry(ctx context.Context, log *slog.Logger, resources protocol.Resources, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log, resources)

	reg.RegisterDefaultNodes()
	registerNodePlugins(ctx, log, reg, pluginsPath)

	return reg
}
