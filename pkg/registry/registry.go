// Package registry maps node kinds to executor factories.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
)

// ErrNodeKindNotRegistered is returned for node kinds without a factory.
var ErrNodeKindNotRegistered = errors.New("node kind not registered")

// NodeDataProvider is implemented by plugin factories that bring their own node payload.
type NodeDataProvider interface {
	NewData() models.NodeData
}

type Registry struct {
	logger    *slog.Logger
	resources protocol.Resources

	mu        sync.RWMutex
	factories map[models.NodeKind]protocol.ExecutorFactory
	executors map[models.NodeKind]protocol.Executor
}

func NewRegistry(log *slog.Logger, resources protocol.Resources) *Registry {
	if resources.Logger == nil {
		resources.Logger = log
	}

	return &Registry{
		logger:    log,
		resources: resources,
		factories: make(map[models.NodeKind]protocol.ExecutorFactory),
		executors: make(map[models.NodeKind]protocol.Executor),
	}
}

// RegisterNode adds or replaces the factory for its node kind.
func (r *Registry) RegisterNode(factory protocol.ExecutorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := factory.Kind()
	r.factories[kind] = factory
	delete(r.executors, kind)

	if provider, ok := factory.(NodeDataProvider); ok {
		models.RegisterNodeKind(kind, provider.NewData)
	}
}

// Executor returns the executor for kind, creating it on first use.
func (r *Registry) Executor(kind models.NodeKind) (protocol.Executor, error) {
	r.mu.RLock()
	executor, ok := r.executors[kind]
	r.mu.RUnlock()

	if ok {
		return executor, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if executor, ok := r.executors[kind]; ok {
		return executor, nil
	}

	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNodeKindNotRegistered, kind)
	}

	executor, err := factory.Create(r.resources)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s executor: %w", kind, err)
	}

	r.executors[kind] = executor

	return executor, nil
}

// GetAvailableNodes returns all registered factories ordered by kind.
func (r *Registry) GetAvailableNodes() []protocol.ExecutorFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.ExecutorFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b protocol.ExecutorFactory) int {
		return strings.Compare(string(a.Kind()), string(b.Kind()))
	})

	return factories
}

// IsNodeRegistered checks if a node kind is registered.
func (r *Registry) IsNodeRegistered(kind models.NodeKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[kind]

	return exists
}

// LoadNodePlugins opens every .so under <pluginsPath>/nodes and registers its exported Node factory.
func (r *Registry) LoadNodePlugins(pluginsPath string) ([]protocol.ExecutorFactory, error) {
	factories, err := loadPlugin[protocol.ExecutorFactory](r.logger, pluginsPath, "Node")
	if err != nil {
		return nil, err
	}

	for _, factory := range factories {
		r.RegisterNode(factory)
	}

	return factories, nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"

	if _, err := os.Stat(rootPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p, err)
		}

		castV, ok := v.(T)
		if !ok {
			// Exported variables are looked up as pointers.
			ptr, isPtr := v.(*T)
			if !isPtr {
				return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
			}

			castV = *ptr
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded node plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
