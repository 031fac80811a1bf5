// Package appctx carries process-wide CLI state on a context.
package appctx

import (
	"context"

	"github.com/vulntor/conductor/pkg/config"
	"github.com/vulntor/conductor/pkg/plugin"
)

type key string

const (
	configKey   key = "conductor.config.manager"
	registryKey key = "conductor.plugin.registry"
)

// WithConfig stores the shared config manager on context.
func WithConfig(ctx context.Context, manager *config.Manager) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey, manager)
}

// Config retrieves the shared config manager from context.
func Config(ctx context.Context) (*config.Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	mgr, ok := ctx.Value(configKey).(*config.Manager)
	return mgr, ok && mgr != nil
}

// WithRegistry stores a preloaded plugin registry. Commands that find one
// use it instead of reading manifests.
func WithRegistry(ctx context.Context, reg *plugin.Registry) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, registryKey, reg)
}

// Registry retrieves the plugin registry stored by WithRegistry.
func Registry(ctx context.Context) (*plugin.Registry, bool) {
	if ctx == nil {
		return nil, false
	}
	reg, ok := ctx.Value(registryKey).(*plugin.Registry)
	return reg, ok && reg != nil
}
