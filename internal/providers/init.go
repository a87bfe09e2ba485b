package providers

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"cencori/config"
	"cencori/internal/core"
)

// InitResult holds the initialized provider infrastructure.
type InitResult struct {
	Router  *Router
	Factory *ProviderFactory
	// Configs are the resolved entries, keyed by provider name.
	Configs map[string]ProviderConfig
}

// Init resolves the configured providers, builds each one with factory and
// returns the immutable Router. Providers that fail to build are logged and
// skipped; Init fails only when none could be built.
func Init(ctx context.Context, cfg *config.Config, factory *ProviderFactory) (*InitResult, error) {
	if factory == nil {
		return nil, errors.New("provider factory is required")
	}

	resolved := ResolveProviders(cfg.Providers, cfg.Resilience)
	router, err := buildRouter(ctx, resolved, factory)
	if err != nil {
		return nil, err
	}

	return &InitResult{
		Router:  router,
		Factory: factory,
		Configs: resolved,
	}, nil
}

// buildRouter creates and registers all configured providers.
func buildRouter(ctx context.Context, resolved map[string]ProviderConfig, factory *ProviderFactory) (*Router, error) {
	// Sort provider names for deterministic initialization order
	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)

	builder := NewRouterBuilder()
	var initialized int
	for _, name := range names {
		pCfg := resolved[name]
		p, err := factory.Create(pCfg)
		if err != nil {
			slog.ErrorContext(ctx, "failed to initialize provider",
				"name", name,
				"type", pCfg.Type,
				"error", err)
			continue
		}
		builder.Register(name, p)
		initialized++
		slog.InfoContext(ctx, "provider initialized", "name", name, "type", pCfg.Type)
	}

	if initialized == 0 {
		return nil, core.NewConfigurationError("", "no providers were successfully initialized")
	}
	return builder.Build(), nil
}
