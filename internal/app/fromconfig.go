package app

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/phasemux/internal/catalog"
	"github.com/tjfontaine/phasemux/internal/config"
	"github.com/tjfontaine/phasemux/internal/scope"
)

// MiddlewareFromConfig builds a handler with factory and registers it as cfg
// declares. Params that are a list are spread as the factory's arguments, any
// other value is its only argument, and no params call it without any. A
// disabled declaration registers nothing and does not call the factory.
func (a *App) MiddlewareFromConfig(factory catalog.Factory, cfg config.Middleware) error {
	if !cfg.IsEnabled() {
		return nil
	}
	if cfg.Phase == "" {
		return ErrMissingPhase
	}
	sc, err := scope.From(cfg.Paths)
	if err != nil {
		return err
	}

	var params []any
	switch p := cfg.Params.(type) {
	case nil:
	case []any:
		params = p
	default:
		params = []any{p}
	}
	h, err := factory(params...)
	if err != nil {
		return err
	}
	return a.MiddlewareAt(cfg.Phase, sc, h)
}

// LoadMiddleware merges the configured phases, applies settings, and then
// registers every declared middleware from the catalog, in order.
func (a *App) LoadMiddleware(cfg *config.Config) error {
	if len(cfg.Phases) > 0 {
		if err := a.DefinePhases(cfg.Phases); err != nil {
			return err
		}
	}
	for key, v := range cfg.Settings {
		a.Set(key, v)
	}

	for i, m := range cfg.Middleware {
		if !m.IsEnabled() {
			a.logger.Debug("middleware disabled", slog.String("name", m.Name))
			continue
		}
		factory, err := a.catalog.Lookup(m.Name)
		if err != nil {
			return fmt.Errorf("middleware[%d]: %w", i, err)
		}
		if err := a.MiddlewareFromConfig(factory, m); err != nil {
			return fmt.Errorf("middleware[%d] %s: %w", i, m.Name, err)
		}
		a.logger.Debug("middleware registered",
			slog.String("name", m.Name),
			slog.String("phase", m.Phase),
			slog.Any("paths", m.Paths))
	}
	return nil
}
