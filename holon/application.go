package holon

import (
	"context"
	"fmt"
)

// Application is the explicit CoreContext described in the Design Notes: it
// replaces top-level singletons for config and logging with a value each
// module receives at construction (config loading, a Clock, a Logger, the
// service registry, and the health aggregator).
type Application struct {
	Config   *ConfigProvider
	Clock    Clock
	Log      Logger
	Services *ServiceRegistry
	Health   *HealthAggregator

	modules []Module
	byName  map[string]Module
	started []Module
}

// NewApplication constructs an Application ready to accept module
// registrations. A nil logger defaults to NopLogger; a nil clock defaults
// to RealClock.
func NewApplication(cfg *ConfigProvider, log Logger, clock Clock) *Application {
	if log == nil {
		log = NopLogger{}
	}
	if clock == nil {
		clock = RealClock
	}
	return &Application{
		Config:   cfg,
		Clock:    clock,
		Log:      log,
		Services: NewServiceRegistry(),
		Health:   NewHealthAggregator(),
		byName:   make(map[string]Module),
	}
}

// RegisterModule adds a module to the application. Order of registration is
// irrelevant; Init order is derived from DependencyAware.Dependencies().
func (a *Application) RegisterModule(m Module) error {
	name := m.Name()
	if _, exists := a.byName[name]; exists {
		return NewError(KindInternal, fmt.Sprintf("module %q already registered", name))
	}
	a.byName[name] = m
	a.modules = append(a.modules, m)
	return nil
}

// Init runs RegisterConfig then Init for every module, in dependency order.
// A module that implements HealthReporter is auto-registered with the
// health aggregator.
func (a *Application) Init() error {
	ordered, err := a.dependencyOrder()
	if err != nil {
		return err
	}
	for _, m := range ordered {
		if c, ok := m.(Configurable); ok {
			if err := c.RegisterConfig(a); err != nil {
				return fmt.Errorf("register config %q: %w", m.Name(), err)
			}
		}
	}
	for _, m := range ordered {
		if s, ok := m.(ServiceAware); ok {
			if err := s.Init(a); err != nil {
				return fmt.Errorf("init module %q: %w", m.Name(), err)
			}
		}
		if hr, ok := m.(HealthReporter); ok {
			a.Health.Register(m.Name(), hr)
		}
	}
	a.modules = ordered
	return nil
}

// Start calls Start on every Startable module, in the same order as Init.
// On a failure partway through, modules already started are stopped again
// before the error is returned.
func (a *Application) Start(ctx context.Context) error {
	for _, m := range a.modules {
		s, ok := m.(Startable)
		if !ok {
			continue
		}
		if err := s.Start(ctx); err != nil {
			a.Stop(ctx)
			return fmt.Errorf("start module %q: %w", m.Name(), err)
		}
		a.started = append(a.started, m)
	}
	return nil
}

// Stop calls Stop on every started Stoppable module in reverse start order,
// collecting (not short-circuiting on) individual errors.
func (a *Application) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(a.started) - 1; i >= 0; i-- {
		m := a.started[i]
		s, ok := m.(Stoppable)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop module %q: %w", m.Name(), err)
		}
	}
	a.started = nil
	return firstErr
}

// dependencyOrder topologically sorts registered modules by
// DependencyAware.Dependencies(), failing with KindInternal on a cycle or a
// reference to an unregistered module.
func (a *Application) dependencyOrder() ([]Module, error) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(a.modules))
	ordered := make([]Module, 0, len(a.modules))

	var visit func(m Module) error
	visit = func(m Module) error {
		name := m.Name()
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return NewError(KindInternal, fmt.Sprintf("circular module dependency at %q", name))
		}
		state[name] = visiting
		if da, ok := m.(DependencyAware); ok {
			for _, dep := range da.Dependencies() {
				depModule, ok := a.byName[dep]
				if !ok {
					return NewError(KindInternal, fmt.Sprintf("module %q depends on unregistered module %q", name, dep))
				}
				if err := visit(depModule); err != nil {
					return err
				}
			}
		}
		state[name] = visited
		ordered = append(ordered, m)
		return nil
	}

	for _, m := range a.modules {
		if err := visit(m); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
