// Package holon provides the ambient substrate shared by the five
// orchestration components (event bus, state store, queue manager, policy,
// workflow orchestrator): a small module/lifecycle model, a service
// registry, structured logging, CloudEvents-convertible wire events, health
// reporting, and a uniform error taxonomy.
//
// Holon deliberately avoids a base-class hierarchy. Each component composes
// the capability interfaces it needs (Configurable, DependencyAware,
// ServiceAware, Startable, Stoppable) rather than inheriting shared behavior
// from a common type.
package holon

import "context"

// Module is a registrable component of the application. Each of EB, SM, QM,
// PO, WO, and the Coordinator implements Module plus whichever optional
// capability interfaces below it needs.
type Module interface {
	// Name returns the unique identifier for this module, e.g. "eventbus".
	Name() string
}

// Configurable is implemented by modules that load a typed configuration
// section from the application's config provider before Init runs.
type Configurable interface {
	RegisterConfig(app *Application) error
}

// DependencyAware declares the names of other modules this module requires
// to be initialized first. The application topologically sorts modules by
// this graph and fails fast on cycles.
type DependencyAware interface {
	Dependencies() []string
}

// ServiceAware is implemented by modules that provide services to, or
// consume services from, the registry. Init runs after RegisterConfig and
// after every dependency's Init, so looking up a dependency's service here
// is safe.
type ServiceAware interface {
	Init(app *Application) error
}

// Startable is implemented by modules with background work to start —
// dispatch loops, periodic sweepers, breaker monitors.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable is implemented by modules that must release resources or
// cancel in-flight work on shutdown.
type Stoppable interface {
	Stop(ctx context.Context) error
}
