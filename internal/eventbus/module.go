package eventbus

import (
	"context"

	"github.com/holoncore/travel-orchestrator/holon"
)

// Module wires a MemoryBus into the application as a holon.Module, exposing
// it to other components through the service registry under ServiceName.
type Module struct {
	Bus *MemoryBus

	cfg Config
}

// ServiceName is the key every other component uses to look up the Bus.
const ServiceName = "eventbus"

// NewModule constructs an eventbus Module with the given defaults, which
// RegisterConfig may override from the application's config file.
func NewModule(defaults Config) *Module {
	return &Module{cfg: defaults}
}

func (m *Module) Name() string { return ServiceName }

func (m *Module) RegisterConfig(app *holon.Application) error {
	return app.Config.DecodeSection(ServiceName, &m.cfg)
}

func (m *Module) Init(app *holon.Application) error {
	m.Bus = NewMemoryBus(m.cfg, app.Log)
	return app.Services.Register(ServiceName, Bus(m.Bus))
}

func (m *Module) Start(ctx context.Context) error { return m.Bus.Start(ctx) }
func (m *Module) Stop(ctx context.Context) error  { return m.Bus.Stop(ctx) }
