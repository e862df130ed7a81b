package policy

import (
	"context"

	"github.com/holoncore/travel-orchestrator/holon"
)

// Module wires a Policy into the application as a holon.Module.
type Module struct {
	Policy *Policy
	cfg    Config
}

// NewModule constructs a policy Module with the given defaults, which
// RegisterConfig may override from the application's config file.
func NewModule(defaults Config) *Module {
	return &Module{cfg: defaults}
}

func (m *Module) Name() string { return ServiceName }

func (m *Module) RegisterConfig(app *holon.Application) error {
	return app.Config.DecodeSection(ServiceName, &m.cfg)
}

func (m *Module) Init(app *holon.Application) error {
	m.Policy = New(m.cfg, app.Log)
	return app.Services.Register(ServiceName, m.Policy)
}

func (m *Module) Start(ctx context.Context) error { return m.Policy.Start(ctx) }
func (m *Module) Stop(ctx context.Context) error  { return m.Policy.Stop(ctx) }
