package workflow

import (
	"context"

	"github.com/holoncore/travel-orchestrator/holon"
	"github.com/holoncore/travel-orchestrator/internal/eventbus"
	"github.com/holoncore/travel-orchestrator/internal/policy"
	"github.com/holoncore/travel-orchestrator/internal/queue"
)

// ServiceName is the key other components use to look up the Orchestrator.
const ServiceName = "workflow"

// Module wires an Orchestrator into the application as a holon.Module,
// registering the built-in CREATE and REVISE templates.
type Module struct {
	Orchestrator *Orchestrator
}

func NewModule() *Module { return &Module{} }

func (m *Module) Name() string { return ServiceName }

func (m *Module) Dependencies() []string {
	return []string{eventbus.ServiceName, queue.ServiceName, policy.ServiceName}
}

func (m *Module) Init(app *holon.Application) error {
	bus, err := holon.Lookup[eventbus.Bus](app.Services, eventbus.ServiceName)
	if err != nil {
		return err
	}
	queues, err := holon.Lookup[*queue.Manager](app.Services, queue.ServiceName)
	if err != nil {
		return err
	}
	po, err := holon.Lookup[*policy.Policy](app.Services, policy.ServiceName)
	if err != nil {
		return err
	}

	m.Orchestrator = NewOrchestrator(app.Log, app.Clock, bus, queues, po)
	m.Orchestrator.RegisterTemplate(CreateTemplate())
	m.Orchestrator.RegisterTemplate(ReviseTemplate())
	return app.Services.Register(ServiceName, m.Orchestrator)
}

func (m *Module) Start(ctx context.Context) error { return m.Orchestrator.Start(ctx) }
func (m *Module) Stop(ctx context.Context) error  { return m.Orchestrator.Stop(ctx) }
