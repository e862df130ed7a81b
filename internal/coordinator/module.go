package coordinator

import (
	"context"

	"github.com/holoncore/travel-orchestrator/holon"
	"github.com/holoncore/travel-orchestrator/internal/eventbus"
	"github.com/holoncore/travel-orchestrator/internal/policy"
	"github.com/holoncore/travel-orchestrator/internal/queue"
)

// ServiceName is the key other components use to look up the Coordinator.
const ServiceName = "coordinator"

// SearchRequestsQueue is the queue the admission-time depth check reads
// from, since search-requests is the built-in entry point for new sagas.
const SearchRequestsQueue = "search-requests"

// Module wires a Coordinator into the application as a holon.Module.
type Module struct {
	Coordinator *Coordinator
	cfg         Config
}

func NewModule(defaults Config) *Module {
	return &Module{cfg: defaults}
}

func (m *Module) Name() string { return ServiceName }

func (m *Module) Dependencies() []string {
	return []string{eventbus.ServiceName, policy.ServiceName, queue.ServiceName}
}

func (m *Module) RegisterConfig(app *holon.Application) error {
	return app.Config.DecodeSection(ServiceName, &m.cfg)
}

func (m *Module) Init(app *holon.Application) error {
	bus, err := holon.Lookup[eventbus.Bus](app.Services, eventbus.ServiceName)
	if err != nil {
		return err
	}
	po, err := holon.Lookup[*policy.Policy](app.Services, policy.ServiceName)
	if err != nil {
		return err
	}
	qm, err := holon.Lookup[*queue.Manager](app.Services, queue.ServiceName)
	if err != nil {
		return err
	}

	m.Coordinator = New(m.cfg, app.Log, po, bus, func() int {
		depth, err := qm.Depth(SearchRequestsQueue)
		if err != nil {
			return 0
		}
		return depth
	})
	return app.Services.Register(ServiceName, m.Coordinator)
}

func (m *Module) Start(ctx context.Context) error { return m.Coordinator.Start(ctx) }
func (m *Module) Stop(ctx context.Context) error  { return m.Coordinator.Stop(ctx) }
