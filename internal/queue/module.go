package queue

import (
	"context"

	"github.com/holoncore/travel-orchestrator/holon"
)

// ServiceName is the key other components use to look up the Manager.
const ServiceName = "queue"

// QueueSpec pairs a queue's name with its config. Handlers are not part of
// the spec, since they are closures over other components and cannot be
// decoded from config; they are registered with Manager.SetHandler.
type QueueSpec struct {
	Name   string
	Config QueueConfig
}

// Module wires a Manager into the application as a holon.Module. It creates
// the queues enumerated in Specs with no handler; until Manager.SetHandler
// registers one, each dispatched message of such a queue counts as a failed
// attempt.
type Module struct {
	Manager *Manager
	Specs   []QueueSpec
}

// NewModule constructs a queue Module seeded with specs. Each named queue
// still needs its handler registered via Manager.SetHandler; neither the
// coordinator nor the workflow module registers one.
func NewModule(specs []QueueSpec) *Module {
	return &Module{Specs: specs}
}

func (m *Module) Name() string { return ServiceName }

func (m *Module) RegisterConfig(app *holon.Application) error {
	return app.Config.DecodeSection(ServiceName, &m.Specs)
}

func (m *Module) Init(app *holon.Application) error {
	m.Manager = NewManager(app.Log)
	for _, spec := range m.Specs {
		if err := m.Manager.CreateQueue(spec.Name, spec.Config, nil); err != nil {
			return err
		}
	}
	return app.Services.Register(ServiceName, m.Manager)
}

func (m *Module) Start(ctx context.Context) error { return m.Manager.Start(ctx) }
func (m *Module) Stop(ctx context.Context) error  { return m.Manager.Stop(ctx) }

// SetHandler registers/replaces the handler a queue's dispatch loop
// invokes. Safe to call after Init, before or after Start.
func (m *Manager) SetHandler(queueName string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[queueName]; !ok {
		return holon.NewError(holon.KindNotFound, "queue not found", holon.WithRule(queueName))
	}
	m.handlers[queueName] = handler
	return nil
}
