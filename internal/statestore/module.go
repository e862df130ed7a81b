package statestore

import (
	"context"

	"github.com/holoncore/travel-orchestrator/holon"
)

// ServiceName is the key other components use to look up the Store.
const ServiceName = "statestore"

// ModuleConfig is the decoded "statestore" config section.
type ModuleConfig struct {
	BaseDir    string                     `yaml:"baseDir"`
	Namespaces map[string]NamespaceConfig `yaml:"namespaces"`
}

// Module wires a Store into the application as a holon.Module.
type Module struct {
	Store *Store
	cfg   ModuleConfig
}

// NewModule constructs a statestore Module. defaultNamespaces seeds the
// built-in namespace table (§6); RegisterConfig may add to or override it.
func NewModule(defaultNamespaces map[string]NamespaceConfig) *Module {
	return &Module{cfg: ModuleConfig{Namespaces: defaultNamespaces}}
}

func (m *Module) Name() string { return ServiceName }

func (m *Module) RegisterConfig(app *holon.Application) error {
	return app.Config.DecodeSection(ServiceName, &m.cfg)
}

func (m *Module) Init(app *holon.Application) error {
	m.Store = NewStore(app.Log, m.cfg.BaseDir)
	for name, cfg := range m.cfg.Namespaces {
		if err := m.Store.CreateNamespace(name, cfg); err != nil {
			return err
		}
	}
	return app.Services.Register(ServiceName, m.Store)
}

func (m *Module) Start(ctx context.Context) error { return m.Store.Start(ctx) }
func (m *Module) Stop(ctx context.Context) error  { return m.Store.Stop(ctx) }
