package holon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubModule struct {
	name    string
	deps    []string
	inits   *[]string
	started *[]string
}

func (m *stubModule) Name() string         { return m.name }
func (m *stubModule) Dependencies() []string { return m.deps }
func (m *stubModule) Init(app *Application) error {
	*m.inits = append(*m.inits, m.name)
	return nil
}
func (m *stubModule) Start(ctx context.Context) error {
	*m.started = append(*m.started, m.name)
	return nil
}
func (m *stubModule) Stop(ctx context.Context) error {
	return nil
}

func TestApplicationInitOrdersByDependency(t *testing.T) {
	var inits, starts []string
	app := NewApplication(nil, NopLogger{}, nil)

	require.NoError(t, app.RegisterModule(&stubModule{name: "workflow", deps: []string{"queue"}, inits: &inits, started: &starts}))
	require.NoError(t, app.RegisterModule(&stubModule{name: "queue", deps: []string{"policy", "eventbus"}, inits: &inits, started: &starts}))
	require.NoError(t, app.RegisterModule(&stubModule{name: "policy", deps: nil, inits: &inits, started: &starts}))
	require.NoError(t, app.RegisterModule(&stubModule{name: "eventbus", deps: nil, inits: &inits, started: &starts}))

	require.NoError(t, app.Init())
	require.NoError(t, app.Start(context.Background()))

	require.Equal(t, []string{"policy", "eventbus", "queue", "workflow"}, inits)
	require.Equal(t, inits, starts)
}

func TestApplicationDetectsCycle(t *testing.T) {
	var inits, starts []string
	app := NewApplication(nil, NopLogger{}, nil)
	require.NoError(t, app.RegisterModule(&stubModule{name: "a", deps: []string{"b"}, inits: &inits, started: &starts}))
	require.NoError(t, app.RegisterModule(&stubModule{name: "b", deps: []string{"a"}, inits: &inits, started: &starts}))

	err := app.Init()
	require.Error(t, err)
}

func TestErrorTaxonomyIs(t *testing.T) {
	err := NewError(KindTimeout, "state timed out", WithCorrelationID("c-1"))
	require.True(t, errors.Is(err, ErrTimeout))
	require.False(t, errors.Is(err, ErrConflict))
}

func TestServiceRegistryTypedLookup(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.Register("greeter", "hello"))

	got, err := Lookup[string](reg, "greeter")
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	_, err = Lookup[int](reg, "greeter")
	require.Error(t, err)
}
