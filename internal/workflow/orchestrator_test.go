package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/holoncore/travel-orchestrator/internal/eventbus"
	"github.com/holoncore/travel-orchestrator/internal/policy"
	"github.com/holoncore/travel-orchestrator/internal/queue"
	"github.com/stretchr/testify/require"
)

// testHarness wires a real MemoryBus, queue.Manager, and Policy together
// with an Orchestrator, and attaches to every queue a handler that
// immediately publishes the topic completing that state — standing in for
// the agents that would otherwise process those queues.
type testHarness struct {
	bus  *eventbus.MemoryBus
	qm   *queue.Manager
	po   *policy.Policy
	orch *Orchestrator
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	ctx := context.Background()

	bus := eventbus.NewMemoryBus(eventbus.DefaultConfig(), nil)
	require.NoError(t, bus.Start(ctx))
	t.Cleanup(func() { _ = bus.Stop(ctx) })

	qm := queue.NewManager(nil)
	require.NoError(t, qm.Start(ctx))
	t.Cleanup(func() { _ = qm.Stop(ctx) })

	po := policy.New(policy.DefaultConfig(), nil)

	orch := NewOrchestrator(nil, nil, bus, qm, po)
	orch.RegisterTemplate(CreateTemplate())
	orch.RegisterTemplate(ReviseTemplate())
	require.NoError(t, orch.Start(ctx))
	t.Cleanup(func() { _ = orch.Stop(ctx) })

	h := &testHarness{bus: bus, qm: qm, po: po, orch: orch}

	mustCreate := func(name string) {
		require.NoError(t, qm.CreateQueue(name, queue.DefaultQueueConfig(), nil))
	}
	mustCreate("candidate-generation")
	mustCreate("validation-tasks")
	mustCreate("ranking-tasks")
	mustCreate("selection-tasks")
	mustCreate("enrichment-tasks")
	mustCreate("output-generation")

	respond := func(topic string, result string) queue.Handler {
		return func(ctx context.Context, msg *queue.Message) error {
			payload, _ := msg.Payload.(map[string]any)
			sagaID, _ := payload["sagaId"].(string)
			corrID, _ := payload["correlationId"].(string)
			data := map[string]any{"result": result}
			_, err := bus.Publish(ctx, topic, data, eventbus.WithSagaID(sagaID), eventbus.WithCorrelationID(corrID))
			return err
		}
	}

	require.NoError(t, qm.SetHandler("candidate-generation", respond("CANDIDATES", "pass")))
	require.NoError(t, qm.SetHandler("validation-tasks", respond("CONSTRAINTS", "pass")))
	require.NoError(t, qm.SetHandler("ranking-tasks", respond("SELECTION_PROP", "pass")))
	require.NoError(t, qm.SetHandler("selection-tasks", respond("SELECTION_CONF", "pass")))
	require.NoError(t, qm.SetHandler("enrichment-tasks", respond("AVAILABILITY", "pass")))

	// output-generation serves both BUILD (-> ITINERARY) and PACKAGE (->
	// OUTPUT); branch on the state name carried in the task payload.
	require.NoError(t, qm.SetHandler("output-generation", func(ctx context.Context, msg *queue.Message) error {
		payload, _ := msg.Payload.(map[string]any)
		sagaID, _ := payload["sagaId"].(string)
		corrID, _ := payload["correlationId"].(string)
		state, _ := payload["state"].(string)
		topic := "ITINERARY"
		if state == "PACKAGE" {
			topic = "OUTPUT"
		}
		_, err := bus.Publish(ctx, topic, map[string]any{"result": "pass"},
			eventbus.WithSagaID(sagaID), eventbus.WithCorrelationID(corrID))
		return err
	}))

	return h
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// TestHappyPathCreateReachesDone is the literal §8 scenario 1: publish
// INTENT{sagaId=S1, correlationId=C1, data.revisions=[]} and expect S1 to
// run CREATE through to DONE with activeSagas back at its prior value.
func TestHappyPathCreateReachesDone(t *testing.T) {
	h := newHarness(t)
	before := h.po.Admission.ActiveCount()

	_, err := h.bus.Publish(context.Background(), "INTENT",
		map[string]any{"revisions": []any{}},
		eventbus.WithSagaID("S1"), eventbus.WithCorrelationID("C1"))
	require.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool {
		cur, ok := h.orch.Instance("S1")
		return ok && cur.Status == StatusComplete
	})

	cur, _ := h.orch.Instance("S1")
	require.Equal(t, "DONE", cur.State)
	require.Equal(t, before, h.po.Admission.ActiveCount())
}

// TestRevisionSpawnsNewSagaLeavingOriginalUntouched is the literal §8
// scenario 2: during active S1, publish REVISION{sagaId=S1,
// correlationId=C1}; expect a new REVISE saga sharing correlationId=C1
// while S1 continues unaffected.
func TestRevisionSpawnsNewSagaLeavingOriginalUntouched(t *testing.T) {
	h := newHarness(t)

	_, err := h.bus.Publish(context.Background(), "INTENT",
		map[string]any{"revisions": []any{}},
		eventbus.WithSagaID("S1"), eventbus.WithCorrelationID("C1"))
	require.NoError(t, err)

	_, err = h.bus.Publish(context.Background(), "REVISION", map[string]any{"reason": "price changed"},
		eventbus.WithSagaID("S1"), eventbus.WithCorrelationID("C1"))
	require.NoError(t, err)

	var revisedID string
	waitFor(t, 2*time.Second, func() bool {
		for id, inst := range snapshotInstances(h.orch) {
			if inst.Template == "REVISE" {
				revisedID = id
				return true
			}
		}
		return false
	})

	revised, ok := h.orch.Instance(revisedID)
	require.True(t, ok)
	require.Equal(t, "C1", revised.CorrelationID)
	require.Equal(t, "S1", revised.RevisionOf)

	origStill, ok := h.orch.Instance("S1")
	require.True(t, ok)
	require.NotEqual(t, StatusCancelled, origStill.Status)
}

func snapshotInstances(o *Orchestrator) map[string]*Instance {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]*Instance, len(o.instances))
	for k, v := range o.instances {
		out[k] = v
	}
	return out
}
