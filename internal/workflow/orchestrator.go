package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holoncore/travel-orchestrator/holon"
	"github.com/holoncore/travel-orchestrator/internal/eventbus"
	"github.com/holoncore/travel-orchestrator/internal/policy"
	"github.com/holoncore/travel-orchestrator/internal/queue"
)

// reservedTopics are the EB topics every saga template's states wait on
// (§7.3 "reserved topics"). The orchestrator subscribes to each once at
// Start and routes deliveries to the waiting saga by sagaId, rather than
// opening a subscription per in-flight saga.
var reservedTopics = []string{
	"CANDIDATES", "CONSTRAINTS", "SELECTION_PROP", "SELECTION_CONF",
	"AVAILABILITY", "ITINERARY", "OUTPUT",
}

const intentTopic = "INTENT"
const revisionTopic = "REVISION"

const enterEvent = "__enter__"

// Orchestrator is the Workflow Orchestrator (WO): it drives saga instances
// through a template's transition table in response to EB events, without
// a dedicated control-loop goroutine per saga (§7).
type Orchestrator struct {
	log    holon.Logger
	clock  holon.Clock
	bus    eventbus.Bus
	queues *queue.Manager
	policy *policy.Policy

	mu        sync.Mutex
	templates map[string]Template
	instances map[string]*Instance
	subs      []string

	avgDuration time.Duration
}

// NewOrchestrator wires an Orchestrator to its three collaborators, looked
// up from the service registry by the owning Module.
func NewOrchestrator(log holon.Logger, clock holon.Clock, bus eventbus.Bus, queues *queue.Manager, po *policy.Policy) *Orchestrator {
	if log == nil {
		log = holon.NopLogger{}
	}
	if clock == nil {
		clock = holon.RealClock
	}
	return &Orchestrator{
		log:       log,
		clock:     clock,
		bus:       bus,
		queues:    queues,
		policy:    po,
		templates: make(map[string]Template),
		instances: make(map[string]*Instance),
	}
}

// RegisterTemplate makes a named saga template available to StartSaga.
func (o *Orchestrator) RegisterTemplate(t Template) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.templates[t.Name] = t
}

// Start subscribes to every reserved topic plus the global REVISION topic.
// Subscriptions are at-least-once with retry disabled: a saga transition is
// idempotent to apply (the orchestrator checks the instance is still
// waiting in the expected state before acting), so a duplicate delivery is
// harmless and a failed delivery is not worth re-queuing through the bus.
func (o *Orchestrator) Start(ctx context.Context) error {
	opts := eventbus.SubscribeOptions{RetryOnFailure: false}
	for _, topic := range reservedTopics {
		topic := topic
		id, err := o.bus.Subscribe(topic, func(ctx context.Context, e eventbus.Event) error {
			o.handleTopicEvent(topic, e)
			return nil
		}, opts)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		o.subs = append(o.subs, id)
	}

	intentID, err := o.bus.Subscribe(intentTopic, func(ctx context.Context, e eventbus.Event) error {
		o.handleIntent(e)
		return nil
	}, opts)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", intentTopic, err)
	}
	o.subs = append(o.subs, intentID)

	revID, err := o.bus.Subscribe(revisionTopic, func(ctx context.Context, e eventbus.Event) error {
		o.handleRevision(e)
		return nil
	}, opts)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", revisionTopic, err)
	}
	o.subs = append(o.subs, revID)
	return nil
}

func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range o.subs {
		o.bus.Unsubscribe(id)
	}
	o.subs = nil
	for _, inst := range o.instances {
		if inst.timer != nil {
			inst.timer.Stop()
		}
	}
	return nil
}

// StartSaga creates a new saga instance of the named template and enters
// its initial state. It is the shared path behind both INTENT-driven
// creation and REVISION-driven branching; admit governs whether this call
// consumes an admission slot (it does for internally spawned revisions,
// since those never pass through the Coordinator's own PO.Admit call).
func (o *Orchestrator) StartSaga(sagaID, templateName, correlationID, revisionOf string, revision int, data map[string]any, admit bool) (*Instance, error) {
	o.mu.Lock()
	tmpl, ok := o.templates[templateName]
	o.mu.Unlock()
	if !ok {
		return nil, holon.NewError(holon.KindNotFound, "unknown saga template", holon.WithRule(templateName))
	}

	if sagaID == "" {
		sagaID = uuid.NewString()
	}
	if correlationID == "" {
		correlationID = sagaID
	}

	if admit && o.policy != nil {
		if err := o.policy.Admission.Admit(correlationID, sagaID, o.depth()); err != nil {
			return nil, err
		}
	}

	now := o.clock.Now()
	if data == nil {
		data = map[string]any{}
	}
	inst := &Instance{
		SagaID:        sagaID,
		CorrelationID: correlationID,
		Template:      templateName,
		Status:        StatusRunning,
		Data:          data,
		CreatedAt:     now,
		UpdatedAt:     now,
		StartTime:     now,
		RevisionOf:    revisionOf,
		Revision:      revision,
	}

	o.mu.Lock()
	o.instances[sagaID] = inst
	o.mu.Unlock()

	o.enterState(&tmpl, inst, tmpl.InitialState)
	return inst, nil
}

// handleIntent creates a saga from an INTENT event (§4.5 "Execution"): the
// Coordinator has already run PO.Admit before publishing, so this path
// does not admit again. Template selection follows the intent's own
// revisions field.
func (o *Orchestrator) handleIntent(e eventbus.Event) {
	data, _ := e.Data.(map[string]any)
	templateName := "CREATE"
	if hasRevisions(data) {
		templateName = "REVISE"
	}
	if _, err := o.StartSaga(e.SagaID, templateName, e.CorrelationID, "", 0, data, false); err != nil {
		o.log.Error("workflow: failed to start saga from intent", "saga", e.SagaID, "error", err.Error())
	}
}

func hasRevisions(data map[string]any) bool {
	if data == nil {
		return false
	}
	switch v := data["revisions"].(type) {
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	}
	return false
}

// Instance returns the saga with the given id, if still tracked.
func (o *Orchestrator) Instance(sagaID string) (*Instance, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	inst, ok := o.instances[sagaID]
	return inst, ok
}

func (o *Orchestrator) depth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, inst := range o.instances {
		if inst.Status == StatusRunning {
			n++
		}
	}
	return n
}

// enterState runs a state's entry action and, for Auto states, immediately
// evaluates its transitions rather than waiting on an EB event.
func (o *Orchestrator) enterState(tmpl *Template, inst *Instance, stateName string) {
	o.mu.Lock()
	if inst.timer != nil {
		inst.timer.Stop()
		inst.timer = nil
	}
	spec, ok := tmpl.States[stateName]
	if !ok {
		o.mu.Unlock()
		o.log.Error("workflow: unknown state in template", "template", tmpl.Name, "state", stateName)
		return
	}
	prev := inst.State
	inst.State = stateName
	inst.EnteredState = o.clock.Now()
	inst.StateAttempts = 0
	inst.UpdatedAt = inst.EnteredState
	inst.StateHistory = append(inst.StateHistory, StateTransition{State: stateName, Prev: prev, Timestamp: inst.EnteredState})
	o.mu.Unlock()

	o.runEntryAction(inst, spec)

	if spec.Terminal {
		o.finalize(tmpl, inst, spec.TerminalKind)
		return
	}

	if spec.Timeout > 0 {
		o.armTimer(tmpl, inst, spec)
	}

	if spec.Auto {
		o.advance(tmpl, inst, enterEvent, nil)
	}
}

func (o *Orchestrator) runEntryAction(inst *Instance, spec StateSpec) {
	if spec.EntryQueue == "" || o.queues == nil {
		return
	}
	payload := map[string]any{
		"sagaId":        inst.SagaID,
		"correlationId": inst.CorrelationID,
		"state":         spec.Name,
		"data":          inst.Data,
	}
	if _, err := o.queues.Enqueue(spec.EntryQueue, payload, queue.PriorityNormal, nil); err != nil {
		o.log.Error("workflow: enqueue entry action failed", "saga", inst.SagaID, "state", spec.Name, "error", err.Error())
	}
}

func (o *Orchestrator) armTimer(tmpl *Template, inst *Instance, spec StateSpec) {
	entered := inst.EnteredState
	timer := o.clock.AfterFunc(spec.Timeout, func() {
		o.handleTimeout(tmpl, inst, entered)
	})
	o.mu.Lock()
	inst.timer = timer
	o.mu.Unlock()
}

// handleTimeout fires when a state's entry action doesn't complete within
// its Timeout. entered guards against a timer that lost a race with a
// transition that already moved the saga on.
func (o *Orchestrator) handleTimeout(tmpl *Template, inst *Instance, entered time.Time) {
	o.mu.Lock()
	if inst.Status != StatusRunning || !inst.EnteredState.Equal(entered) {
		o.mu.Unlock()
		return
	}
	spec := tmpl.States[inst.State]
	inst.StateAttempts++
	attempts := inst.StateAttempts
	o.mu.Unlock()

	if attempts > spec.MaxRetries {
		o.finalize(tmpl, inst, TerminalError)
		return
	}
	o.log.Warn("workflow: state timed out, retrying entry action", "saga", inst.SagaID, "state", inst.State, "attempt", attempts)
	o.runEntryAction(inst, spec)
	o.armTimer(tmpl, inst, spec)
}

// handleTopicEvent routes a delivered EB event to the saga it names, if
// that saga is still running and currently waiting on this topic. Late
// arrivals (after the saga already moved on, branched away, or finished)
// are dropped rather than misapplied.
func (o *Orchestrator) handleTopicEvent(topic string, e eventbus.Event) {
	o.mu.Lock()
	inst, ok := o.instances[e.SagaID]
	var tmpl Template
	if ok {
		tmpl = o.templates[inst.Template]
	}
	o.mu.Unlock()
	if !ok || inst.Status != StatusRunning {
		return
	}

	data, _ := e.Data.(map[string]any)
	o.advance(&tmpl, inst, topic, data)
}

// advance applies the first matching transition rule for eventType out of
// the saga's current state, if any guard (and optional rule-set policy
// check) passes.
func (o *Orchestrator) advance(tmpl *Template, inst *Instance, eventType string, data map[string]any) {
	o.mu.Lock()
	if inst.Status != StatusRunning {
		o.mu.Unlock()
		return
	}
	spec := tmpl.States[inst.State]
	for k, v := range data {
		inst.Data[k] = v
	}
	merged := inst.Data
	o.mu.Unlock()

	for _, rule := range spec.Transitions {
		if rule.EventType != eventType {
			continue
		}
		if rule.Guard != nil && !rule.Guard(merged) {
			continue
		}
		if rule.RuleSet != "" && o.policy != nil {
			if err := o.policy.EvaluateRules(inst.SagaID, rule.RuleSet, ruleContextFromData(merged)); err != nil {
				continue
			}
		}
		o.enterState(tmpl, inst, rule.NextState)
		return
	}
}

// finalize moves a saga to a terminal outcome, stops its timer, releases
// its admission slot, and publishes the matching workflow-* event.
func (o *Orchestrator) finalize(tmpl *Template, inst *Instance, kind TerminalKind) {
	o.mu.Lock()
	if inst.Status != StatusRunning {
		o.mu.Unlock()
		return
	}
	now := o.clock.Now()
	switch kind {
	case TerminalError:
		inst.Status = StatusError
	case TerminalCancelled:
		inst.Status = StatusCancelled
	default:
		inst.Status = StatusComplete
	}
	inst.EndTime = now
	if inst.timer != nil {
		inst.timer.Stop()
		inst.timer = nil
	}
	duration := now.Sub(inst.StartTime)
	o.avgDuration = ewmaDuration(o.avgDuration, duration)
	o.mu.Unlock()

	if o.policy != nil {
		o.policy.Admission.Release(inst.SagaID)
	}

	topic := "workflow-complete"
	switch kind {
	case TerminalError:
		topic = "workflow-error"
	case TerminalCancelled:
		topic = "workflow-cancelled"
	}
	if o.bus != nil {
		payload := map[string]any{"sagaId": inst.SagaID, "template": inst.Template, "durationMs": duration.Milliseconds()}
		_, _ = o.bus.Publish(context.Background(), topic, payload,
			eventbus.WithSagaID(inst.SagaID), eventbus.WithCorrelationID(inst.CorrelationID))
	}
}

// ewmaDuration folds a new sample into a running average with a 0.2 decay,
// matching the queue manager's processing-time tracker.
func ewmaDuration(avg, sample time.Duration) time.Duration {
	if avg == 0 {
		return sample
	}
	const alpha = 0.2
	return time.Duration(alpha*float64(sample) + (1-alpha)*float64(avg))
}

// handleRevision is handled outside the per-state transition table: a
// REVISION event spawns a new REVISE saga sharing the triggering saga's
// correlationId, leaving the original saga's own state untouched (§7.3).
func (o *Orchestrator) handleRevision(e eventbus.Event) {
	o.mu.Lock()
	orig, ok := o.instances[e.SagaID]
	o.mu.Unlock()

	revision := 1
	correlationID := e.CorrelationID
	if ok {
		revision = orig.Revision + 1
		if correlationID == "" {
			correlationID = orig.CorrelationID
		}
	}

	revisedID := fmt.Sprintf("%s_rev_%d", e.SagaID, o.clock.Now().UnixNano())
	data, _ := e.Data.(map[string]any)
	if _, err := o.StartSaga(revisedID, "REVISE", correlationID, e.SagaID, revision, data, true); err != nil {
		o.log.Error("workflow: failed to start revision saga", "original", e.SagaID, "error", err.Error())
	}
}

func ruleContextFromData(data map[string]any) policy.RuleContext {
	f := func(key string) float64 {
		v, _ := data[key].(float64)
		return v
	}
	i := func(key string) int {
		switch v := data[key].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
		return 0
	}
	b := func(key string) bool {
		v, _ := data[key].(bool)
		return v
	}
	d := func(key string) time.Duration {
		v, _ := data[key].(time.Duration)
		return v
	}
	return policy.RuleContext{
		PriceBefore:    f("priceBefore"),
		PriceAfter:     f("priceAfter"),
		Confidence:     f("confidence"),
		Elapsed:        d("elapsed"),
		TimeoutBudget:  d("timeoutBudget"),
		RevisionCount:  i("revisionCount"),
		MaxRevisions:   i("maxRevisions"),
		LicensePresent: b("licensePresent"),
	}
}
