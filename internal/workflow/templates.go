package workflow

import "time"

// resultPassed/resultFailed are guards reading a completion event's
// "result" data field, used by the branch points VERIFY and FINAL_VERIFY
// (§7.2: "(RANK | GEN)" and "(PACKAGE | BUILD)").
func resultPassed(data map[string]any) bool {
	r, _ := data["result"].(string)
	return r == "" || r == "pass"
}

func resultFailed(data map[string]any) bool {
	return !resultPassed(data)
}

const defaultStateTimeout = 30 * time.Second

// buildCoreStates returns the GEN..DONE portion shared by CREATE and
// REVISE (§7.2's two templates diverge only in their prefix).
func buildCoreStates() map[string]StateSpec {
	return map[string]StateSpec{
		"GEN": {
			Name: "GEN", EntryQueue: "candidate-generation", Timeout: defaultStateTimeout, MaxRetries: 3,
			Transitions: []TransitionRule{{EventType: "CANDIDATES", NextState: "VERIFY"}},
		},
		"VERIFY": {
			Name: "VERIFY", EntryQueue: "validation-tasks", Timeout: defaultStateTimeout, MaxRetries: 3,
			Transitions: []TransitionRule{
				{EventType: "CONSTRAINTS", NextState: "RANK", Guard: resultPassed},
				{EventType: "CONSTRAINTS", NextState: "GEN", Guard: resultFailed},
			},
		},
		"RANK": {
			Name: "RANK", EntryQueue: "ranking-tasks", Timeout: defaultStateTimeout, MaxRetries: 3,
			Transitions: []TransitionRule{{EventType: "SELECTION_PROP", NextState: "SELECT"}},
		},
		"SELECT": {
			Name: "SELECT", EntryQueue: "selection-tasks", Timeout: defaultStateTimeout, MaxRetries: 3,
			Transitions: []TransitionRule{{EventType: "SELECTION_CONF", NextState: "ENRICH"}},
		},
		"ENRICH": {
			Name: "ENRICH", EntryQueue: "enrichment-tasks", Timeout: defaultStateTimeout, MaxRetries: 3,
			Transitions: []TransitionRule{{EventType: "AVAILABILITY", NextState: "BUILD"}},
		},
		"BUILD": {
			Name: "BUILD", EntryQueue: "output-generation", Timeout: defaultStateTimeout, MaxRetries: 3,
			Transitions: []TransitionRule{{EventType: "ITINERARY", NextState: "FINAL_VERIFY"}},
		},
		"FINAL_VERIFY": {
			Name: "FINAL_VERIFY", EntryQueue: "validation-tasks", Timeout: defaultStateTimeout, MaxRetries: 3,
			Transitions: []TransitionRule{
				{EventType: "CONSTRAINTS", NextState: "PACKAGE", Guard: resultPassed},
				{EventType: "CONSTRAINTS", NextState: "BUILD", Guard: resultFailed},
			},
		},
		"PACKAGE": {
			Name: "PACKAGE", EntryQueue: "output-generation", Timeout: defaultStateTimeout, MaxRetries: 3,
			Transitions: []TransitionRule{{EventType: "OUTPUT", NextState: "DONE"}},
		},
		"DONE": {
			Name: "DONE", Terminal: true, TerminalKind: TerminalComplete,
		},
	}
}

// CreateTemplate is the built-in CREATE saga: ADMIT -> GEN -> VERIFY ->
// (RANK|GEN) -> SELECT -> ENRICH -> BUILD -> FINAL_VERIFY -> (PACKAGE|
// BUILD) -> DONE (§7.2).
func CreateTemplate() Template {
	states := buildCoreStates()
	states["ADMIT"] = StateSpec{Name: "ADMIT", Auto: true, Transitions: []TransitionRule{{EventType: enterEvent, NextState: "GEN"}}}
	return Template{Name: "CREATE", InitialState: "ADMIT", States: states}
}

// ReviseTemplate is the built-in REVISE saga: ADMIT -> ANALYZE -> GEN ->
// ... identical tail to CREATE (§7.2).
func ReviseTemplate() Template {
	states := buildCoreStates()
	states["ADMIT"] = StateSpec{Name: "ADMIT", Auto: true, Transitions: []TransitionRule{{EventType: enterEvent, NextState: "ANALYZE"}}}
	states["ANALYZE"] = StateSpec{
		Name: "ANALYZE", EntryQueue: "validation-tasks", Timeout: defaultStateTimeout, MaxRetries: 3,
		Transitions: []TransitionRule{{EventType: "CONSTRAINTS", NextState: "GEN"}},
	}
	return Template{Name: "REVISE", InitialState: "ADMIT", States: states}
}
