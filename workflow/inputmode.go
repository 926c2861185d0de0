package workflow

// InputMode reshapes a state's merged value (or raw upstream value) into the
// final argument(s) passed to the node's execution call. Prepare returns one
// unit per independent invocation; only SplitInput ever returns more than
// one.
type InputMode interface {
	Prepare(state string, merged any, results Results) []any
}

// PreviousInput passes the merged value (or the single upstream output, when
// the state is not a convergence) through unchanged. This is the default.
type PreviousInput struct{}

func (PreviousInput) Prepare(_ string, merged any, _ Results) []any {
	return []any{merged}
}

// FirstInput uses only the first element of a sequence-shaped merged value.
// Non-sequence values pass through unchanged.
type FirstInput struct{}

func (FirstInput) Prepare(_ string, merged any, _ Results) []any {
	if elems, ok := sequenceElements(merged); ok && len(elems) > 0 {
		return []any{elems[0]}
	}
	return []any{merged}
}

// LastInput uses only the most recent element of a sequence-shaped merged
// value. Non-sequence values pass through unchanged.
type LastInput struct{}

func (LastInput) Prepare(_ string, merged any, _ Results) []any {
	if elems, ok := sequenceElements(merged); ok && len(elems) > 0 {
		return []any{elems[len(elems)-1]}
	}
	return []any{merged}
}

// AggregateInput passes the full results map keyed by state name, with the
// firing state's own prospective merged value included under its own key.
type AggregateInput struct{}

func (AggregateInput) Prepare(state string, merged any, results Results) []any {
	snap := make(Results, len(results)+1)
	for k, v := range results {
		snap[k] = v
	}
	snap[state] = merged
	return []any{snap}
}

// SplitInput fans a sequence-shaped merged value out into one independent
// execution unit per element. Non-sequence values pass through as a single
// unit; combining Split with merges that never produce sequences (Concat,
// Dict) is therefore a no-op fan-out.
type SplitInput struct{}

func (SplitInput) Prepare(_ string, merged any, _ Results) []any {
	if elems, ok := sequenceElements(merged); ok {
		return elems
	}
	return []any{merged}
}

// InputModeFunc adapts a function to the InputMode interface, the custom
// escape hatch for callers with bespoke shaping needs.
type InputModeFunc func(state string, merged any, results Results) []any

func (f InputModeFunc) Prepare(state string, merged any, results Results) []any {
	return f(state, merged, results)
}
