package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func alwaysTrue() Condition {
	return NewFuncCondition(func(Results) bool { return true })
}

func alwaysFalse() Condition {
	return NewFuncCondition(func(Results) bool { return false })
}

// failingCondition returns an error on every evaluation, used to verify
// short-circuiting of composite conditions.
type failingCondition struct{}

func (failingCondition) Evaluate(Results) (bool, error) {
	return false, errors.New("condition evaluation failed")
}

// ---------------------------------------------------------------------------
// FuncCondition
// ---------------------------------------------------------------------------

func TestFuncCondition(t *testing.T) {
	cond := NewFuncCondition(func(results Results) bool {
		v, ok := results["check"].(int)
		return ok && v > 10
	})

	ok, err := cond.Evaluate(Results{"check": 42})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cond.Evaluate(Results{"check": 3})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = cond.Evaluate(Results{})
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Composite conditions
// ---------------------------------------------------------------------------

func TestAndCondition(t *testing.T) {
	tests := []struct {
		name  string
		conds []Condition
		want  bool
	}{
		{"all true", []Condition{alwaysTrue(), alwaysTrue()}, true},
		{"one false", []Condition{alwaysTrue(), alwaysFalse()}, false},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := And(tt.conds...).Evaluate(Results{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestAndCondition_ShortCircuit(t *testing.T) {
	// A false condition before the failing one means the error branch is
	// never reached.
	ok, err := And(alwaysFalse(), failingCondition{}).Evaluate(Results{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = And(alwaysTrue(), failingCondition{}).Evaluate(Results{})
	assert.Error(t, err)
}

func TestOrCondition(t *testing.T) {
	tests := []struct {
		name  string
		conds []Condition
		want  bool
	}{
		{"one true", []Condition{alwaysFalse(), alwaysTrue()}, true},
		{"all false", []Condition{alwaysFalse(), alwaysFalse()}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Or(tt.conds...).Evaluate(Results{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestOrCondition_ShortCircuit(t *testing.T) {
	ok, err := Or(alwaysTrue(), failingCondition{}).Evaluate(Results{})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Or(alwaysFalse(), failingCondition{}).Evaluate(Results{})
	assert.Error(t, err)
}

func TestNotCondition(t *testing.T) {
	ok, err := Not(alwaysTrue()).Evaluate(Results{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Not(alwaysFalse()).Evaluate(Results{})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Not(failingCondition{}).Evaluate(Results{})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// TimeWindowCondition
// ---------------------------------------------------------------------------

func TestTimeWindowCondition(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	cond := NewTimeWindowCondition(time.Second, 10*time.Second, clock)

	// Before the window opens.
	ok, err := cond.Evaluate(Results{})
	require.NoError(t, err)
	assert.False(t, ok)

	// Inside the window.
	now = now.Add(5 * time.Second)
	ok, err = cond.Evaluate(Results{})
	require.NoError(t, err)
	assert.True(t, ok)

	// Boundary is inclusive.
	now = now.Add(5 * time.Second)
	ok, err = cond.Evaluate(Results{})
	require.NoError(t, err)
	assert.True(t, ok)

	// After the window closes.
	now = now.Add(time.Millisecond)
	ok, err = cond.Evaluate(Results{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimeWindowCondition_AnchorAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	cond := NewTimeWindowCondition(0, 10*time.Second, clock)

	// Against the construction anchor the window has long closed.
	now = now.Add(time.Hour)
	ok, err := cond.Evaluate(Results{})
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-anchoring at the current instant reopens it.
	ok, err = cond.AnchorAt(now).Evaluate(Results{})
	require.NoError(t, err)
	assert.True(t, ok)

	// The original keeps its own anchor.
	ok, err = cond.Evaluate(Results{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompositeConditions_AnchorAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	window := NewTimeWindowCondition(0, 10*time.Second, clock)
	now = now.Add(time.Hour)

	and, ok := Condition(And(window, alwaysTrue())).(RunAnchored)
	require.True(t, ok)
	got, err := and.AnchorAt(now).Evaluate(Results{})
	require.NoError(t, err)
	assert.True(t, got, "And must rebind nested run-anchored conditions")

	or, ok := Condition(Or(alwaysFalse(), window)).(RunAnchored)
	require.True(t, ok)
	got, err = or.AnchorAt(now).Evaluate(Results{})
	require.NoError(t, err)
	assert.True(t, got)

	not, ok := Condition(Not(window)).(RunAnchored)
	require.True(t, ok)
	got, err = not.AnchorAt(now).Evaluate(Results{})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestTimeWindowCondition_NilClock(t *testing.T) {
	cond := NewTimeWindowCondition(0, time.Hour, nil)
	ok, err := cond.Evaluate(Results{})
	require.NoError(t, err)
	assert.True(t, ok)
}

// ---------------------------------------------------------------------------
// RegexCondition
// ---------------------------------------------------------------------------

func TestRegexCondition(t *testing.T) {
	cond, err := NewRegexCondition("classify", `^urgent:`)
	require.NoError(t, err)

	ok, err := cond.Evaluate(Results{"classify": "urgent: disk full"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cond.Evaluate(Results{"classify": "routine: backup done"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegexCondition_NonStringOutput(t *testing.T) {
	cond, err := NewRegexCondition("score", `^\d+$`)
	require.NoError(t, err)

	ok, err := cond.Evaluate(Results{"score": 42})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegexCondition_InvalidPattern(t *testing.T) {
	_, err := NewRegexCondition("state", `([unclosed`)
	require.Error(t, err)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestRegexCondition_MissingState(t *testing.T) {
	cond, err := NewRegexCondition("missing", `.*`)
	require.NoError(t, err)

	_, err = cond.Evaluate(Results{"other": "value"})
	require.Error(t, err)

	var terr *InvalidTransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "missing", terr.State)
}

// ---------------------------------------------------------------------------
// StateValueCondition
// ---------------------------------------------------------------------------

func TestStateValueCondition(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"equal string", "done", "done", true},
		{"unequal string", "done", "failed", false},
		{"equal slice", []any{1, 2}, []any{1, 2}, true},
		{"equal map", map[string]any{"k": 1}, map[string]any{"k": 1}, true},
		{"type mismatch", 1, "1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := NewStateValueCondition("check", tt.expected)
			ok, err := cond.Evaluate(Results{"check": tt.actual})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestStateValueCondition_MissingState(t *testing.T) {
	cond := NewStateValueCondition("absent", "anything")
	_, err := cond.Evaluate(Results{})
	require.Error(t, err)

	var terr *InvalidTransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "absent", terr.State)
}
