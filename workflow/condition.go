package workflow

import (
	"fmt"
	"reflect"
	"regexp"
	"time"
)

// Results maps a state name to the most recent output that state produced.
// Conditions receive a snapshot and must treat it as read-only.
type Results map[string]any

// Clock supplies the current time. Injecting it keeps time-dependent
// conditions deterministic in tests.
type Clock func() time.Time

// Condition gates a single transition. Evaluate must be side-effect-free and
// referentially transparent for a given results snapshot. It returns an error
// only for configuration problems (such as referencing a state that has not
// produced output), never as a "not ready" signal.
type Condition interface {
	Evaluate(results Results) (bool, error)
}

// RunAnchored is implemented by conditions whose truth depends on the run's
// start time. The engine rebinds each such condition when a run begins, so a
// graph built ahead of time, or run repeatedly, always evaluates against the
// current run's anchor.
type RunAnchored interface {
	AnchorAt(start time.Time) Condition
}

// ConditionFunc is the predicate signature wrapped by FuncCondition.
type ConditionFunc func(results Results) bool

// FuncCondition wraps a plain predicate function.
type FuncCondition struct {
	fn ConditionFunc
}

// NewFuncCondition creates a condition from a predicate function.
func NewFuncCondition(fn ConditionFunc) *FuncCondition {
	return &FuncCondition{fn: fn}
}

func (c *FuncCondition) Evaluate(results Results) (bool, error) {
	return c.fn(results), nil
}

// AndCondition is true when every sub-condition is true. Evaluation
// short-circuits left to right.
type AndCondition struct {
	conds []Condition
}

// And composes conditions with logical AND.
func And(conds ...Condition) *AndCondition {
	return &AndCondition{conds: conds}
}

func (c *AndCondition) Evaluate(results Results) (bool, error) {
	for _, cond := range c.conds {
		ok, err := cond.Evaluate(results)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// AnchorAt rebinds any run-anchored sub-conditions.
func (c *AndCondition) AnchorAt(start time.Time) Condition {
	return &AndCondition{conds: anchorAll(c.conds, start)}
}

// OrCondition is true when any sub-condition is true. Evaluation
// short-circuits left to right.
type OrCondition struct {
	conds []Condition
}

// Or composes conditions with logical OR.
func Or(conds ...Condition) *OrCondition {
	return &OrCondition{conds: conds}
}

func (c *OrCondition) Evaluate(results Results) (bool, error) {
	for _, cond := range c.conds {
		ok, err := cond.Evaluate(results)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// AnchorAt rebinds any run-anchored sub-conditions.
func (c *OrCondition) AnchorAt(start time.Time) Condition {
	return &OrCondition{conds: anchorAll(c.conds, start)}
}

// NotCondition negates its sub-condition.
type NotCondition struct {
	cond Condition
}

// Not negates a condition.
func Not(cond Condition) *NotCondition {
	return &NotCondition{cond: cond}
}

func (c *NotCondition) Evaluate(results Results) (bool, error) {
	ok, err := c.cond.Evaluate(results)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// AnchorAt rebinds a run-anchored sub-condition.
func (c *NotCondition) AnchorAt(start time.Time) Condition {
	if ra, ok := c.cond.(RunAnchored); ok {
		return &NotCondition{cond: ra.AnchorAt(start)}
	}
	return c
}

func anchorAll(conds []Condition, start time.Time) []Condition {
	out := make([]Condition, len(conds))
	for i, cond := range conds {
		if ra, ok := cond.(RunAnchored); ok {
			out[i] = ra.AnchorAt(start)
			continue
		}
		out[i] = cond
	}
	return out
}

// TimeWindowCondition is true only while the elapsed time since its anchor
// falls inside [notBefore, notAfter]. The engine re-anchors it at run start
// via AnchorAt; standalone use anchors at construction. The clock is injected
// so tests never depend on wall-clock time.
type TimeWindowCondition struct {
	notBefore time.Duration
	notAfter  time.Duration
	anchor    time.Time
	clock     Clock
}

// NewTimeWindowCondition creates a time-window condition anchored at the
// moment of construction. A nil clock falls back to time.Now.
func NewTimeWindowCondition(notBefore, notAfter time.Duration, clock Clock) *TimeWindowCondition {
	if clock == nil {
		clock = time.Now
	}
	return &TimeWindowCondition{
		notBefore: notBefore,
		notAfter:  notAfter,
		anchor:    clock(),
		clock:     clock,
	}
}

func (c *TimeWindowCondition) Evaluate(_ Results) (bool, error) {
	elapsed := c.clock().Sub(c.anchor)
	return elapsed >= c.notBefore && elapsed <= c.notAfter, nil
}

// AnchorAt returns a copy of the condition anchored at start.
func (c *TimeWindowCondition) AnchorAt(start time.Time) Condition {
	return &TimeWindowCondition{
		notBefore: c.notBefore,
		notAfter:  c.notAfter,
		anchor:    start,
		clock:     c.clock,
	}
}

// RegexCondition matches a named state's most recent output against a
// compiled pattern. Non-string outputs are stringified with fmt.Sprint so
// evaluation stays total.
type RegexCondition struct {
	state string
	re    *regexp.Regexp
}

// NewRegexCondition compiles pattern and returns a condition over the named
// state's accumulated output. A malformed pattern is a ValidationError.
func NewRegexCondition(state, pattern string) (*RegexCondition, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, newValidationErrorf("regex condition on state %q: invalid pattern %q: %v", state, pattern, err)
	}
	return &RegexCondition{state: state, re: re}, nil
}

func (c *RegexCondition) Evaluate(results Results) (bool, error) {
	v, ok := results[c.state]
	if !ok {
		return false, &InvalidTransitionError{State: c.state, Reason: "no recorded output for regex condition"}
	}
	s, isStr := v.(string)
	if !isStr {
		s = fmt.Sprint(v)
	}
	return c.re.MatchString(s), nil
}

// StateValueCondition compares a named state's most recent output against an
// expected value using deep equality.
type StateValueCondition struct {
	state    string
	expected any
}

// NewStateValueCondition creates a condition that is true when the named
// state's last output deep-equals expected.
func NewStateValueCondition(state string, expected any) *StateValueCondition {
	return &StateValueCondition{state: state, expected: expected}
}

func (c *StateValueCondition) Evaluate(results Results) (bool, error) {
	v, ok := results[c.state]
	if !ok {
		return false, &InvalidTransitionError{State: c.state, Reason: "no recorded output for state-value condition"}
	}
	return reflect.DeepEqual(v, c.expected), nil
}
