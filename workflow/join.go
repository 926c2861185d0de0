package workflow

// JoinStrategy decides, per converging state, whether enough incoming
// branches have arrived for the state to fire. Strategies are stateful over
// one run: the engine calls MarkComplete for each arrival, checks
// IsSatisfied after every push, and calls Reset immediately after a
// successful fire.
//
// Strategy instances attached to a Node act as prototypes: each run works on
// a Clone, so a graph definition can be run repeatedly and concurrently
// without interference. Implementations need no internal locking; the engine
// only touches them from its single-writer boundary.
type JoinStrategy interface {
	// MarkComplete records one arrival from the named source state.
	MarkComplete(source string)
	// IsSatisfied reports whether the recorded arrivals are sufficient to
	// fire. It is pure given the current arrivals.
	IsSatisfied() bool
	// Reset clears recorded arrivals. Called automatically after a fire.
	Reset()
	// Clone returns a fresh instance with the same configuration and no
	// recorded arrivals.
	Clone() JoinStrategy
}

// BranchExpecter is implemented by strategies whose satisfaction depends on
// a fixed set of upstream branches. Graph validation uses it to reject join
// dependencies that can never arrive.
type BranchExpecter interface {
	ExpectedBranches() []string
}

// AllJoin is satisfied once every expected branch has arrived at least once
// since the last reset, regardless of arrival order.
type AllJoin struct {
	expected []string
	arrived  map[string]bool
}

// NewAllJoin creates a join over the given expected branch names.
func NewAllJoin(branches ...string) *AllJoin {
	return &AllJoin{
		expected: branches,
		arrived:  make(map[string]bool),
	}
}

func (j *AllJoin) MarkComplete(source string) {
	j.arrived[source] = true
}

func (j *AllJoin) IsSatisfied() bool {
	if len(j.expected) == 0 {
		return false
	}
	for _, b := range j.expected {
		if !j.arrived[b] {
			return false
		}
	}
	return true
}

func (j *AllJoin) Reset() {
	j.arrived = make(map[string]bool)
}

func (j *AllJoin) Clone() JoinStrategy {
	return NewAllJoin(append([]string(nil), j.expected...)...)
}

func (j *AllJoin) ExpectedBranches() []string {
	return append([]string(nil), j.expected...)
}

// FirstJoin is satisfied by the first arrival of a run. Once the state has
// fired, later arrivals stay buffered and never re-trigger it; each run works
// on a fresh, unlatched clone.
type FirstJoin struct {
	arrivals int
	fired    bool
}

// NewFirstJoin creates a first-arrival join.
func NewFirstJoin() *FirstJoin {
	return &FirstJoin{}
}

func (j *FirstJoin) MarkComplete(string) {
	j.arrivals++
}

func (j *FirstJoin) IsSatisfied() bool {
	return !j.fired && j.arrivals >= 1
}

// Reset clears arrivals and latches the join; the engine calls it after the
// fire, so the state triggers at most once per run.
func (j *FirstJoin) Reset() {
	j.arrivals = 0
	j.fired = true
}

func (j *FirstJoin) Clone() JoinStrategy {
	return NewFirstJoin()
}

// NofMJoin is satisfied once n distinct names from the expected branch set
// have arrived since the last reset.
type NofMJoin struct {
	n        int
	expected map[string]bool
	order    []string
	arrived  map[string]bool
}

// NewNofMJoin creates a join satisfied by n distinct arrivals out of the
// given expected branches.
func NewNofMJoin(n int, branches ...string) *NofMJoin {
	expected := make(map[string]bool, len(branches))
	for _, b := range branches {
		expected[b] = true
	}
	return &NofMJoin{
		n:        n,
		expected: expected,
		order:    branches,
		arrived:  make(map[string]bool),
	}
}

func (j *NofMJoin) MarkComplete(source string) {
	if j.expected[source] {
		j.arrived[source] = true
	}
}

func (j *NofMJoin) IsSatisfied() bool {
	return j.n > 0 && len(j.arrived) >= j.n
}

func (j *NofMJoin) Reset() {
	j.arrived = make(map[string]bool)
}

func (j *NofMJoin) Clone() JoinStrategy {
	return NewNofMJoin(j.n, append([]string(nil), j.order...)...)
}

func (j *NofMJoin) ExpectedBranches() []string {
	return append([]string(nil), j.order...)
}

// JoinPredicate decides satisfaction from the source names recorded since
// the last reset, in arrival order.
type JoinPredicate func(arrivals []string) bool

// ConditionalJoin is satisfied when a caller-supplied predicate over the
// current arrivals returns true.
type ConditionalJoin struct {
	pred     JoinPredicate
	arrivals []string
}

// NewConditionalJoin creates a predicate-driven join.
func NewConditionalJoin(pred JoinPredicate) *ConditionalJoin {
	return &ConditionalJoin{pred: pred}
}

func (j *ConditionalJoin) MarkComplete(source string) {
	j.arrivals = append(j.arrivals, source)
}

func (j *ConditionalJoin) IsSatisfied() bool {
	return j.pred(append([]string(nil), j.arrivals...))
}

func (j *ConditionalJoin) Reset() {
	j.arrivals = nil
}

func (j *ConditionalJoin) Clone() JoinStrategy {
	return NewConditionalJoin(j.pred)
}

// AggregateFunc pre-combines buffered branch outputs before they are handed
// to the state's MergeStrategy.
type AggregateFunc func(values []any) []any

// AggregatorJoin behaves like ConditionalJoin and additionally pre-combines
// the buffered outputs through an aggregate function at fire time.
type AggregatorJoin struct {
	pred      JoinPredicate
	aggregate AggregateFunc
	arrivals  []string
}

// NewAggregatorJoin creates a predicate-driven join with a pre-merge
// aggregation step.
func NewAggregatorJoin(pred JoinPredicate, aggregate AggregateFunc) *AggregatorJoin {
	return &AggregatorJoin{pred: pred, aggregate: aggregate}
}

func (j *AggregatorJoin) MarkComplete(source string) {
	j.arrivals = append(j.arrivals, source)
}

func (j *AggregatorJoin) IsSatisfied() bool {
	return j.pred(append([]string(nil), j.arrivals...))
}

func (j *AggregatorJoin) Reset() {
	j.arrivals = nil
}

func (j *AggregatorJoin) Clone() JoinStrategy {
	return NewAggregatorJoin(j.pred, j.aggregate)
}

// Aggregate applies the aggregate function to the buffered outputs. A nil
// function passes the values through unchanged.
func (j *AggregatorJoin) Aggregate(values []any) []any {
	if j.aggregate == nil {
		return values
	}
	return j.aggregate(values)
}

// PerArrivalJoin is satisfied on every single arrival, so each partial
// result independently triggers downstream work. It is also the default for
// states with a single incoming transition.
type PerArrivalJoin struct {
	pending int
}

// NewPerArrivalJoin creates a join that fires on every arrival.
func NewPerArrivalJoin() *PerArrivalJoin {
	return &PerArrivalJoin{}
}

func (j *PerArrivalJoin) MarkComplete(string) {
	j.pending++
}

func (j *PerArrivalJoin) IsSatisfied() bool {
	return j.pending > 0
}

func (j *PerArrivalJoin) Reset() {
	j.pending = 0
}

func (j *PerArrivalJoin) Clone() JoinStrategy {
	return NewPerArrivalJoin()
}
