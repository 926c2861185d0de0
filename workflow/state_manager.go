package workflow

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxSummaryLen caps the length of run-log input/output summaries.
const maxSummaryLen = 120

// BufferEntry is one branch output buffered at a convergence point.
type BufferEntry struct {
	Source string
	Value  any
}

// LogEntry is one record of the append-only run log. The log exists for
// replay and debugging only; engine logic never consults it.
type LogEntry struct {
	State     string    `json:"state"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
}

// StateManager owns the per-state buffers of in-flight branch outputs, the
// results map of most recent outputs, and the run log, for the duration of
// one run. Every mutation happens under a single mutex so join satisfaction
// checks never observe a torn read, even under parallel execution.
type StateManager struct {
	mu      sync.Mutex
	buffers map[string][]BufferEntry
	results Results
	log     []LogEntry
	logger  *zap.Logger
}

// NewStateManager creates an empty state manager. A nil logger falls back to
// a no-op logger.
func NewStateManager(logger *zap.Logger) *StateManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateManager{
		buffers: make(map[string][]BufferEntry),
		results: make(Results),
		logger:  logger.With(zap.String("component", "state_manager")),
	}
}

// BufferInput appends a branch output to the target state's buffer and
// returns a copy of the post-append buffer.
func (sm *StateManager) BufferInput(state, source string, value any) []BufferEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.buffers[state] = append(sm.buffers[state], BufferEntry{Source: source, Value: value})
	sm.logger.Debug("buffered branch output",
		zap.String("state", state),
		zap.String("source", source),
		zap.Int("buffer_len", len(sm.buffers[state])),
	)
	return append([]BufferEntry(nil), sm.buffers[state]...)
}

// GetBuffer returns a copy of the state's buffer without clearing it.
func (sm *StateManager) GetBuffer(state string) []BufferEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]BufferEntry(nil), sm.buffers[state]...)
}

// PopBuffer returns the state's buffered entries and clears the buffer in
// one atomic step. Used at fire time.
func (sm *StateManager) PopBuffer(state string) []BufferEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	entries := sm.buffers[state]
	delete(sm.buffers, state)
	return entries
}

// UpdateState records the state's most recent produced output.
func (sm *StateManager) UpdateState(state string, value any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.results[state] = value
}

// GetState returns the state's most recent output. A state that has never
// produced output yields an InvalidTransitionError; callers depending on
// unproduced state must guard via a Condition first.
func (sm *StateManager) GetState(state string) (any, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	v, ok := sm.results[state]
	if !ok {
		return nil, &InvalidTransitionError{State: state, Reason: "state has not produced output"}
	}
	return v, nil
}

// ResultsSnapshot returns a copy of the results map.
func (sm *StateManager) ResultsSnapshot() Results {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	snap := make(Results, len(sm.results))
	for k, v := range sm.results {
		snap[k] = v
	}
	return snap
}

// Log appends one record to the run log.
func (sm *StateManager) Log(entry LogEntry) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.log = append(sm.log, entry)
}

// RunLog returns a copy of the run log.
func (sm *StateManager) RunLog() []LogEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]LogEntry(nil), sm.log...)
}

// Reset clears all buffers, results and the run log.
func (sm *StateManager) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.buffers = make(map[string][]BufferEntry)
	sm.results = make(Results)
	sm.log = nil
}

// summarize renders a value for the run log, truncated to keep entries
// bounded.
func summarize(v any) string {
	s := fmt.Sprintf("%v", v)
	runes := []rune(s)
	if len(runes) <= maxSummaryLen {
		return s
	}
	return string(runes[:maxSummaryLen]) + "..."
}
