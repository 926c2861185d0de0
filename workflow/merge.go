package workflow

import (
	"fmt"
	"reflect"
	"strings"
)

// MergeStrategy combines the buffered branch outputs of a converging state
// into one value once its join is satisfied. Merge must be pure and must not
// mutate the input slice.
type MergeStrategy interface {
	Merge(values []any) any
}

// ConcatMerge string-concatenates the string conversion of each buffered
// output in arrival order.
type ConcatMerge struct{}

func (ConcatMerge) Merge(values []any) any {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(stringify(v))
	}
	return b.String()
}

// DictMerge shallow-merges buffered outputs that are mappings; later keys
// overwrite earlier ones. Non-mapping outputs are silently dropped, yielding
// an empty map when no output is a mapping.
type DictMerge struct{}

func (DictMerge) Merge(values []any) any {
	out := make(map[string]any)
	for _, v := range values {
		m, ok := stringKeyedMap(v)
		if !ok {
			continue
		}
		for k, mv := range m {
			out[k] = mv
		}
	}
	return out
}

// ListMerge returns the buffered outputs as a fresh slice, preserving
// arrival order.
type ListMerge struct{}

func (ListMerge) Merge(values []any) any {
	return append([]any(nil), values...)
}

// FlattenMerge returns a new slice where any buffered output that is itself
// a sequence is spliced in place. Only one level is flattened.
type FlattenMerge struct{}

func (FlattenMerge) Merge(values []any) any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if elems, ok := sequenceElements(v); ok {
			out = append(out, elems...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// CustomMerge delegates entirely to a caller-supplied function.
type CustomMerge struct {
	fn func(values []any) any
}

// NewCustomMerge wraps fn as a MergeStrategy.
func NewCustomMerge(fn func(values []any) any) *CustomMerge {
	return &CustomMerge{fn: fn}
}

func (m *CustomMerge) Merge(values []any) any {
	return m.fn(values)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// stringKeyedMap extracts a string-keyed map view of v, covering
// map[string]any directly and other string-keyed map types via reflection.
func stringKeyedMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// sequenceElements extracts the elements of v when v is a sequence. Strings
// and byte slices are not treated as sequences.
func sequenceElements(v any) ([]any, bool) {
	if elems, ok := v.([]any); ok {
		return append([]any(nil), elems...), true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
