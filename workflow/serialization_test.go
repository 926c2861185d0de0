package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefinition() *GraphDefinition {
	return &GraphDefinition{
		Name:        "ticket-routing",
		Description: "classify and fan work out to handlers",
		States: []StateDefinition{
			{Name: "classify", Executor: "classify"},
			{Name: "chunk", Executor: "chunk"},
			{Name: "work", Executor: "work", InputMode: "split"},
			{Name: "collect", Executor: "collect", Merge: "list",
				Join: &JoinDefinition{Type: "all", Branches: []string{"classify", "work"}}},
		},
		Transitions: []TransitionDefinition{
			{From: "classify", To: "chunk"},
			{From: "chunk", To: "work"},
			{From: "classify", To: "collect"},
			{From: "work", To: "collect"},
		},
	}
}

func sampleRegistry() *Registry {
	reg := NewRegistry()
	reg.RegisterExecutor("classify", constExec("classified"))
	reg.RegisterExecutor("chunk", constExec([]any{"a", "b"}))
	reg.RegisterExecutor("work", passthroughExec())
	reg.RegisterExecutor("collect", passthroughExec())
	return reg
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestGraphDefinition_Validate(t *testing.T) {
	require.NoError(t, sampleDefinition().Validate())
}

func TestGraphDefinition_ValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GraphDefinition)
	}{
		{"missing name", func(d *GraphDefinition) { d.Name = "" }},
		{"no states", func(d *GraphDefinition) { d.States = nil }},
		{"unnamed state", func(d *GraphDefinition) { d.States[0].Name = "" }},
		{"duplicate state", func(d *GraphDefinition) { d.States[1].Name = d.States[0].Name }},
		{"missing executor", func(d *GraphDefinition) { d.States[0].Executor = "" }},
		{"unknown join type", func(d *GraphDefinition) {
			d.States[3].Join = &JoinDefinition{Type: "quorum"}
		}},
		{"all join without branches", func(d *GraphDefinition) {
			d.States[3].Join = &JoinDefinition{Type: "all"}
		}},
		{"nofm out of range", func(d *GraphDefinition) {
			d.States[3].Join = &JoinDefinition{Type: "nofm", N: 3, Branches: []string{"a", "b"}}
		}},
		{"custom join without name", func(d *GraphDefinition) {
			d.States[3].Join = &JoinDefinition{Type: "custom"}
		}},
		{"transition from undeclared state", func(d *GraphDefinition) {
			d.Transitions[0].From = "ghost"
		}},
		{"transition to undeclared state", func(d *GraphDefinition) {
			d.Transitions[0].To = "ghost"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := sampleDefinition()
			tt.mutate(def)
			err := def.Validate()
			require.Error(t, err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

func TestGraphDefinition_YAMLRoundTrip(t *testing.T) {
	def := sampleDefinition()

	s, err := def.ToYAML()
	require.NoError(t, err)

	parsed, err := DefinitionFromYAML(s)
	require.NoError(t, err)
	assert.Equal(t, def, parsed)
}

func TestGraphDefinition_JSONRoundTrip(t *testing.T) {
	def := sampleDefinition()

	s, err := def.ToJSON()
	require.NoError(t, err)

	parsed, err := DefinitionFromJSON(s)
	require.NoError(t, err)
	assert.Equal(t, def, parsed)
}

func TestDefinitionFromYAML_Invalid(t *testing.T) {
	_, err := DefinitionFromYAML("::: not yaml")
	assert.Error(t, err)

	// Parses but fails structural validation.
	_, err = DefinitionFromYAML("name: broken\nstates: []\n")
	require.Error(t, err)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestGraphDefinition_FileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	def := sampleDefinition()

	yamlPath := filepath.Join(dir, "graph.yaml")
	require.NoError(t, def.SaveToYAMLFile(yamlPath))
	fromYAML, err := LoadDefinitionFromYAMLFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, def, fromYAML)

	jsonPath := filepath.Join(dir, "graph.json")
	require.NoError(t, def.SaveToJSONFile(jsonPath))
	fromJSON, err := LoadDefinitionFromJSONFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, def, fromJSON)

	_, err = LoadDefinitionFromYAMLFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// ---------------------------------------------------------------------------
// Graph building
// ---------------------------------------------------------------------------

func TestGraphDefinition_BuildGraph(t *testing.T) {
	g, err := sampleDefinition().BuildGraph(sampleRegistry())
	require.NoError(t, err)

	results, err := g.Run(context.Background(), map[string]any{"classify": nil})
	require.NoError(t, err)

	assert.Equal(t, "classified", results["classify"])
	merged, ok := results["collect"].([]any)
	require.True(t, ok)
	assert.Len(t, merged, 2)
}

func TestGraphDefinition_BuildGraph_CustomBindings(t *testing.T) {
	def := &GraphDefinition{
		Name: "custom",
		States: []StateDefinition{
			{Name: "A", Executor: "emit"},
			{Name: "B", Executor: "emit"},
			{Name: "C", Executor: "sink", Merge: "max",
				Join: &JoinDefinition{Type: "custom", Name: "pair"}},
		},
		Transitions: []TransitionDefinition{
			{From: "A", To: "C"},
			{From: "B", To: "C", Condition: "go"},
		},
	}

	reg := NewRegistry()
	reg.RegisterExecutor("emit", constExec(7))
	reg.RegisterExecutor("sink", passthroughExec())
	reg.RegisterCondition("go", alwaysTrue())
	reg.RegisterMergeStrategy("max", NewCustomMerge(func(values []any) any {
		max := 0
		for _, v := range values {
			if n := v.(int); n > max {
				max = n
			}
		}
		return max
	}))
	reg.RegisterJoinStrategy("pair", NewConditionalJoin(func(arrivals []string) bool {
		return len(arrivals) >= 2
	}))

	g, err := def.BuildGraph(reg)
	require.NoError(t, err)

	results, err := g.Run(context.Background(), map[string]any{"A": nil, "B": nil})
	require.NoError(t, err)
	assert.Equal(t, 7, results["C"])
}

func TestGraphDefinition_BuildGraph_BatchBinding(t *testing.T) {
	def := &GraphDefinition{
		Name: "batched",
		States: []StateDefinition{
			{Name: "chunk", Executor: "chunk"},
			{Name: "work", Executor: "work", InputMode: "split"},
		},
		Transitions: []TransitionDefinition{{From: "chunk", To: "work"}},
	}

	var batchCalls int
	reg := NewRegistry()
	reg.RegisterExecutor("chunk", constExec([]any{1, 2, 3}))
	reg.RegisterExecutor("work", passthroughExec())
	reg.RegisterBatchExecutor("work", BatchExecutorFunc(func(_ context.Context, inputs []any) ([]any, error) {
		batchCalls++
		return inputs, nil
	}))

	g, err := def.BuildGraph(reg)
	require.NoError(t, err)

	_, err = g.Run(context.Background(), map[string]any{"chunk": nil})
	require.NoError(t, err)
	assert.Equal(t, 1, batchCalls)
}

func TestGraphDefinition_BuildGraph_MissingBindings(t *testing.T) {
	def := sampleDefinition()

	_, err := def.BuildGraph(NewRegistry())
	require.Error(t, err)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	def.Transitions[0].Condition = "unregistered"
	_, err = def.BuildGraph(sampleRegistry())
	require.Error(t, err)
	assert.True(t, errors.As(err, &verr))
}

func TestGraphDefinition_BuildGraph_UnknownInputMode(t *testing.T) {
	def := sampleDefinition()
	def.States[0].InputMode = "sideways"
	_, err := def.BuildGraph(sampleRegistry())
	require.Error(t, err)
}

func TestGraphDefinition_BuildGraph_UnknownMerge(t *testing.T) {
	def := sampleDefinition()
	def.States[3].Merge = "unregistered"
	_, err := def.BuildGraph(sampleRegistry())
	require.Error(t, err)
}
