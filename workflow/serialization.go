package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GraphDefinition is the serializable form of a workflow graph: states with
// their policy names, and transitions with optional condition names. Runtime
// behavior (executors, custom conditions, merges, joins) is bound through a
// Registry at build time.
type GraphDefinition struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	States      []StateDefinition      `json:"states" yaml:"states"`
	Transitions []TransitionDefinition `json:"transitions" yaml:"transitions"`
}

// StateDefinition declares one state and its convergence policies.
type StateDefinition struct {
	Name      string          `json:"name" yaml:"name"`
	Executor  string          `json:"executor" yaml:"executor"`
	InputMode string          `json:"input_mode,omitempty" yaml:"input_mode,omitempty"`
	Merge     string          `json:"merge,omitempty" yaml:"merge,omitempty"`
	Join      *JoinDefinition `json:"join,omitempty" yaml:"join,omitempty"`
}

// JoinDefinition declares a state's join strategy.
type JoinDefinition struct {
	Type     string   `json:"type" yaml:"type"`
	N        int      `json:"n,omitempty" yaml:"n,omitempty"`
	Branches []string `json:"branches,omitempty" yaml:"branches,omitempty"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// TransitionDefinition declares one edge. An empty condition name means the
// transition is always taken.
type TransitionDefinition struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Registry binds the names used in a GraphDefinition to runtime behavior.
type Registry struct {
	executors  map[string]Executor
	batches    map[string]BatchExecutor
	conditions map[string]Condition
	merges     map[string]MergeStrategy
	joins      map[string]JoinStrategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executors:  make(map[string]Executor),
		batches:    make(map[string]BatchExecutor),
		conditions: make(map[string]Condition),
		merges:     make(map[string]MergeStrategy),
		joins:      make(map[string]JoinStrategy),
	}
}

// RegisterExecutor binds an executor name.
func (r *Registry) RegisterExecutor(name string, exec Executor) {
	r.executors[name] = exec
}

// RegisterBatchExecutor binds a batch executor to a state's executor name.
func (r *Registry) RegisterBatchExecutor(name string, batch BatchExecutor) {
	r.batches[name] = batch
}

// RegisterCondition binds a condition name.
func (r *Registry) RegisterCondition(name string, cond Condition) {
	r.conditions[name] = cond
}

// RegisterMergeStrategy binds a custom merge strategy name.
func (r *Registry) RegisterMergeStrategy(name string, merge MergeStrategy) {
	r.merges[name] = merge
}

// RegisterJoinStrategy binds a custom join strategy name. The registered
// strategy acts as a prototype; each graph build takes a clone.
func (r *Registry) RegisterJoinStrategy(name string, join JoinStrategy) {
	r.joins[name] = join
}

// Validate checks the definition's structure: required fields, unique state
// names, transitions referencing declared states, and known join types.
func (d *GraphDefinition) Validate() error {
	if d.Name == "" {
		return newValidationErrorf("definition requires a name")
	}
	if len(d.States) == 0 {
		return newValidationErrorf("definition %q has no states", d.Name)
	}
	names := make(map[string]bool, len(d.States))
	for _, s := range d.States {
		if s.Name == "" {
			return newValidationErrorf("definition %q: state name is required", d.Name)
		}
		if names[s.Name] {
			return newValidationErrorf("definition %q: duplicate state %q", d.Name, s.Name)
		}
		names[s.Name] = true
		if s.Executor == "" {
			return newValidationErrorf("definition %q: state %q requires an executor", d.Name, s.Name)
		}
		if s.Join != nil {
			switch s.Join.Type {
			case "all", "nofm":
				if len(s.Join.Branches) == 0 {
					return newValidationErrorf("definition %q: state %q: %s join requires branches", d.Name, s.Name, s.Join.Type)
				}
				if s.Join.Type == "nofm" && (s.Join.N < 1 || s.Join.N > len(s.Join.Branches)) {
					return newValidationErrorf("definition %q: state %q: nofm join requires 1 <= n <= len(branches)", d.Name, s.Name)
				}
			case "first", "per_arrival":
			case "custom":
				if s.Join.Name == "" {
					return newValidationErrorf("definition %q: state %q: custom join requires a name", d.Name, s.Name)
				}
			default:
				return newValidationErrorf("definition %q: state %q: unknown join type %q", d.Name, s.Name, s.Join.Type)
			}
		}
	}
	for _, t := range d.Transitions {
		if !names[t.From] {
			return newValidationErrorf("definition %q: transition references undeclared state %q", d.Name, t.From)
		}
		if !names[t.To] {
			return newValidationErrorf("definition %q: transition references undeclared state %q", d.Name, t.To)
		}
	}
	return nil
}

// BuildGraph binds the definition against the registry and produces a
// runnable WorkflowGraph.
func (d *GraphDefinition) BuildGraph(reg *Registry, opts ...GraphOption) (*WorkflowGraph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	g := NewWorkflowGraph(d.Name, opts...)
	for _, s := range d.States {
		exec, ok := reg.executors[s.Executor]
		if !ok {
			return nil, newValidationErrorf("definition %q: state %q: executor %q is not registered", d.Name, s.Name, s.Executor)
		}
		var nodeOpts []NodeOption
		mode, err := parseInputMode(s.InputMode)
		if err != nil {
			return nil, fmt.Errorf("definition %q: state %q: %w", d.Name, s.Name, err)
		}
		if mode != nil {
			nodeOpts = append(nodeOpts, WithInputMode(mode))
		}
		merge, err := resolveMerge(reg, s.Merge)
		if err != nil {
			return nil, fmt.Errorf("definition %q: state %q: %w", d.Name, s.Name, err)
		}
		if merge != nil {
			nodeOpts = append(nodeOpts, WithMergeStrategy(merge))
		}
		if s.Join != nil {
			join, err := resolveJoin(reg, s.Join)
			if err != nil {
				return nil, fmt.Errorf("definition %q: state %q: %w", d.Name, s.Name, err)
			}
			nodeOpts = append(nodeOpts, WithJoinStrategy(join))
		}
		if batch, ok := reg.batches[s.Executor]; ok {
			nodeOpts = append(nodeOpts, WithBatchExecutor(batch))
		}
		node, err := NewNode(s.Name, exec, nodeOpts...)
		if err != nil {
			return nil, err
		}
		if err := g.AddState(node); err != nil {
			return nil, err
		}
	}
	for _, t := range d.Transitions {
		var cond Condition
		if t.Condition != "" {
			c, ok := reg.conditions[t.Condition]
			if !ok {
				return nil, newValidationErrorf("definition %q: condition %q is not registered", d.Name, t.Condition)
			}
			cond = c
		}
		if err := g.AddTransition(t.From, t.To, cond); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func parseInputMode(name string) (InputMode, error) {
	switch name {
	case "", "previous":
		return nil, nil
	case "first":
		return FirstInput{}, nil
	case "last":
		return LastInput{}, nil
	case "aggregate":
		return AggregateInput{}, nil
	case "split":
		return SplitInput{}, nil
	default:
		return nil, newValidationErrorf("unknown input mode %q", name)
	}
}

func resolveMerge(reg *Registry, name string) (MergeStrategy, error) {
	switch name {
	case "":
		return nil, nil
	case "concat":
		return ConcatMerge{}, nil
	case "dict":
		return DictMerge{}, nil
	case "list":
		return ListMerge{}, nil
	case "flatten":
		return FlattenMerge{}, nil
	}
	if m, ok := reg.merges[name]; ok {
		return m, nil
	}
	return nil, newValidationErrorf("unknown merge strategy %q", name)
}

func resolveJoin(reg *Registry, def *JoinDefinition) (JoinStrategy, error) {
	switch def.Type {
	case "all":
		return NewAllJoin(def.Branches...), nil
	case "first":
		return NewFirstJoin(), nil
	case "nofm":
		return NewNofMJoin(def.N, def.Branches...), nil
	case "per_arrival":
		return NewPerArrivalJoin(), nil
	case "custom":
		j, ok := reg.joins[def.Name]
		if !ok {
			return nil, newValidationErrorf("custom join %q is not registered", def.Name)
		}
		return j.Clone(), nil
	}
	return nil, newValidationErrorf("unknown join type %q", def.Type)
}

// ToJSON renders the definition as indented JSON.
func (d *GraphDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal definition to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML renders the definition as YAML.
func (d *GraphDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal definition to YAML: %w", err)
	}
	return string(data), nil
}

// DefinitionFromJSON parses and structurally validates a JSON definition.
func DefinitionFromJSON(jsonStr string) (*GraphDefinition, error) {
	var def GraphDefinition
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition from JSON: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// DefinitionFromYAML parses and structurally validates a YAML definition.
func DefinitionFromYAML(yamlStr string) (*GraphDefinition, error) {
	var def GraphDefinition
	if err := yaml.Unmarshal([]byte(yamlStr), &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition from YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinitionFromJSONFile loads a definition from a JSON file.
func LoadDefinitionFromJSONFile(filename string) (*GraphDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read definition file: %w", err)
	}
	return DefinitionFromJSON(string(data))
}

// LoadDefinitionFromYAMLFile loads a definition from a YAML file.
func LoadDefinitionFromYAMLFile(filename string) (*GraphDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read definition file: %w", err)
	}
	return DefinitionFromYAML(string(data))
}

// SaveToYAMLFile writes the definition to a YAML file.
func (d *GraphDefinition) SaveToYAMLFile(filename string) error {
	s, err := d.ToYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, []byte(s), 0o644); err != nil {
		return fmt.Errorf("write definition file: %w", err)
	}
	return nil
}

// SaveToJSONFile writes the definition to a JSON file.
func (d *GraphDefinition) SaveToJSONFile(filename string) error {
	s, err := d.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, []byte(s), 0o644); err != nil {
		return fmt.Errorf("write definition file: %w", err)
	}
	return nil
}
