// Package stack holds the in-memory model of one provisioning unit: its
// resources, the dependency graph between them, its parameters and outputs,
// and the references it takes from other stacks.
//
// Builders declare resources in order with Add. Property values may contain
// intrinsics; every Ref, Fn::GetAtt and Fn::Sub variable naming another
// resource becomes a dependency edge, and naming a resource that was not
// declared yet is an error. Errors are sticky: after the first failure every
// later call is a no-op and Err reports the failure.
package stack

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/iancoleman/strcase"
	"go.uber.org/zap"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

var logicalIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// Resource is a declared resource.
type Resource struct {
	ID                  string
	Type                string
	Properties          map[string]any
	DependsOn           []string
	DeletionPolicy      string
	UpdateReplacePolicy string

	refs []string
}

// Ref returns {"Ref": ID}.
func (r *Resource) Ref() intrinsics.Ref {
	return intrinsics.Ref{LogicalName: r.ID}
}

// GetAtt returns {"Fn::GetAtt": [ID, attr]}.
func (r *Resource) GetAtt(attr string) intrinsics.GetAtt {
	return intrinsics.GetAtt{LogicalName: r.ID, Attribute: attr}
}

// References returns the resources this one refers to through its properties,
// in the order they first appear.
func (r *Resource) References() []string {
	return r.refs
}

// Edge is a dependency between two resources of the same stack: From must be
// created before To.
type Edge struct {
	From     string
	To       string
	Explicit bool
}

// Stack is one provisioning unit.
type Stack struct {
	Name        string
	Region      string
	Account     string
	Description string

	log       *zap.Logger
	tags      map[string]string
	resources map[string]*Resource
	order     []string
	index     map[string]int
	deps      graph.Graph[string, string]

	params     map[string]infra.Parameter
	outputs    map[string]infra.Output
	imports    map[string]any
	bindings   []infra.ParameterBinding
	dependsOn  map[string]bool
	exportsOut int

	err error
}

// New returns an empty stack.
func New(name, region, account string, log *zap.Logger) *Stack {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stack{
		Name:      name,
		Region:    region,
		Account:   account,
		log:       log.With(zap.String("stack", name)),
		tags:      make(map[string]string),
		resources: make(map[string]*Resource),
		index:     make(map[string]int),
		deps:      graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
		params:    make(map[string]infra.Parameter),
		outputs:   make(map[string]infra.Output),
		imports:   make(map[string]any),
		dependsOn: make(map[string]bool),
	}
}

// LogicalID converts a resource name such as "pvt-a-subnet" into a
// CloudFormation logical ID ("PvtASubnet").
func LogicalID(name string) string {
	return strcase.ToCamel(name)
}

// Err returns the first error met while building the stack.
func (s *Stack) Err() error {
	return s.err
}

func (s *Stack) fail(err error) {
	if s.err == nil {
		s.err = fmt.Errorf("stack %s: %w", s.Name, err)
		s.log.Debug("stack failed", zap.Error(err))
	}
}

// Tag sets a stack tag. The provisioning backend propagates stack tags to
// every taggable resource of the stack.
func (s *Stack) Tag(key, value string) {
	s.tags[key] = value
}

// Tags returns a copy of the stack tags.
func (s *Stack) Tags() map[string]string {
	out := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		out[k] = v
	}
	return out
}

// Add declares a resource. name is converted with LogicalID. The returned
// resource is never nil, so calls can be chained; check Err once the stack
// is complete.
func (s *Stack) Add(name, typ string, props map[string]any) *Resource {
	id := LogicalID(name)
	r := &Resource{ID: id, Type: typ}
	if s.err != nil {
		return r
	}

	if !logicalIDPattern.MatchString(id) {
		s.fail(fmt.Errorf("invalid logical id %q for resource %q", id, name))
		return r
	}
	if _, ok := s.resources[id]; ok {
		s.fail(&infra.TopologyError{Reason: fmt.Sprintf("resource %s declared twice", id)})
		return r
	}
	if _, ok := s.params[id]; ok {
		s.fail(&infra.TopologyError{Reason: fmt.Sprintf("resource %s clashes with a parameter", id)})
		return r
	}

	normalized, err := normalize(props)
	if err != nil {
		s.fail(fmt.Errorf("resource %s: %w", id, err))
		return r
	}
	if normalized != nil {
		r.Properties = normalized.(map[string]any)
	}

	for _, ref := range s.scan(r.Properties) {
		if _, ok := s.resources[ref]; !ok {
			s.fail(&infra.TopologyError{Reason: fmt.Sprintf("%s references undeclared resource %s", id, ref)})
			return r
		}
		r.refs = append(r.refs, ref)
	}

	if err := s.deps.AddVertex(id); err != nil {
		s.fail(err)
		return r
	}
	for _, ref := range r.refs {
		if err := s.deps.AddEdge(ref, id); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			s.fail(err)
			return r
		}
	}

	s.resources[id] = r
	s.index[id] = len(s.order)
	s.order = append(s.order, id)

	s.log.Debug("resource declared",
		zap.String("resource", id),
		zap.String("type", typ),
		zap.Strings("refs", r.refs),
	)
	return r
}

// DependsOn declares that r must be created after each of deps, even when
// none of r's properties refer to them.
func (s *Stack) DependsOn(r *Resource, deps ...*Resource) {
	if s.err != nil {
		return
	}
	if s.resources[r.ID] != r {
		s.fail(fmt.Errorf("resource %s does not belong to this stack", r.ID))
		return
	}
	for _, dep := range deps {
		if s.resources[dep.ID] != dep {
			s.fail(fmt.Errorf("dependency %s of %s does not belong to this stack", dep.ID, r.ID))
			return
		}
		err := s.deps.AddEdge(dep.ID, r.ID)
		switch {
		case errors.Is(err, graph.ErrEdgeCreatesCycle):
			s.fail(&infra.TopologyError{Reason: fmt.Sprintf("%s depending on %s creates a cycle", r.ID, dep.ID)})
			return
		case err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists):
			s.fail(err)
			return
		}
		if !contains(r.DependsOn, dep.ID) {
			r.DependsOn = append(r.DependsOn, dep.ID)
		}
	}
}

// Retain keeps the resource when it is removed from the template or the
// stack is deleted.
func (s *Stack) Retain(r *Resource) {
	r.DeletionPolicy = "Retain"
	r.UpdateReplacePolicy = "Retain"
}

// AddParameter declares a template parameter and returns a Ref to it.
func (s *Stack) AddParameter(name string, p infra.Parameter) intrinsics.Ref {
	id := LogicalID(name)
	ref := intrinsics.Ref{LogicalName: id}
	if s.err != nil {
		return ref
	}
	if _, ok := s.params[id]; ok {
		s.fail(fmt.Errorf("parameter %s declared twice", id))
		return ref
	}
	if _, ok := s.resources[id]; ok {
		s.fail(fmt.Errorf("parameter %s clashes with a resource", id))
		return ref
	}
	s.params[id] = p
	return ref
}

// AddOutput declares a plain template output.
func (s *Stack) AddOutput(name string, value any, description string) {
	s.addOutput(LogicalID(name), value, description, "")
}

func (s *Stack) addOutput(id string, value any, description, exportName string) any {
	if s.err != nil {
		return nil
	}
	if _, ok := s.outputs[id]; ok {
		s.fail(fmt.Errorf("output %s declared twice", id))
		return nil
	}
	normalized, err := normalize(value)
	if err != nil {
		s.fail(fmt.Errorf("output %s: %w", id, err))
		return nil
	}
	for _, ref := range s.scan(normalized) {
		if _, ok := s.resources[ref]; !ok {
			s.fail(&infra.TopologyError{Reason: fmt.Sprintf("output %s references undeclared resource %s", id, ref)})
			return nil
		}
	}
	out := infra.Output{Description: description, Value: normalized}
	if exportName != "" {
		out.Export = &infra.OutputExport{Name: exportName}
	}
	s.outputs[id] = out
	return normalized
}

// Resource returns the resource with the given logical ID.
func (s *Stack) Resource(id string) (*Resource, bool) {
	r, ok := s.resources[id]
	return r, ok
}

// Len returns the number of declared resources.
func (s *Stack) Len() int {
	return len(s.order)
}

// Declared returns the logical IDs in declaration order.
func (s *Stack) Declared() []string {
	return append([]string(nil), s.order...)
}

// Order returns the logical IDs in a stable topological order: every
// resource comes after the resources it depends on, and declaration order
// breaks ties.
func (s *Stack) Order() ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return graph.StableTopologicalSort(s.deps, func(a, b string) bool {
		return s.index[a] < s.index[b]
	})
}

// Edges returns every dependency edge, sorted by the declaration index of
// the dependent resource and then of the dependency.
func (s *Stack) Edges() []Edge {
	var edges []Edge
	for _, id := range s.order {
		r := s.resources[id]
		seen := make(map[string]bool)
		for _, ref := range r.refs {
			if !seen[ref] {
				seen[ref] = true
				edges = append(edges, Edge{From: ref, To: id, Explicit: contains(r.DependsOn, ref)})
			}
		}
		for _, dep := range r.DependsOn {
			if !seen[dep] {
				seen[dep] = true
				edges = append(edges, Edge{From: dep, To: id, Explicit: true})
			}
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if s.index[edges[i].To] != s.index[edges[j].To] {
			return s.index[edges[i].To] < s.index[edges[j].To]
		}
		return s.index[edges[i].From] < s.index[edges[j].From]
	})
	return edges
}

// Parameters returns the declared parameters.
func (s *Stack) Parameters() map[string]infra.Parameter {
	return s.params
}

// Outputs returns the declared outputs.
func (s *Stack) Outputs() map[string]infra.Output {
	return s.outputs
}

// Bindings returns the cross-region parameter bindings, in import order.
func (s *Stack) Bindings() []infra.ParameterBinding {
	return s.bindings
}

// Dependencies returns the names of the stacks this one imports from, sorted.
func (s *Stack) Dependencies() []string {
	out := make([]string, 0, len(s.dependsOn))
	for name := range s.dependsOn {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ExportCount returns how many exports the stack published.
func (s *Stack) ExportCount() int {
	return s.exportsOut
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// isPseudo reports whether a Ref target is a pseudo parameter (AWS::Region).
func isPseudo(name string) bool {
	return strings.Contains(name, "::")
}
