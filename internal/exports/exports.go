// Package exports implements the cross-unit reference store.
//
// A producing unit writes each identifier once under a name; consuming units
// read it by name. The store lives for one orchestration run and is passed
// explicitly to every unit.
package exports

import (
	"sort"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
)

// Export is a published identifier.
type Export struct {
	Name string
	// Stack is the name of the producing stack.
	Stack string
	// Region is the producing stack's region.
	Region string
	// Output is the logical name of the Output carrying the value.
	Output string
	// Value is the in-stack expression of the identifier (a Ref or GetAtt).
	Value any
}

// Store is an append-only registry of exports.
type Store struct {
	entries map[string]Export
	read    map[string]bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]Export),
		read:    make(map[string]bool),
	}
}

// Put records e. It fails if the name exists already or if a reader asked
// for the name before it was written.
func (s *Store) Put(e Export) error {
	if prev, ok := s.entries[e.Name]; ok {
		return &infra.DuplicateExportError{Name: e.Name, Producer: prev.Stack}
	}
	if s.read[e.Name] {
		return &infra.DuplicateExportError{Name: e.Name, Producer: e.Stack, AfterRead: true}
	}
	s.entries[e.Name] = e
	return nil
}

// Get returns the export called name. A failed read still counts as a read,
// so a later Put of the same name is rejected.
func (s *Store) Get(name string) (Export, error) {
	s.read[name] = true
	e, ok := s.entries[name]
	if !ok {
		return Export{}, &infra.NotFoundError{Name: name}
	}
	return e, nil
}

// Names returns every export name, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByStack returns the exports written by the named stack, sorted by name.
func (s *Store) ByStack(stack string) []Export {
	var out []Export
	for _, name := range s.Names() {
		if e := s.entries[name]; e.Stack == stack {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of exports.
func (s *Store) Len() int {
	return len(s.entries)
}
