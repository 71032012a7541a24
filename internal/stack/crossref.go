package stack

import (
	"fmt"

	"go.uber.org/zap"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

// Export publishes value under name: the stack gets an Output carrying
// Export.Name and the store gets an entry consumers can import.
func (s *Stack) Export(store *exports.Store, name string, value any) {
	if s.err != nil {
		return
	}
	normalized, err := normalize(value)
	if err != nil {
		s.fail(fmt.Errorf("export %s: %w", name, err))
		return
	}

	id := LogicalID(name)
	if err := store.Put(exports.Export{
		Name:   name,
		Stack:  s.Name,
		Region: s.Region,
		Output: id,
		Value:  normalized,
	}); err != nil {
		s.fail(err)
		return
	}
	s.addOutput(id, normalized, "", name)
	if s.err != nil {
		return
	}
	s.exportsOut++
	s.log.Debug("export published", zap.String("export", name))
}

// Import returns an expression resolving to the export called name.
//
// Within the producing stack this is the original value. From a stack in the
// same region it is Fn::ImportValue. Across regions, where ImportValue does
// not work, it is a Ref to a new template parameter together with a binding
// telling the backend which output fills it. Both cases make this stack
// depend on the producer.
func (s *Stack) Import(store *exports.Store, name string) any {
	if s.err != nil {
		return nil
	}
	if v, ok := s.imports[name]; ok {
		return v
	}

	e, err := store.Get(name)
	if err != nil {
		s.fail(err)
		return nil
	}

	var value any
	switch {
	case e.Stack == s.Name:
		value = e.Value
	case e.Region == s.Region:
		value = intrinsics.ImportValue{ExportName: name}
		s.dependsOn[e.Stack] = true
	default:
		param := LogicalID(name)
		value = s.AddParameter(param, infra.Parameter{
			Type:        "String",
			Description: fmt.Sprintf("%s exported by %s in %s", name, e.Stack, e.Region),
		})
		s.bindings = append(s.bindings, infra.ParameterBinding{
			Parameter:  param,
			FromStack:  e.Stack,
			FromRegion: e.Region,
			OutputName: e.Output,
			ExportName: name,
		})
		s.dependsOn[e.Stack] = true
	}

	s.imports[name] = value
	s.log.Debug("export imported", zap.String("export", name), zap.String("from", e.Stack))
	return value
}
