// Package differ compares synthesized templates with a previous output
// directory, resource by resource.
package differ

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/r3labs/diff"
	"gopkg.in/yaml.v3"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
)

// ManifestFile is the manifest name inside an output directory.
const ManifestFile = "manifest.json"

// Options configures the differ.
type Options struct {
	// IgnoreOrder ignores array element order in comparisons.
	IgnoreOrder bool
}

// Result contains the difference between two templates or assemblies.
type Result struct {
	Diff    infra.TemplateDiff `json:"diff"`
	Summary infra.DiffSummary  `json:"summary"`
}

// Empty reports whether nothing changed.
func (r *Result) Empty() bool {
	return r.Summary.Total == 0
}

// Compare compares two templates and returns the differences.
func Compare(template1, template2 *infra.Template, opts Options) (*Result, error) {
	result := &Result{}
	compareTemplates(result, "", template1, template2, opts)
	result.finish()
	return result, nil
}

// CompareAssembly compares the templates of two assemblies, keyed by stack
// name. A stack present on one side only counts all its resources as added
// or removed.
func CompareAssembly(previous, current map[string]*infra.Template, opts Options) (*Result, error) {
	result := &Result{}
	names := make(map[string]bool)
	for name := range previous {
		names[name] = true
	}
	for name := range current {
		names[name] = true
	}
	for name := range names {
		before, err := canonical(previous[name])
		if err != nil {
			return nil, fmt.Errorf("stack %s: %w", name, err)
		}
		after, err := canonical(current[name])
		if err != nil {
			return nil, fmt.Errorf("stack %s: %w", name, err)
		}
		compareTemplates(result, name, before, after, opts)
	}
	result.finish()
	return result, nil
}

func compareTemplates(result *Result, stack string, t1, t2 *infra.Template, opts Options) {
	res1 := resources(t1)
	res2 := resources(t2)

	// Find added resources (in template2 but not in template1)
	for name, def := range res2 {
		if _, exists := res1[name]; !exists {
			result.Diff.Added = append(result.Diff.Added, infra.DiffEntry{Stack: stack, Resource: name, Type: def.Type})
		}
	}

	// Find removed resources (in template1 but not in template2)
	for name, def := range res1 {
		if _, exists := res2[name]; !exists {
			result.Diff.Removed = append(result.Diff.Removed, infra.DiffEntry{Stack: stack, Resource: name, Type: def.Type})
		}
	}

	// Find modified resources
	for name, def1 := range res1 {
		if def2, exists := res2[name]; exists {
			if changes := compareResources(def1, def2, opts); len(changes) > 0 {
				result.Diff.Modified = append(result.Diff.Modified, infra.DiffEntry{
					Stack:    stack,
					Resource: name,
					Type:     def1.Type,
					Changes:  changes,
				})
			}
		}
	}
}

func (r *Result) finish() {
	sortEntries(r.Diff.Added)
	sortEntries(r.Diff.Removed)
	sortEntries(r.Diff.Modified)

	r.Summary = infra.DiffSummary{
		Added:    len(r.Diff.Added),
		Removed:  len(r.Diff.Removed),
		Modified: len(r.Diff.Modified),
	}
	r.Summary.Total = r.Summary.Added + r.Summary.Removed + r.Summary.Modified
}

func resources(t *infra.Template) map[string]infra.ResourceDef {
	if t == nil {
		return nil
	}
	return t.Resources
}

// CompareFiles compares two template files.
func CompareFiles(file1, file2 string, opts Options) (*Result, error) {
	t1, err := LoadTemplate(file1)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file1, err)
	}

	t2, err := LoadTemplate(file2)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file2, err)
	}

	return Compare(t1, t2, opts)
}

// LoadTemplate loads a CloudFormation template from a file.
func LoadTemplate(path string) (*infra.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var template infra.Template

	// Try JSON first
	if err := json.Unmarshal(data, &template); err != nil {
		// Try YAML
		if err := yaml.Unmarshal(data, &template); err != nil {
			return nil, fmt.Errorf("failed to parse as JSON or YAML: %w", err)
		}
	}

	return &template, nil
}

// LoadDir loads every template listed in the manifest of an output
// directory, keyed by stack name. A missing directory is an empty assembly.
func LoadDir(dir string) (map[string]*infra.Template, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if os.IsNotExist(err) {
		return map[string]*infra.Template{}, nil
	}
	if err != nil {
		return nil, err
	}

	var m infra.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}

	out := make(map[string]*infra.Template, len(m.Stacks))
	for _, s := range m.Stacks {
		t, err := LoadTemplate(filepath.Join(dir, s.TemplateFile))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", s.TemplateFile, err)
		}
		out[s.Name] = t
	}
	return out, nil
}

// canonical round-trips a template through JSON so templates read from YAML
// and templates built in memory hold the same value types.
func canonical(t *infra.Template) (*infra.Template, error) {
	if t == nil {
		return nil, nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var out infra.Template
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// compareResources compares two resource definitions and returns changes.
func compareResources(def1, def2 infra.ResourceDef, opts Options) []string {
	var changes []string

	if def1.Type != def2.Type {
		changes = append(changes, fmt.Sprintf("Type changed: %s → %s", def1.Type, def2.Type))
	}

	changes = append(changes, compareProperties("", def1.Properties, def2.Properties, opts)...)

	if !equalStringSlices(def1.DependsOn, def2.DependsOn) {
		changes = append(changes, "DependsOn changed")
	}
	if def1.DeletionPolicy != def2.DeletionPolicy {
		changes = append(changes, "DeletionPolicy changed")
	}

	return changes
}

// compareProperties compares property maps key by key.
func compareProperties(prefix string, props1, props2 map[string]any, opts Options) []string {
	var changes []string

	// Find added/modified properties
	for key, val2 := range props2 {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if val1, exists := props1[key]; exists {
			if !deepEqual(val1, val2, opts) {
				changes = append(changes, propertyChanges(path, val1, val2, opts)...)
			}
		} else {
			changes = append(changes, fmt.Sprintf("%s added", path))
		}
	}

	// Find removed properties
	for key := range props1 {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if _, exists := props2[key]; !exists {
			changes = append(changes, fmt.Sprintf("%s removed", path))
		}
	}

	sort.Strings(changes)
	return changes
}

// propertyChanges lists the nested paths that differ between two values of
// the property at path. Values whose shape changed are reported as a whole.
func propertyChanges(path string, a, b any, opts Options) []string {
	if opts.IgnoreOrder {
		a = normalizeValue(a)
		b = normalizeValue(b)
	}

	d, err := diff.NewDiffer(diff.SliceOrdering(true))
	if err != nil {
		return []string{path + " modified"}
	}
	changelog, err := d.Diff(a, b)
	if err != nil || len(changelog) == 0 {
		return []string{path + " modified"}
	}

	changes := make([]string, 0, len(changelog))
	for _, c := range changelog {
		p := strings.Join(append([]string{path}, c.Path...), ".")
		switch c.Type {
		case diff.CREATE:
			changes = append(changes, p+" added")
		case diff.DELETE:
			changes = append(changes, p+" removed")
		default:
			changes = append(changes, p+" modified")
		}
	}
	return changes
}

// deepEqual compares two values deeply, optionally ignoring order.
func deepEqual(a, b any, opts Options) bool {
	if opts.IgnoreOrder {
		a = normalizeValue(a)
		b = normalizeValue(b)
	}
	return reflect.DeepEqual(a, b)
}

// normalizeValue sorts every slice by the JSON encoding of its elements.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []any:
		result := make([]any, len(val))
		keys := make([]string, len(val))
		for i, item := range val {
			result[i] = normalizeValue(item)
		}
		for i := range result {
			data, _ := json.Marshal(result[i])
			keys[i] = string(data)
		}
		sort.Sort(byKey{items: result, keys: keys})
		return result
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v := range val {
			result[k] = normalizeValue(v)
		}
		return result
	default:
		return v
	}
}

type byKey struct {
	items []any
	keys  []string
}

func (b byKey) Len() int           { return len(b.items) }
func (b byKey) Less(i, j int) bool { return b.keys[i] < b.keys[j] }
func (b byKey) Swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}

// equalStringSlices compares two string slices for equality.
func equalStringSlices(a, b []string) bool {
	return slices.Equal(a, b)
}

// sortEntries sorts diff entries by stack, then resource name.
func sortEntries(entries []infra.DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Stack != entries[j].Stack {
			return entries[i].Stack < entries[j].Stack
		}
		return entries[i].Resource < entries[j].Resource
	})
}
