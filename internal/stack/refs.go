package stack

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

var subVariable = regexp.MustCompile(`\$\{([^}]*)\}`)

// normalize turns a property tree holding intrinsics and typed values into
// plain JSON values (maps, slices, strings, float64, bool).
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// scan returns the resource logical IDs referenced from a normalized value,
// in order of first appearance. Pseudo parameters and template parameters
// are not resources and are skipped.
func (s *Stack) scan(v any) []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || isPseudo(name) || seen[name] {
			return
		}
		if _, ok := s.params[name]; ok {
			return
		}
		seen[name] = true
		refs = append(refs, name)
	}

	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if len(val) == 1 {
				if target, ok := val["Ref"].(string); ok {
					add(target)
					return
				}
				if attr, ok := val["Fn::GetAtt"]; ok {
					switch a := attr.(type) {
					case []any:
						if len(a) > 0 {
							if name, ok := a[0].(string); ok {
								add(name)
							}
						}
					case string:
						add(strings.SplitN(a, ".", 2)[0])
					}
					return
				}
				if sub, ok := val["Fn::Sub"]; ok {
					switch sv := sub.(type) {
					case string:
						for _, name := range subTargets(sv, nil) {
							add(name)
						}
					case []any:
						if len(sv) == 2 {
							text, _ := sv[0].(string)
							vars, _ := sv[1].(map[string]any)
							for _, name := range subTargets(text, vars) {
								add(name)
							}
							walk(sv[1])
						}
					}
					return
				}
			}
			for _, key := range sortedKeys(val) {
				walk(val[key])
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(v)
	return refs
}

// subTargets returns the resource names used as ${Name} or ${Name.Attr} in an
// Fn::Sub string, skipping literals (${!x}) and names bound in vars.
func subTargets(text string, vars map[string]any) []string {
	var names []string
	for _, m := range subVariable.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if strings.HasPrefix(name, "!") {
			continue
		}
		name = strings.SplitN(name, ".", 2)[0]
		if _, ok := vars[name]; ok {
			continue
		}
		names = append(names, name)
	}
	return names
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
