// Package optimizer inspects synthesized templates for security, cost and
// reliability improvements. Suggestions are advisory: they never fail a
// synthesis or a validation.
package optimizer

import (
	"fmt"
	"sort"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
)

// Categories of suggestions.
const (
	CategorySecurity    = "security"
	CategoryCost        = "cost"
	CategoryReliability = "reliability"
)

// Options configures the optimizer.
type Options struct {
	// Category filters suggestions: "all" (or empty), "security", "cost", "reliability"
	Category string
}

// Resource is one template resource under inspection.
type Resource struct {
	Stack string
	ID    string
	Def   infra.ResourceDef
}

// Suggestion is a single improvement for a resource.
type Suggestion struct {
	Stack      string `json:"stack"`
	Resource   string `json:"resource"`
	Rule       string `json:"rule"`
	Category   string `json:"category"`
	Severity   string `json:"severity"`
	Title      string `json:"title"`
	Suggestion string `json:"suggestion"`
}

func (s Suggestion) String() string {
	return fmt.Sprintf("%s/%s: %s [%s]", s.Stack, s.Resource, s.Title, s.Rule)
}

// Summary tallies suggestions by category.
type Summary struct {
	Security    int `json:"security"`
	Cost        int `json:"cost"`
	Reliability int `json:"reliability"`
	Total       int `json:"total"`
}

// Result contains optimization suggestions.
type Result struct {
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	Summary     Summary      `json:"summary"`
}

// Optimize applies the rules to every resource of the templates, keyed by
// stack name. Suggestions come out sorted by stack, resource and rule.
func Optimize(templates map[string]*infra.Template, opts Options) *Result {
	result := &Result{}

	stacks := make([]string, 0, len(templates))
	for name := range templates {
		stacks = append(stacks, name)
	}
	sort.Strings(stacks)

	for _, stack := range stacks {
		t := templates[stack]
		if t == nil {
			continue
		}
		ids := make([]string, 0, len(t.Resources))
		for id := range t.Resources {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			res := Resource{Stack: stack, ID: id, Def: t.Resources[id]}
			result.Suggestions = append(result.Suggestions, analyzeResource(res, opts.Category)...)
		}
	}

	result.Summary = calculateSummary(result.Suggestions)
	return result
}

// analyzeResource applies optimization rules to a single resource.
func analyzeResource(res Resource, category string) []Suggestion {
	var suggestions []Suggestion
	for _, rule := range getRulesForType(res.Def.Type) {
		if category != "" && category != "all" && rule.Category != category {
			continue
		}
		if detail, ok := rule.Check(res); ok {
			suggestions = append(suggestions, Suggestion{
				Stack:      res.Stack,
				Resource:   res.ID,
				Rule:       rule.ID,
				Category:   rule.Category,
				Severity:   rule.Severity,
				Title:      rule.Title,
				Suggestion: detail,
			})
		}
	}
	return suggestions
}

// calculateSummary tallies suggestions by category.
func calculateSummary(suggestions []Suggestion) Summary {
	summary := Summary{}
	for _, s := range suggestions {
		switch s.Category {
		case CategorySecurity:
			summary.Security++
		case CategoryCost:
			summary.Cost++
		case CategoryReliability:
			summary.Reliability++
		}
		summary.Total++
	}
	return summary
}

// Rule represents an optimization rule. Check returns the suggested fix
// when the resource breaks the rule.
type Rule struct {
	ID       string
	Category string
	Severity string
	Title    string
	Check    func(res Resource) (string, bool)
}

// getRulesForType returns applicable rules for a resource type.
func getRulesForType(resourceType string) []Rule {
	rules := append([]Rule(nil), typeRules[resourceType]...)
	return append(rules, genericRules...)
}
