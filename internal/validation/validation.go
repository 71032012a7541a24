// Package validation checks a synthesized assembly.
//
// Two layers are available:
//   - Check: structural checks of the assembly itself (deploy order of
//     imports and bindings, CloudFormation quotas)
//   - cfn-lint-go: schema validation of every written template
//
// Optimizer suggestions can be attached as advisory output.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alitto/pond"
	"github.com/lex00/cfn-lint-go/pkg/lint"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/app"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/optimizer"
)

// CloudFormation quotas checked by Check.
const (
	MaxResources  = 500
	MaxParameters = 200
	MaxOutputs    = 200
	MaxStackName  = 128
)

// CfnLintResult contains the result of running cfn-lint.
type CfnLintResult struct {
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Informational []string `json:"informational"`
}

// TotalIssues returns the total number of issues found.
func (r CfnLintResult) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Informational)
}

// Check runs the structural checks and returns one message per problem.
func Check(a *app.Assembly) []string {
	var problems []string
	deployed := make(map[string]int, len(a.Units))
	for i, u := range a.Units {
		deployed[u.Name] = i
	}

	for i, u := range a.Units {
		st := u.Stack
		if len(u.Name) > MaxStackName {
			problems = append(problems, fmt.Sprintf("%s: stack name longer than %d characters", u.Name, MaxStackName))
		}
		if n := st.Len(); n > MaxResources {
			problems = append(problems, fmt.Sprintf("%s: %d resources, quota is %d", u.Name, n, MaxResources))
		}
		if n := len(st.Parameters()); n > MaxParameters {
			problems = append(problems, fmt.Sprintf("%s: %d parameters, quota is %d", u.Name, n, MaxParameters))
		}
		if n := len(st.Outputs()); n > MaxOutputs {
			problems = append(problems, fmt.Sprintf("%s: %d outputs, quota is %d", u.Name, n, MaxOutputs))
		}

		for _, dep := range st.Dependencies() {
			j, ok := deployed[dep]
			switch {
			case !ok:
				problems = append(problems, fmt.Sprintf("%s: depends on %s, which is not in the assembly", u.Name, dep))
			case j >= i:
				problems = append(problems, fmt.Sprintf("%s: deployed before its dependency %s", u.Name, dep))
			}
		}
		for _, b := range st.Bindings() {
			if _, ok := st.Parameters()[b.Parameter]; !ok {
				problems = append(problems, fmt.Sprintf("%s: binding for undeclared parameter %s", u.Name, b.Parameter))
			}
			producer, ok := a.Unit(b.FromStack)
			if !ok {
				continue
			}
			if _, ok := producer.Template.Outputs[b.OutputName]; !ok {
				problems = append(problems, fmt.Sprintf("%s: %s has no output %s", u.Name, b.FromStack, b.OutputName))
			}
		}
	}
	return problems
}

// RunCfnLint runs cfn-lint-go on the given template file.
func RunCfnLint(templatePath string) (*CfnLintResult, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Template file not found: %s", templatePath)},
		}, nil
	}

	linter := lint.New(lint.Options{})
	matches, err := linter.LintFile(templatePath)
	if err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Linter error: %v", err)},
		}, nil
	}

	result := &CfnLintResult{
		Errors:        []string{},
		Warnings:      []string{},
		Informational: []string{},
	}

	for _, match := range matches {
		formatted := formatMatch(match)

		switch match.Level {
		case "Error":
			result.Errors = append(result.Errors, formatted)
		case "Warning":
			result.Warnings = append(result.Warnings, formatted)
		default:
			result.Informational = append(result.Informational, formatted)
		}
	}

	// Warnings are acceptable.
	result.Passed = len(result.Errors) == 0

	return result, nil
}

// formatMatch formats a cfn-lint-go match for display.
func formatMatch(match lint.Match) string {
	pathStr := ""
	if len(match.Location.Path) > 0 {
		parts := make([]string, len(match.Location.Path))
		for i, p := range match.Location.Path {
			parts[i] = fmt.Sprintf("%v", p)
		}
		pathStr = strings.Join(parts, "/")
	}

	if pathStr != "" {
		return fmt.Sprintf("%s: %s (at %s)", match.Rule.ID, match.Message, pathStr)
	}
	return fmt.Sprintf("%s: %s", match.Rule.ID, match.Message)
}

// lintWorkers bounds the templates linted at once.
const lintWorkers = 4

// lintAll runs cfn-lint on every path in a worker pool. Results keep the
// order of paths.
func lintAll(paths []string) ([]*CfnLintResult, error) {
	results := make([]*CfnLintResult, len(paths))
	errs := make([]error, len(paths))

	pool := pond.New(lintWorkers, len(paths))
	for i, path := range paths {
		pool.Submit(func() {
			results[i], errs[i] = RunCfnLint(path)
		})
	}
	pool.StopAndWait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("running cfn-lint on %s: %w", filepath.Base(paths[i]), err)
		}
	}
	return results, nil
}

// Options configures Validate.
type Options struct {
	// Lint writes the templates to a temporary directory and runs cfn-lint
	// on each of them.
	Lint bool
	// Format of the linted templates, "json" or "yaml".
	Format string
	// Suggest adds optimizer suggestions of the given category ("all" for
	// every category). Empty disables them.
	Suggest string
}

// Validate runs the structural checks and, when asked, cfn-lint on every
// template. Problems are prefixed with the stack name.
func Validate(a *app.Assembly, opts Options) (*infra.ValidateResult, error) {
	result := &infra.ValidateResult{
		Stacks:    len(a.Units),
		Resources: a.Resources(),
		Errors:    Check(a),
	}

	if opts.Lint {
		dir, err := os.MkdirTemp("", "envsynth-validate-")
		if err != nil {
			return nil, fmt.Errorf("creating lint directory: %w", err)
		}
		defer os.RemoveAll(dir)

		if _, err := a.Write(dir, opts.Format); err != nil {
			return nil, err
		}
		paths := make([]string, len(a.Units))
		for i, u := range a.Units {
			paths[i] = filepath.Join(dir, app.TemplateFile(u.Name, opts.Format))
		}
		lintResults, err := lintAll(paths)
		if err != nil {
			return nil, err
		}
		for i, u := range a.Units {
			lintResult := lintResults[i]
			for _, e := range lintResult.Errors {
				result.Errors = append(result.Errors, u.Name+": "+e)
			}
			for _, w := range lintResult.Warnings {
				result.Warnings = append(result.Warnings, u.Name+": "+w)
			}
		}
	}

	if opts.Suggest != "" {
		for _, s := range optimizer.Optimize(a.Templates(), optimizer.Options{Category: opts.Suggest}).Suggestions {
			result.Suggestions = append(result.Suggestions, s.String())
		}
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}
