package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/validation"
)

var errValidationFailed = errors.New("validation failed")

// newValidateCmd creates the "validate" subcommand for checking the assembly.
func newValidateCmd(g *globals) *cobra.Command {
	var (
		outputFormat string
		lint         bool
		suggest      string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and synthesized stacks",
		Long: `Validate checks the configuration record, synthesizes the environment
and checks the assembly without writing it.

Checks performed:
  - Configuration: every field of the record, all problems reported together
  - Quotas: resources, parameters and outputs per template
  - Deploy order: every stack comes after the stacks it imports from
  - Bindings: cross-region parameters match a declared producer output
  - cfn-lint (with --lint): every template, JSON or YAML

With --suggest, security, cost and reliability suggestions are listed too.
They never fail the validation.

Examples:
    envsynth validate --env prod
    envsynth validate --lint --format json
    envsynth validate --suggest=security`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(g, cmd.OutOrStdout(), outputFormat, validation.Options{Lint: lint, Suggest: suggest})
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&lint, "lint", false, "Run cfn-lint on every template")
	cmd.Flags().StringVar(&suggest, "suggest", "", "List optimizer suggestions: all, security, cost or reliability")
	cmd.Flags().Lookup("suggest").NoOptDefVal = "all"

	return cmd
}

func runValidate(g *globals, w io.Writer, format string, opts validation.Options) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format: %s", format)
	}

	var result *infra.ValidateResult
	a, err := g.synthesize()
	if err != nil {
		result = &infra.ValidateResult{Errors: errorMessages(err)}
	} else {
		opts.Format = g.settings.Format
		result, err = validation.Validate(a, opts)
		if err != nil {
			return err
		}
	}

	if err := outputValidateResult(w, result, format); err != nil {
		return err
	}
	if !result.Success {
		return errValidationFailed
	}
	return nil
}

func outputValidateResult(w io.Writer, result *infra.ValidateResult, format string) error {
	if format == "json" {
		return writeJSON(w, result)
	}

	if result.Success {
		fmt.Fprintf(w, "Validation passed: %d stacks, %d resources OK\n", result.Stacks, result.Resources)
		for _, warnMsg := range result.Warnings {
			fmt.Fprintf(w, "  WARNING: %s\n", warnMsg)
		}
		for _, s := range result.Suggestions {
			fmt.Fprintf(w, "  SUGGESTION: %s\n", s)
		}
		return nil
	}

	fmt.Fprintln(w, "Validation FAILED:")
	for _, errMsg := range result.Errors {
		fmt.Fprintf(w, "  ERROR: %s\n", errMsg)
	}
	for _, warnMsg := range result.Warnings {
		fmt.Fprintf(w, "  WARNING: %s\n", warnMsg)
	}
	return nil
}
