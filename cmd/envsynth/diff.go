package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/differ"
)

// errChanges is returned by diff --exit-code when something changed.
var errChanges = errors.New("templates differ from the output directory")

var (
	addedColor    = color.New(color.FgGreen)
	removedColor  = color.New(color.FgRed)
	modifiedColor = color.New(color.FgYellow)
)

type diffOptions struct {
	outputFormat string
	ignoreOrder  bool
	exitCode     bool
}

func newDiffCmd(g *globals) *cobra.Command {
	var opts diffOptions

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare the assembly with the last synth output",
		Long: `Diff synthesizes the environment and compares every stack, resource by
resource, with the templates previously written to the output directory.
A missing output directory counts every resource as added.

Examples:
    envsynth diff --env prod
    envsynth diff -o build --ignore-order
    envsynth diff --exit-code    # non-zero exit when something changed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(g, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&opts.ignoreOrder, "ignore-order", false, "Ignore array element order")
	cmd.Flags().BoolVar(&opts.exitCode, "exit-code", false, "Exit non-zero when differences are found")

	return cmd
}

func runDiff(g *globals, w io.Writer, opts diffOptions) error {
	if opts.outputFormat != "text" && opts.outputFormat != "json" {
		return fmt.Errorf("unknown format: %s", opts.outputFormat)
	}

	a, err := g.synthesize()
	if err != nil {
		return err
	}
	previous, err := differ.LoadDir(g.settings.Output)
	if err != nil {
		return fmt.Errorf("loading %s: %w", g.settings.Output, err)
	}
	g.log.Debug("previous assembly loaded",
		zap.String("output", g.settings.Output),
		zap.Int("stacks", len(previous)),
	)

	result, err := differ.CompareAssembly(previous, a.Templates(), differ.Options{IgnoreOrder: opts.ignoreOrder})
	if err != nil {
		return err
	}

	if opts.outputFormat == "json" {
		if err := writeJSON(w, result); err != nil {
			return err
		}
	} else {
		writeDiffText(w, result)
	}

	if opts.exitCode && !result.Empty() {
		return errChanges
	}
	return nil
}

func writeDiffText(w io.Writer, result *differ.Result) {
	if result.Empty() {
		fmt.Fprintln(w, "No differences.")
		return
	}

	for _, e := range result.Diff.Added {
		addedColor.Fprintf(w, "+ %s/%s (%s)\n", e.Stack, e.Resource, e.Type)
	}
	for _, e := range result.Diff.Removed {
		removedColor.Fprintf(w, "- %s/%s (%s)\n", e.Stack, e.Resource, e.Type)
	}
	for _, e := range result.Diff.Modified {
		modifiedColor.Fprintf(w, "~ %s/%s (%s)\n", e.Stack, e.Resource, e.Type)
		for _, c := range e.Changes {
			fmt.Fprintf(w, "    %s\n", c)
		}
	}

	s := result.Summary
	fmt.Fprintf(w, "\n%d added, %d removed, %d modified (%s)\n",
		s.Added, s.Removed, s.Modified, pluralize(s.Total, "change"))
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
