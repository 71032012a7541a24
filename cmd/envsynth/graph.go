package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/graph"
)

func newGraphCmd(g *globals) *cobra.Command {
	var (
		outputFormat string
		resources    bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate DOT graph of stack dependencies",
		Long: `Generate a DOT or Mermaid graph of the assembly. Stacks are clusters
labeled with their region; cross-region parameter bindings are dashed.

The output can be rendered with Graphviz:
    envsynth graph | dot -Tpng -o stacks.png

Or used in GitHub markdown (Mermaid format):
    envsynth graph -f mermaid

Examples:
    envsynth graph --env prod
    envsynth graph -r              # draw every resource`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(g, cmd.OutOrStdout(), outputFormat, resources)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVarP(&resources, "resources", "r", false, "Draw resources inside each stack")

	return cmd
}

func runGraph(g *globals, w io.Writer, format string, resources bool) error {
	var graphFormat graph.Format
	switch format {
	case "dot":
		graphFormat = graph.FormatDOT
	case "mermaid":
		graphFormat = graph.FormatMermaid
	default:
		return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", format)
	}

	a, err := g.synthesize()
	if err != nil {
		return err
	}

	gen := &graph.Generator{
		Format:    graphFormat,
		Resources: resources,
	}
	return gen.Generate(a, w)
}
