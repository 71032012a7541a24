package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd(g *globals) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stacks in deploy order",
		Long: `List synthesizes the environment and prints its stacks in deploy order
with their region, resource and export counts and dependencies.

Examples:
    envsynth list --env prod
    envsynth list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(g, cmd.OutOrStdout(), outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runList(g *globals, w io.Writer, format string) error {
	a, err := g.synthesize()
	if err != nil {
		return err
	}
	result := a.List()

	switch format {
	case "json":
		return writeJSON(w, result)

	case "text":
		fmt.Fprintf(w, "Stacks (%d):\n\n", len(result.Stacks))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tREGION\tRESOURCES\tEXPORTS\tDEPENDS ON")
		for _, s := range result.Stacks {
			deps := "-"
			if len(s.Dependencies) > 0 {
				deps = strings.Join(s.Dependencies, ", ")
			}
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%s\n", s.Name, s.Region, s.Resources, s.Exports, deps)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}
