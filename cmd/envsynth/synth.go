package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
)

// desiredCountReminder is printed after every synth.
const desiredCountReminder = `Note: ECS services are created with DesiredCount 0. After the first image
push, raise the desired count (or let the scheduler's start rule do it).`

func newSynthCmd(g *globals) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize templates and manifest",
		Long: `Synth validates the configuration record, builds every stack of the
environment and writes one template per stack plus manifest.json to the
output directory. Nothing is written when any unit fails.

Examples:
    envsynth synth --env dev
    envsynth synth --env prod -o build --template-format yaml
    envsynth synth --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(g, cmd.OutOrStdout(), outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runSynth(g *globals, w io.Writer, format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format: %s", format)
	}

	result, err := synthToDir(g)
	if err != nil {
		if format == "json" {
			_ = writeJSON(w, infra.SynthResult{Success: false, Errors: errorMessages(err)})
		}
		return err
	}

	switch format {
	case "json":
		return writeJSON(w, result)
	default:
		fmt.Fprintf(w, "Synthesized %d stacks for %s/%s\n\n",
			len(result.Manifest.Stacks), result.Manifest.Project, result.Manifest.Environment)
		for _, f := range result.Files {
			fmt.Fprintf(w, "  %s\n", f)
		}
		fmt.Fprintf(w, "\n%s\n", desiredCountReminder)
	}
	return nil
}

// synthToDir synthesizes the assembly and writes it to the output directory.
func synthToDir(g *globals) (infra.SynthResult, error) {
	a, err := g.synthesize()
	if err != nil {
		return infra.SynthResult{}, err
	}

	files, err := a.Write(g.settings.Output, g.settings.Format)
	if err != nil {
		return infra.SynthResult{}, err
	}
	g.log.Info("assembly written",
		zap.String("output", g.settings.Output),
		zap.Int("files", len(files)),
	)

	return infra.SynthResult{
		Success:  true,
		Manifest: a.Manifest(g.settings.Format),
		Files:    files,
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
