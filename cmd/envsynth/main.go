// Command envsynth synthesizes the CloudFormation assembly of one
// environment from a configuration record.
//
// Usage:
//
//	envsynth synth --env dev            Write templates and manifest
//	envsynth list --env prod            List stacks in deploy order
//	envsynth graph -f mermaid           Render stack dependencies
//	envsynth diff                       Compare with the last synth output
//	envsynth validate --lint            Check the assembly
//	envsynth watch                      Re-synthesize on config change
//	envsynth version                    Show version
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/app"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/logging"
)

// globals holds the resolved settings and logger shared by the subcommands.
type globals struct {
	settingsFile string
	settings     *config.Settings
	log          *zap.Logger
}

func main() {
	g := &globals{}
	rootCmd := newRootCmd(g)

	err := rootCmd.Execute()
	if g.log != nil {
		_ = g.log.Sync()
	}
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(g *globals) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "envsynth",
		Short: "Synthesize CloudFormation stacks for an environment",
		Long: `envsynth turns a per-environment configuration record into a cloud
assembly: one CloudFormation template per stack and a manifest listing the
stacks in deploy order with their regions, tags and parameter bindings.

    envsynth synth --config environments.yaml --env dev -o cdk.out

Settings are read from envsynth.yaml, ENVSYNTH_* variables and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.settingsFile, "settings", "", "Settings file (default: ./envsynth.yaml if present)")
	flags.StringP("config", "c", "", "Configuration record (default: environments.yaml)")
	flags.StringP("env", "e", "", "Environment to synthesize (default: dev)")
	flags.StringP("output", "o", "", "Output directory (default: cdk.out)")
	flags.String("template-format", "", "Template format: json or yaml (default: json)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: console or json")

	rootCmd.AddCommand(
		newSynthCmd(g),
		newListCmd(g),
		newGraphCmd(g),
		newDiffCmd(g),
		newValidateCmd(g),
		newWatchCmd(g),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// version needs no settings
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "envsynth %s\n", getVersion())
		},
	}
}

// load resolves the settings and builds the logger.
func (g *globals) load(cmd *cobra.Command) error {
	s, err := config.LoadSettings(g.settingsFile, cmd.Flags())
	if err != nil {
		return err
	}
	log, err := logging.New(s.Log)
	if err != nil {
		return fmt.Errorf("opening log output: %w", err)
	}
	g.settings = s
	g.log = log.Named("envsynth")
	return nil
}

// synthesize loads the configuration record and builds the assembly.
func (g *globals) synthesize() (*app.Assembly, error) {
	cfg, err := config.Load(g.settings.Config, g.settings.Env)
	if err != nil {
		return nil, err
	}
	g.log.Debug("configuration loaded",
		zap.String("config", g.settings.Config),
		zap.String("environment", cfg.Environment),
		zap.String("region", cfg.Region),
	)
	return app.Synthesize(cfg, app.Options{Logger: g.log})
}

// printError writes every error aggregated in err on its own line.
func printError(w io.Writer, err error) {
	label := color.New(color.FgRed, color.Bold)
	for _, e := range multierr.Errors(err) {
		label.Fprint(w, "Error:")
		fmt.Fprintf(w, " %v\n", e)
	}
}

// errorMessages flattens err into its messages for JSON results.
func errorMessages(err error) []string {
	var out []string
	for _, e := range multierr.Errors(err) {
		out = append(out, e.Error())
	}
	return out
}
