package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/logging"
)

// Settings are the tool options, separate from the configuration record:
// where the record lives, which environment to synthesize and where to write.
type Settings struct {
	Config string         `mapstructure:"config"`
	Env    string         `mapstructure:"env"`
	Output string         `mapstructure:"output"`
	Format string         `mapstructure:"format"`
	Log    logging.Config `mapstructure:"log"`
}

// flagKeys maps CLI flag names to settings keys.
var flagKeys = map[string]string{
	"config":          "config",
	"env":             "env",
	"output":          "output",
	"template-format": "format",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// LoadSettings resolves settings from defaults, an optional envsynth.yaml,
// ENVSYNTH_* environment variables and flags, in increasing precedence.
// An empty path looks for envsynth.yaml in the working directory.
func LoadSettings(path string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("config", "environments.yaml")
	v.SetDefault("env", "dev")
	v.SetDefault("output", "cdk.out")
	v.SetDefault("format", "json")
	defaults := logging.DefaultConfig()
	v.SetDefault("log.level", defaults.Level)
	v.SetDefault("log.format", defaults.Format)
	v.SetDefault("log.output", defaults.Output)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("envsynth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
	}

	v.SetEnvPrefix("ENVSYNTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, err
				}
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	if s.Format != "json" && s.Format != "yaml" {
		return nil, fmt.Errorf("unsupported template format %q (use json or yaml)", s.Format)
	}
	return &s, nil
}
