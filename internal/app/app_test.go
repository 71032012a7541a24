package app

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
)

func loadConfig(t *testing.T, env string) *config.BuildConfig {
	t.Helper()
	cfg, err := config.Load(filepath.Join("testdata", "environments.yaml"), env)
	require.NoError(t, err)
	return cfg
}

func synthesize(t *testing.T, cfg *config.BuildConfig) *Assembly {
	t.Helper()
	a, err := Synthesize(cfg, Options{})
	require.NoError(t, err)
	return a
}

func TestSynthesize_DeployOrder(t *testing.T) {
	a := synthesize(t, loadConfig(t, "dev"))

	var names []string
	for _, u := range a.Units {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{
		"dev-app-budget",
		"dev-app-cloudtrail",
		"dev-app-network",
		"dev-app-security-groups",
		"dev-app-ecs",
		"dev-app-ecs-scheduler",
		"dev-app-waf",
		"dev-app-cloudfront",
		"dev-app-cw-alarms",
	}, names)

	position := make(map[string]int)
	for i, name := range names {
		position[name] = i
	}
	for _, u := range a.Units {
		for _, dep := range u.Stack.Dependencies() {
			assert.Less(t, position[dep], position[u.Name], "%s deployed before its dependency %s", u.Name, dep)
		}
	}
}

func TestSynthesize_RegionsAndTags(t *testing.T) {
	a := synthesize(t, loadConfig(t, "dev"))

	for _, u := range a.Units {
		assert.Equal(t, map[string]string{"created-by": "envsynth", "environment": "dev"}, u.Stack.Tags(), u.Name)
		assert.Equal(t, "123456789012", u.Stack.Account)

		switch u.Name {
		case "dev-app-budget", "dev-app-waf":
			assert.Equal(t, "us-east-1", u.Stack.Region, u.Name)
		default:
			assert.Equal(t, "eu-west-1", u.Stack.Region, u.Name)
		}

		// Stack tags are inherited; resources never repeat them.
		for _, def := range u.Template.Resources {
			tags, _ := def.Properties["Tags"].([]any)
			for _, tag := range tags {
				assert.NotEqual(t, "created-by", tag.(map[string]any)["Key"])
			}
		}
	}
}

func TestSynthesize_Dependencies(t *testing.T) {
	a := synthesize(t, loadConfig(t, "dev"))

	tests := []struct {
		stack string
		deps  []string
	}{
		{"dev-app-budget", []string{}},
		{"dev-app-network", []string{}},
		{"dev-app-security-groups", []string{"dev-app-network"}},
		{"dev-app-ecs", []string{"dev-app-network", "dev-app-security-groups"}},
		{"dev-app-ecs-scheduler", []string{"dev-app-ecs"}},
		{"dev-app-cloudfront", []string{"dev-app-waf"}},
		{"dev-app-cw-alarms", []string{"dev-app-ecs"}},
	}
	for _, tt := range tests {
		t.Run(tt.stack, func(t *testing.T) {
			u, ok := a.Unit(tt.stack)
			require.True(t, ok)
			assert.Equal(t, tt.deps, u.Stack.Dependencies())
		})
	}
}

func TestSynthesize_CrossRegionBinding(t *testing.T) {
	a := synthesize(t, loadConfig(t, "dev"))
	m := a.Manifest("json")

	var bound []infra.ParameterBinding
	for _, s := range m.Stacks {
		bound = append(bound, s.ParameterBindings...)
		if s.Name == "dev-app-cloudfront" {
			require.Len(t, s.ParameterBindings, 1)
			assert.Equal(t, infra.ParameterBinding{
				Parameter:  "DevAppWafAclArn",
				FromStack:  "dev-app-waf",
				FromRegion: "us-east-1",
				OutputName: "DevAppWafAclArn",
				ExportName: "dev-app-waf-acl-arn",
			}, s.ParameterBindings[0])
		}
	}
	assert.Len(t, bound, 1)
}

func TestSynthesize_ServicesStartAtZero(t *testing.T) {
	a := synthesize(t, loadConfig(t, "dev"))
	u, ok := a.Unit("dev-app-ecs")
	require.True(t, ok)

	services := 0
	for _, def := range u.Template.Resources {
		if def.Type == "AWS::ECS::Service" {
			services++
			assert.Equal(t, float64(0), def.Properties["DesiredCount"])
		}
	}
	assert.Equal(t, 2, services)
}

func TestSynthesize_ExampleNetwork(t *testing.T) {
	a := synthesize(t, loadConfig(t, "dev"))
	u, ok := a.Unit("dev-app-network")
	require.True(t, ok)

	count := make(map[string]int)
	for _, def := range u.Template.Resources {
		count[def.Type]++
	}
	assert.Equal(t, 1, count["AWS::EC2::VPC"])
	assert.Equal(t, 4, count["AWS::EC2::Subnet"])
	assert.Equal(t, 4, count["AWS::EC2::RouteTable"])
	assert.Equal(t, 4, count["AWS::EC2::Route"])
	assert.Equal(t, 1, count["AWS::EC2::NatGateway"])
	assert.Equal(t, 1, count["AWS::EC2::InternetGateway"])
}

func TestSynthesize_ConfigurationError(t *testing.T) {
	cfg := loadConfig(t, "dev")
	cfg.Account = "42"

	_, err := Synthesize(cfg, Options{})
	var cfgErr *infra.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "account", cfgErr.Field)
}

func TestSynthesize_TopologyError(t *testing.T) {
	cfg := loadConfig(t, "dev")
	cfg.Stacks.Network.PrivateSubnets[1].CIDR = "10.1.3.0/24"

	_, err := Synthesize(cfg, Options{})
	var topo *infra.TopologyError
	require.True(t, errors.As(err, &topo), "got %v", err)
	assert.Contains(t, err.Error(), "network unit")
}

func TestWrite(t *testing.T) {
	a := synthesize(t, loadConfig(t, "dev"))
	dir := t.TempDir()

	files, err := a.Write(dir, "json")
	require.NoError(t, err)
	require.Len(t, files, len(a.Units)+1)
	assert.Equal(t, filepath.Join(dir, "dev-app-budget.template.json"), files[0])
	assert.Equal(t, filepath.Join(dir, ManifestFile), files[len(files)-1])

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	var m infra.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "dev", m.Environment)
	assert.Equal(t, "app", m.Project)
	require.Len(t, m.Stacks, len(a.Units))
	assert.Equal(t, "dev-app-network.template.json", m.Stacks[2].TemplateFile)

	var tmpl infra.Template
	data, err = os.ReadFile(files[2])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &tmpl))
	assert.Equal(t, "2010-09-09", tmpl.AWSTemplateFormatVersion)
	assert.Contains(t, tmpl.Resources, "Vpc")
}

func TestWrite_YAML(t *testing.T) {
	a := synthesize(t, loadConfig(t, "prod"))
	dir := t.TempDir()

	files, err := a.Write(dir, "yaml")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "prod-app-network.template.yaml"))
	assert.Contains(t, files, filepath.Join(dir, ManifestFile))
}

func TestSynthesize_Deterministic(t *testing.T) {
	cfg := loadConfig(t, "dev")
	first, second := t.TempDir(), t.TempDir()

	files1, err := synthesize(t, cfg).Write(first, "json")
	require.NoError(t, err)
	files2, err := synthesize(t, cfg).Write(second, "json")
	require.NoError(t, err)
	require.Len(t, files2, len(files1))

	for i := range files1 {
		assert.Equal(t, filepath.Base(files1[i]), filepath.Base(files2[i]))
		a, err := os.ReadFile(files1[i])
		require.NoError(t, err)
		b, err := os.ReadFile(files2[i])
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), filepath.Base(files1[i]))
	}
}

func TestList(t *testing.T) {
	a := synthesize(t, loadConfig(t, "prod"))
	list := a.List()

	require.Len(t, list.Stacks, 9)
	for _, s := range list.Stacks {
		assert.Positive(t, s.Resources, s.Name)
	}
	network := list.Stacks[2]
	assert.Equal(t, "prod-app-network", network.Name)
	assert.Positive(t, network.Exports)
	assert.Equal(t, a.Resources(), sum(list))
}

func sum(l infra.ListResult) int {
	n := 0
	for _, s := range l.Stacks {
		n += s.Resources
	}
	return n
}

func TestSynthesize_Examples(t *testing.T) {
	for _, env := range []string{"dev", "staging"} {
		t.Run(env, func(t *testing.T) {
			cfg, err := config.Load(filepath.Join("..", "..", "examples", "environments.yaml"), env)
			require.NoError(t, err)

			a := synthesize(t, cfg)
			assert.Len(t, a.Units, 9)
			_, ok := a.Unit(env + "-shop-cloudfront")
			assert.True(t, ok)
		})
	}
}
