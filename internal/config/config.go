// Package config loads the per-environment configuration record.
//
// The record file is keyed by environment name, the same layout as the
// context block of a cdk.json file:
//
//	dev:
//	  account: "123456789012"
//	  region: eu-west-1
//	  project: app
//	  environment: dev
//	  stacks:
//	    network:
//	      vpcCidr: 10.0.0.0/16
//	      ...
//
// A top-level "context" key is also accepted, so an existing cdk.json can be
// read directly.
package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
)

// Environments lists the accepted environment names.
var Environments = []string{"dev", "staging", "prod"}

// BuildConfig is the configuration record of one environment.
type BuildConfig struct {
	Account     string       `yaml:"account"`
	Region      string       `yaml:"region"`
	Project     string       `yaml:"project"`
	Environment string       `yaml:"environment"`
	Stacks      StacksConfig `yaml:"stacks"`
}

// StacksConfig holds the settings of every unit.
type StacksConfig struct {
	Budget   BudgetConfig    `yaml:"budget"`
	Network  NetworkConfig   `yaml:"network"`
	ECS      []ServiceConfig `yaml:"ecs"`
	Schedule ScheduleConfig  `yaml:"schedule"`
	WAF      WAFConfig       `yaml:"waf"`
}

// BudgetConfig is the monthly cost limit in USD.
type BudgetConfig struct {
	Limit decimal.Decimal `yaml:"limit"`
}

// NetworkConfig describes the VPC and its subnets.
type NetworkConfig struct {
	VpcCIDR        string         `yaml:"vpcCidr"`
	PrivateSubnets []SubnetConfig `yaml:"privateSubnets"`
	PublicSubnets  []SubnetConfig `yaml:"publicSubnets"`
}

// SubnetConfig places one subnet. Zone is the availability-zone suffix
// ("a", "b", ...) appended to the region.
type SubnetConfig struct {
	Zone string `yaml:"zone"`
	CIDR string `yaml:"cidr"`
}

// ServiceConfig is one container workload.
type ServiceConfig struct {
	Name            string            `yaml:"name"`
	CPU             int               `yaml:"cpu"`
	Memory          int               `yaml:"memory"`
	Port            int               `yaml:"port"`
	HealthCheckPath string            `yaml:"healthCheckPath"`
	Environment     map[string]string `yaml:"environment"`
}

// ScheduleConfig holds the six-field EventBridge cron expressions that
// start and stop the services.
type ScheduleConfig struct {
	Start string `yaml:"start"`
	Stop  string `yaml:"stop"`
}

// WAFConfig holds the IP lists of the web application firewall.
type WAFConfig struct {
	IPBlacklist []string `yaml:"ipBlacklist"`
	IPWhitelist []string `yaml:"ipWhitelist"`
}

// Prefix is the "<environment>-<project>" string every resource name starts with.
func (c *BuildConfig) Prefix() string {
	return c.Environment + "-" + c.Project
}

// StackName returns the name of the stack for the given unit.
func (c *BuildConfig) StackName(unit string) string {
	return c.Prefix() + "-" + unit
}

// Load reads the record file at path and returns the validated record of env.
func Load(path, env string) (*BuildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, env)
}

// Parse decodes a record file and returns the validated record of env.
func Parse(data []byte, env string) (*BuildConfig, error) {
	if !slices.Contains(Environments, env) {
		return nil, &infra.ConfigurationError{
			Field:  "environment",
			Reason: fmt.Sprintf("%q is not one of %v", env, Environments),
		}
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &infra.ConfigurationError{Reason: "parsing config: " + err.Error()}
	}
	if ctx, ok := doc["context"]; ok {
		doc = nil
		if err := ctx.Decode(&doc); err != nil {
			return nil, &infra.ConfigurationError{Field: "context", Reason: err.Error()}
		}
	}

	node, ok := doc[env]
	if !ok {
		return nil, &infra.ConfigurationError{Reason: fmt.Sprintf("no record for environment %q", env)}
	}

	var cfg BuildConfig
	if err := node.Decode(&cfg); err != nil {
		return nil, &infra.ConfigurationError{Field: env, Reason: err.Error()}
	}
	if cfg.Environment != env {
		return nil, &infra.ConfigurationError{
			Field:  "environment",
			Reason: fmt.Sprintf("record under %q declares environment %q", env, cfg.Environment),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
