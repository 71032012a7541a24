// Package infra provides the shared types of the environment synthesizer.
//
// The synthesizer turns a per-environment configuration record into a cloud
// assembly: one CloudFormation template per provisioning unit (stack) and a
// manifest describing deploy order, regions, tags and the parameter bindings
// the provisioning backend must resolve between stacks:
//
//	envsynth synth --config envs.yaml --env dev -o cdk.out
//
// Applying the assembly is left to the provisioning backend.
package infra

// Template represents a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                 `json:"Description,omitempty" yaml:"Description,omitempty"`
	Parameters               map[string]Parameter   `json:"Parameters,omitempty" yaml:"Parameters,omitempty"`
	Resources                map[string]ResourceDef `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output      `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// ResourceDef is a single resource in the CloudFormation template.
type ResourceDef struct {
	Type                string         `json:"Type" yaml:"Type"`
	Properties          map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn           []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	DeletionPolicy      string         `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string         `json:"UpdateReplacePolicy,omitempty" yaml:"UpdateReplacePolicy,omitempty"`
}

// Parameter is a CloudFormation template parameter.
type Parameter struct {
	Type        string `json:"Type" yaml:"Type"`
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Default     any    `json:"Default,omitempty" yaml:"Default,omitempty"`
}

// Output is a CloudFormation template output.
type Output struct {
	Description string        `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any           `json:"Value" yaml:"Value"`
	Export      *OutputExport `json:"Export,omitempty" yaml:"Export,omitempty"`
}

// OutputExport names the stack export of an Output.
type OutputExport struct {
	Name string `json:"Name" yaml:"Name"`
}

// Manifest describes a synthesized assembly: its stacks in deploy order.
type Manifest struct {
	Environment string          `json:"environment"`
	Project     string          `json:"project"`
	Stacks      []StackManifest `json:"stacks"`
}

// StackManifest is one provisioning unit of the assembly.
type StackManifest struct {
	Name         string            `json:"name"`
	Account      string            `json:"account"`
	Region       string            `json:"region"`
	TemplateFile string            `json:"templateFile"`
	Tags         map[string]string `json:"tags,omitempty"`
	// Dependencies are the stacks that must be deployed before this one.
	Dependencies []string `json:"dependencies,omitempty"`
	// ParameterBindings are filled by the backend from another stack's outputs.
	ParameterBindings []ParameterBinding `json:"parameterBindings,omitempty"`
}

// ParameterBinding tells the backend to set Parameter from the output of
// another, already deployed, stack. Used for references across regions where
// Fn::ImportValue is not available.
type ParameterBinding struct {
	Parameter  string `json:"parameter"`
	FromStack  string `json:"fromStack"`
	FromRegion string `json:"fromRegion"`
	OutputName string `json:"outputName"`
	ExportName string `json:"exportName"`
}

// SynthResult is the JSON output from `envsynth synth`.
type SynthResult struct {
	Success  bool     `json:"success"`
	Manifest Manifest `json:"manifest,omitempty"`
	Files    []string `json:"files,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// ValidateResult is the JSON output from `envsynth validate`.
type ValidateResult struct {
	Success   bool     `json:"success"`
	Stacks    int      `json:"stacks"`
	Resources int      `json:"resources"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	// Suggestions are advisory and never fail a validation.
	Suggestions []string `json:"suggestions,omitempty"`
}

// ListResult is the JSON output from `envsynth list`.
type ListResult struct {
	Stacks []ListStack `json:"stacks"`
}

// ListStack is a single stack in the list output.
type ListStack struct {
	Name         string   `json:"name"`
	Region       string   `json:"region"`
	Resources    int      `json:"resources"`
	Exports      int      `json:"exports"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// DiffEntry describes a single added, removed or modified resource.
type DiffEntry struct {
	Stack    string   `json:"stack,omitempty"`
	Resource string   `json:"resource"`
	Type     string   `json:"type"`
	Changes  []string `json:"changes,omitempty"`
}

// TemplateDiff groups resource differences by kind.
type TemplateDiff struct {
	Added    []DiffEntry `json:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty"`
}

// DiffSummary counts differences.
type DiffSummary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Total    int `json:"total"`
}
