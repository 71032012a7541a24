// Package template renders a stack as a CloudFormation template.
package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
)

// services lists the CloudFormation service namespaces the unit builders emit.
var services = map[string]bool{
	"Budgets":                true,
	"CloudFront":             true,
	"CloudTrail":             true,
	"CloudWatch":             true,
	"EC2":                    true,
	"ECR":                    true,
	"ECS":                    true,
	"ElasticLoadBalancingV2": true,
	"Events":                 true,
	"IAM":                    true,
	"Lambda":                 true,
	"Logs":                   true,
	"S3":                     true,
	"SNS":                    true,
	"SSM":                    true,
	"WAFv2":                  true,
}

// Build converts st into a template. Resources are visited in dependency
// order so an unknown type is reported against the first resource that has
// one.
func Build(st *stack.Stack) (*infra.Template, error) {
	order, err := st.Order()
	if err != nil {
		return nil, err
	}

	t := &infra.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Description:              st.Description,
		Resources:                make(map[string]infra.ResourceDef, len(order)),
	}

	if params := st.Parameters(); len(params) > 0 {
		t.Parameters = make(map[string]infra.Parameter, len(params))
		for name, p := range params {
			t.Parameters[name] = p
		}
	}

	for _, id := range order {
		r, _ := st.Resource(id)
		if !validType(r.Type) {
			return nil, fmt.Errorf("stack %s: resource %s: unknown resource type %q", st.Name, id, r.Type)
		}
		t.Resources[id] = infra.ResourceDef{
			Type:                r.Type,
			Properties:          r.Properties,
			DependsOn:           r.DependsOn,
			DeletionPolicy:      r.DeletionPolicy,
			UpdateReplacePolicy: r.UpdateReplacePolicy,
		}
	}

	if outputs := st.Outputs(); len(outputs) > 0 {
		t.Outputs = make(map[string]infra.Output, len(outputs))
		for name, o := range outputs {
			t.Outputs[name] = o
		}
	}

	return t, nil
}

// validType checks the AWS::<Service>::<Resource> shape of a type name.
func validType(typ string) bool {
	parts := strings.Split(typ, "::")
	if len(parts) != 3 || parts[0] != "AWS" || parts[2] == "" {
		return false
	}
	return services[parts[1]]
}

// ToJSON serializes the template to JSON.
func ToJSON(t *infra.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *infra.Template) ([]byte, error) {
	return yaml.Marshal(t)
}

// Marshal serializes the template in the given format ("json" or "yaml").
func Marshal(t *infra.Template, format string) ([]byte, error) {
	switch format {
	case "json", "":
		return ToJSON(t)
	case "yaml":
		return ToYAML(t)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
