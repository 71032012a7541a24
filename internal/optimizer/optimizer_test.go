package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
)

func templates(resources map[string]infra.ResourceDef) map[string]*infra.Template {
	return map[string]*infra.Template{
		"dev-app-test": {AWSTemplateFormatVersion: "2010-09-09", Resources: resources},
	}
}

func rules(result *Result) []string {
	var ids []string
	for _, s := range result.Suggestions {
		ids = append(ids, s.Rule)
	}
	return ids
}

func TestOptimize_BareBucket(t *testing.T) {
	result := Optimize(templates(map[string]infra.ResourceDef{
		"DataBucket": {Type: "AWS::S3::Bucket"},
	}), Options{})

	assert.Equal(t, []string{"OPT-S3-001", "OPT-S3-002", "OPT-S3-003", "OPT-S3-004", "OPT-GEN-001"}, rules(result))
	assert.Equal(t, Summary{Security: 2, Cost: 1, Reliability: 2, Total: 5}, result.Summary)

	s := result.Suggestions[0]
	assert.Equal(t, "dev-app-test", s.Stack)
	assert.Equal(t, "DataBucket", s.Resource)
	assert.Equal(t, "dev-app-test/DataBucket: S3 bucket should have encryption enabled [OPT-S3-001]", s.String())
}

func TestOptimize_HardenedBucket(t *testing.T) {
	result := Optimize(templates(map[string]infra.ResourceDef{
		"TrailBucket": {
			Type:           "AWS::S3::Bucket",
			DeletionPolicy: "Retain",
			Properties: map[string]any{
				"BucketEncryption": map[string]any{},
				"PublicAccessBlockConfiguration": map[string]any{
					"BlockPublicAcls":       true,
					"BlockPublicPolicy":     true,
					"IgnorePublicAcls":      true,
					"RestrictPublicBuckets": true,
				},
				"VersioningConfiguration": map[string]any{"Status": "Enabled"},
				"LifecycleConfiguration":  map[string]any{},
			},
		},
	}), Options{})

	assert.Empty(t, result.Suggestions)
	assert.Zero(t, result.Summary.Total)
}

func TestOptimize_CategoryFilter(t *testing.T) {
	in := templates(map[string]infra.ResourceDef{
		"DataBucket": {Type: "AWS::S3::Bucket"},
	})

	result := Optimize(in, Options{Category: CategorySecurity})
	assert.Equal(t, []string{"OPT-S3-001", "OPT-S3-002"}, rules(result))

	result = Optimize(in, Options{Category: "all"})
	assert.Len(t, result.Suggestions, 5)
}

func TestOptimize_Rules(t *testing.T) {
	tests := []struct {
		name string
		def  infra.ResourceDef
		want []string
	}{
		{
			name: "log group without retention",
			def:  infra.ResourceDef{Type: "AWS::Logs::LogGroup"},
			want: []string{"OPT-LOG-001"},
		},
		{
			name: "log group with retention",
			def:  infra.ResourceDef{Type: "AWS::Logs::LogGroup", Properties: map[string]any{"RetentionInDays": float64(14)}},
		},
		{
			name: "open ssh",
			def: infra.ResourceDef{Type: "AWS::EC2::SecurityGroup", Properties: map[string]any{
				"SecurityGroupIngress": []any{map[string]any{"CidrIp": "0.0.0.0/0", "FromPort": float64(22), "ToPort": float64(22)}},
			}},
			want: []string{"OPT-SG-001"},
		},
		{
			name: "open https",
			def: infra.ResourceDef{Type: "AWS::EC2::SecurityGroupIngress", Properties: map[string]any{
				"CidrIp": "0.0.0.0/0", "FromPort": float64(443), "ToPort": float64(443),
			}},
		},
		{
			name: "ingress from security group",
			def: infra.ResourceDef{Type: "AWS::EC2::SecurityGroupIngress", Properties: map[string]any{
				"SourceSecurityGroupId": map[string]any{"Fn::ImportValue": "dev-app-alb-sg-id"},
				"FromPort":              float64(8080), "ToPort": float64(8080),
			}},
		},
		{
			name: "service without circuit breaker",
			def: infra.ResourceDef{Type: "AWS::ECS::Service", Properties: map[string]any{
				"DeploymentConfiguration": map[string]any{"MaximumPercent": float64(200)},
			}},
			want: []string{"OPT-ECS-001"},
		},
		{
			name: "public service",
			def: infra.ResourceDef{Type: "AWS::ECS::Service", Properties: map[string]any{
				"DeploymentConfiguration": map[string]any{
					"DeploymentCircuitBreaker": map[string]any{"Enable": true, "Rollback": true},
				},
				"NetworkConfiguration": map[string]any{
					"AwsvpcConfiguration": map[string]any{"AssignPublicIp": "ENABLED"},
				},
			}},
			want: []string{"OPT-ECS-002"},
		},
		{
			name: "admin role",
			def: infra.ResourceDef{Type: "AWS::IAM::Role", Properties: map[string]any{
				"Policies": []any{map[string]any{
					"PolicyName": "admin",
					"PolicyDocument": map[string]any{"Statement": []any{
						map[string]any{"Effect": "Allow", "Action": "*", "Resource": []any{"*"}},
					}},
				}},
			}},
			want: []string{"OPT-IAM-001"},
		},
		{
			name: "scoped role",
			def: infra.ResourceDef{Type: "AWS::IAM::Role", Properties: map[string]any{
				"Policies": []any{map[string]any{
					"PolicyDocument": map[string]any{"Statement": []any{
						map[string]any{"Effect": "Allow", "Action": []any{"ecs:UpdateService"}, "Resource": "*"},
					}},
				}},
			}},
		},
		{
			name: "lambda defaults",
			def:  infra.ResourceDef{Type: "AWS::Lambda::Function"},
			want: []string{"OPT-LAM-001", "OPT-LAM-002"},
		},
		{
			name: "distribution without WAF",
			def: infra.ResourceDef{Type: "AWS::CloudFront::Distribution", Properties: map[string]any{
				"DistributionConfig": map[string]any{
					"DefaultCacheBehavior": map[string]any{"ViewerProtocolPolicy": "allow-all"},
				},
			}},
			want: []string{"OPT-CF-001", "OPT-CF-002"},
		},
		{
			name: "internet facing load balancer",
			def:  infra.ResourceDef{Type: "AWS::ElasticLoadBalancingV2::LoadBalancer"},
			want: []string{"OPT-ELB-001"},
		},
		{
			name: "repository",
			def: infra.ResourceDef{Type: "AWS::ECR::Repository", Properties: map[string]any{
				"LifecyclePolicy": map[string]any{},
			}},
			want: []string{"OPT-ECR-001", "OPT-GEN-001"},
		},
		{
			name: "untracked type",
			def:  infra.ResourceDef{Type: "AWS::SNS::Topic"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Optimize(templates(map[string]infra.ResourceDef{"Res": tt.def}), Options{})
			assert.Equal(t, tt.want, rules(result))
		})
	}
}

func TestOptimize_Deterministic(t *testing.T) {
	in := map[string]*infra.Template{
		"b-stack": {Resources: map[string]infra.ResourceDef{
			"Z": {Type: "AWS::Logs::LogGroup"},
			"A": {Type: "AWS::Logs::LogGroup"},
		}},
		"a-stack": {Resources: map[string]infra.ResourceDef{
			"M": {Type: "AWS::Logs::LogGroup"},
		}},
		"empty": nil,
	}

	result := Optimize(in, Options{})
	require.Len(t, result.Suggestions, 3)

	var order []string
	for _, s := range result.Suggestions {
		order = append(order, s.Stack+"/"+s.Resource)
	}
	assert.Equal(t, []string{"a-stack/M", "b-stack/A", "b-stack/Z"}, order)
}
