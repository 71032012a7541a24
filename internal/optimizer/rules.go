package optimizer

import (
	"fmt"
	"slices"
)

// typeRules are the rules of each CloudFormation resource type.
var typeRules = map[string][]Rule{
	"AWS::S3::Bucket":                           s3BucketRules,
	"AWS::Logs::LogGroup":                       logGroupRules,
	"AWS::ECR::Repository":                      ecrRepositoryRules,
	"AWS::EC2::SecurityGroup":                   securityGroupRules,
	"AWS::EC2::SecurityGroupIngress":            securityGroupIngressRules,
	"AWS::ECS::Service":                         ecsServiceRules,
	"AWS::Lambda::Function":                     lambdaFunctionRules,
	"AWS::IAM::Role":                            iamRules,
	"AWS::IAM::Policy":                          iamRules,
	"AWS::CloudFront::Distribution":             distributionRules,
	"AWS::ElasticLoadBalancingV2::LoadBalancer": loadBalancerRules,
}

var s3BucketRules = []Rule{
	{
		ID:       "OPT-S3-001",
		Category: CategorySecurity,
		Severity: "high",
		Title:    "S3 bucket should have encryption enabled",
		Check: func(res Resource) (string, bool) {
			if has(res.Def.Properties, "BucketEncryption") {
				return "", false
			}
			return "Add BucketEncryption with SSE-S3 or SSE-KMS configuration.", true
		},
	},
	{
		ID:       "OPT-S3-002",
		Category: CategorySecurity,
		Severity: "high",
		Title:    "S3 bucket should block public access",
		Check: func(res Resource) (string, bool) {
			block, _ := lookup(res.Def.Properties, "PublicAccessBlockConfiguration").(map[string]any)
			for _, key := range []string{"BlockPublicAcls", "BlockPublicPolicy", "IgnorePublicAcls", "RestrictPublicBuckets"} {
				if block[key] != true {
					return "Set " + key + " to true in PublicAccessBlockConfiguration.", true
				}
			}
			return "", false
		},
	},
	{
		ID:       "OPT-S3-003",
		Category: CategoryReliability,
		Severity: "medium",
		Title:    "S3 bucket should have versioning enabled",
		Check: func(res Resource) (string, bool) {
			if lookup(res.Def.Properties, "VersioningConfiguration", "Status") == "Enabled" {
				return "", false
			}
			return "Add VersioningConfiguration with Status set to 'Enabled'.", true
		},
	},
	{
		ID:       "OPT-S3-004",
		Category: CategoryCost,
		Severity: "low",
		Title:    "S3 bucket should have lifecycle rules",
		Check: func(res Resource) (string, bool) {
			if has(res.Def.Properties, "LifecycleConfiguration") {
				return "", false
			}
			return "Add LifecycleConfiguration with transition and expiration rules.", true
		},
	},
}

var logGroupRules = []Rule{
	{
		ID:       "OPT-LOG-001",
		Category: CategoryCost,
		Severity: "medium",
		Title:    "Log group should have a retention period",
		Check: func(res Resource) (string, bool) {
			if has(res.Def.Properties, "RetentionInDays") {
				return "", false
			}
			return "Set RetentionInDays; log groups without it keep events forever.", true
		},
	},
}

var ecrRepositoryRules = []Rule{
	{
		ID:       "OPT-ECR-001",
		Category: CategorySecurity,
		Severity: "medium",
		Title:    "ECR repository should scan images on push",
		Check: func(res Resource) (string, bool) {
			if lookup(res.Def.Properties, "ImageScanningConfiguration", "ScanOnPush") == true {
				return "", false
			}
			return "Set ImageScanningConfiguration.ScanOnPush to true.", true
		},
	},
	{
		ID:       "OPT-ECR-002",
		Category: CategoryCost,
		Severity: "low",
		Title:    "ECR repository should expire old images",
		Check: func(res Resource) (string, bool) {
			if has(res.Def.Properties, "LifecyclePolicy") {
				return "", false
			}
			return "Add a LifecyclePolicy keeping only the most recent images.", true
		},
	},
}

// openPorts are the ports that may face 0.0.0.0/0.
var openPorts = []float64{80, 443}

var securityGroupRules = []Rule{
	{
		ID:       "OPT-SG-001",
		Category: CategorySecurity,
		Severity: "high",
		Title:    "Security group should not allow unrestricted ingress",
		Check: func(res Resource) (string, bool) {
			rules, _ := lookup(res.Def.Properties, "SecurityGroupIngress").([]any)
			for _, r := range rules {
				if rule, ok := r.(map[string]any); ok {
					if detail, open := openIngress(rule); open {
						return detail, true
					}
				}
			}
			return "", false
		},
	},
}

var securityGroupIngressRules = []Rule{
	{
		ID:       "OPT-SG-001",
		Category: CategorySecurity,
		Severity: "high",
		Title:    "Security group should not allow unrestricted ingress",
		Check: func(res Resource) (string, bool) {
			return openIngress(res.Def.Properties)
		},
	},
}

func openIngress(rule map[string]any) (string, bool) {
	if rule["CidrIp"] != "0.0.0.0/0" && rule["CidrIpv6"] != "::/0" {
		return "", false
	}
	from, _ := rule["FromPort"].(float64)
	to, _ := rule["ToPort"].(float64)
	if from == to && slices.Contains(openPorts, from) {
		return "", false
	}
	return fmt.Sprintf("Restrict the source of ports %v-%v to known ranges or security groups.", rule["FromPort"], rule["ToPort"]), true
}

var ecsServiceRules = []Rule{
	{
		ID:       "OPT-ECS-001",
		Category: CategoryReliability,
		Severity: "medium",
		Title:    "ECS service should roll back failed deployments",
		Check: func(res Resource) (string, bool) {
			breaker := lookup(res.Def.Properties, "DeploymentConfiguration", "DeploymentCircuitBreaker")
			if b, ok := breaker.(map[string]any); ok && b["Enable"] == true && b["Rollback"] == true {
				return "", false
			}
			return "Enable DeploymentConfiguration.DeploymentCircuitBreaker with Rollback.", true
		},
	},
	{
		ID:       "OPT-ECS-002",
		Category: CategorySecurity,
		Severity: "low",
		Title:    "ECS service should not assign public IPs",
		Check: func(res Resource) (string, bool) {
			if lookup(res.Def.Properties, "NetworkConfiguration", "AwsvpcConfiguration", "AssignPublicIp") == "ENABLED" {
				return "Run tasks in private subnets with AssignPublicIp DISABLED.", true
			}
			return "", false
		},
	},
}

var lambdaFunctionRules = []Rule{
	{
		ID:       "OPT-LAM-001",
		Category: CategoryReliability,
		Severity: "low",
		Title:    "Lambda function should have a dead letter queue",
		Check: func(res Resource) (string, bool) {
			if has(res.Def.Properties, "DeadLetterConfig") {
				return "", false
			}
			return "Add DeadLetterConfig pointing to an SQS queue or SNS topic.", true
		},
	},
	{
		ID:       "OPT-LAM-002",
		Category: CategoryReliability,
		Severity: "medium",
		Title:    "Lambda function should have an explicit timeout",
		Check: func(res Resource) (string, bool) {
			if has(res.Def.Properties, "Timeout") {
				return "", false
			}
			return "Set Timeout; the 3 second default is rarely right.", true
		},
	},
}

var iamRules = []Rule{
	{
		ID:       "OPT-IAM-001",
		Category: CategorySecurity,
		Severity: "high",
		Title:    "IAM policy should not grant all actions on all resources",
		Check: func(res Resource) (string, bool) {
			for _, doc := range policyDocuments(res.Def.Properties) {
				statements, _ := lookup(doc, "Statement").([]any)
				for _, s := range statements {
					stmt, _ := s.(map[string]any)
					if stmt["Effect"] == "Allow" && wildcard(stmt["Action"]) && wildcard(stmt["Resource"]) {
						return "Scope the statement to the actions and resources it needs.", true
					}
				}
			}
			return "", false
		},
	},
}

var distributionRules = []Rule{
	{
		ID:       "OPT-CF-001",
		Category: CategorySecurity,
		Severity: "high",
		Title:    "CloudFront distribution should redirect HTTP to HTTPS",
		Check: func(res Resource) (string, bool) {
			switch lookup(res.Def.Properties, "DistributionConfig", "DefaultCacheBehavior", "ViewerProtocolPolicy") {
			case "redirect-to-https", "https-only":
				return "", false
			}
			return "Set DefaultCacheBehavior.ViewerProtocolPolicy to redirect-to-https.", true
		},
	},
	{
		ID:       "OPT-CF-002",
		Category: CategorySecurity,
		Severity: "medium",
		Title:    "CloudFront distribution should be protected by a web ACL",
		Check: func(res Resource) (string, bool) {
			if has(lookup(res.Def.Properties, "DistributionConfig"), "WebACLId") {
				return "", false
			}
			return "Attach a WAF web ACL with WebACLId.", true
		},
	},
}

var loadBalancerRules = []Rule{
	{
		ID:       "OPT-ELB-001",
		Category: CategorySecurity,
		Severity: "medium",
		Title:    "Load balancer should be internal unless it serves the internet",
		Check: func(res Resource) (string, bool) {
			if lookup(res.Def.Properties, "Scheme") == "internal" {
				return "", false
			}
			return "Use Scheme internal and front the service with CloudFront or API Gateway.", true
		},
	},
}

// statefulTypes hold data that is lost when the resource is deleted.
var statefulTypes = []string{
	"AWS::S3::Bucket",
	"AWS::ECR::Repository",
	"AWS::RDS::DBInstance",
	"AWS::DynamoDB::Table",
	"AWS::EFS::FileSystem",
}

// genericRules apply to all resources.
var genericRules = []Rule{
	{
		ID:       "OPT-GEN-001",
		Category: CategoryReliability,
		Severity: "low",
		Title:    "Stateful resource should have a DeletionPolicy",
		Check: func(res Resource) (string, bool) {
			if !slices.Contains(statefulTypes, res.Def.Type) || res.Def.DeletionPolicy != "" {
				return "", false
			}
			return "Add DeletionPolicy: Retain or DeletionPolicy: Snapshot to protect data.", true
		},
	},
}

// lookup walks nested maps along path and returns the value, or nil.
func lookup(v any, path ...string) any {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

func has(v any, key string) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

// policyDocuments returns the inline documents of a role or policy.
func policyDocuments(props map[string]any) []any {
	var docs []any
	if doc := lookup(props, "PolicyDocument"); doc != nil {
		docs = append(docs, doc)
	}
	policies, _ := lookup(props, "Policies").([]any)
	for _, p := range policies {
		if doc := lookup(p, "PolicyDocument"); doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs
}

func wildcard(v any) bool {
	switch v := v.(type) {
	case string:
		return v == "*"
	case []any:
		for _, item := range v {
			if item == "*" {
				return true
			}
		}
	}
	return false
}
