// Package scheduler declares the functions that start and stop the services
// on a schedule by setting their desired count.
//
// Only the infrastructure is declared. The function code is uploaded by the
// operator and located through the CodeBucket and CodeKey parameters.
package scheduler

import (
	"fmt"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/compute"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	. "github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

const (
	// Runtime of the scheduler functions.
	Runtime = "nodejs22.x"
	Handler = "ecs-scheduler.handler"

	timeoutSeconds   = 120
	logRetentionDays = 7
)

// Input is what the builder needs.
type Input struct {
	Prefix   string
	Region   string
	Schedule config.ScheduleConfig
	Compute  *compute.Composition
}

// Scheduler is the declared scheduler unit.
type Scheduler struct {
	Role  *stack.Resource
	Start *Action
	Stop  *Action
}

// Action is one scheduled function and its trigger.
type Action struct {
	Name         string
	DesiredCount int
	LogGroup     *stack.Resource
	Function     *stack.Resource
	Rule         *stack.Resource
	Permission   *stack.Resource
}

// Build declares the role, the start and stop functions and their rules
// into st.
func Build(st *stack.Stack, store *exports.Store, in Input) (*Scheduler, error) {
	s := &Scheduler{}

	s.Role = st.Add("scheduler-role", "AWS::IAM::Role", map[string]any{
		"RoleName":                 in.Prefix + "-lambda-ecs-scheduler",
		"AssumeRolePolicyDocument": AssumeRolePolicy("lambda.amazonaws.com"),
		"ManagedPolicyArns": Any(
			ManagedPolicyARN("service-role/AWSLambdaVPCAccessExecutionRole"),
			ManagedPolicyARN("service-role/AWSLambdaBasicExecutionRole"),
		),
		"Policies": []any{Json{
			"PolicyName": "ecs-update",
			"PolicyDocument": NewPolicyDocument(PolicyStatement{
				Effect: "Allow",
				Action: []string{
					"ecs:DescribeServices",
					"ecs:DescribeClusters",
					"ecs:UpdateService",
				},
				Resource: "*",
			}),
		}},
	})

	bucket := st.AddParameter("code-bucket", infra.Parameter{
		Type:        "String",
		Description: "S3 bucket holding the scheduler function code",
	})
	key := st.AddParameter("code-key", infra.Parameter{
		Type:        "String",
		Description: "S3 key of the scheduler function code",
	})

	cluster := st.Import(store, in.Compute.ClusterExport)
	services := make([]any, 0, len(in.Compute.Services))
	for _, u := range in.Compute.Services {
		services = append(services, st.Import(store, u.ServiceExport))
	}
	env := Json{
		"region":      in.Region,
		"clusterName": cluster,
		"services":    Join{Delimiter: ",", Values: services},
	}

	code := Json{"S3Bucket": bucket, "S3Key": key}
	s.Start = action(st, s.Role, code, env, in.Prefix+"-ecs-start", "start", in.Schedule.Start, 1)
	s.Stop = action(st, s.Role, code, env, in.Prefix+"-ecs-stop", "stop", in.Schedule.Stop, 0)

	if err := st.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func action(st *stack.Stack, role *stack.Resource, code, env Json, name, base, cron string, desired int) *Action {
	a := &Action{Name: name, DesiredCount: desired}

	a.LogGroup = st.Add(base+"-log-group", "AWS::Logs::LogGroup", map[string]any{
		"LogGroupName":    "/aws/lambda/" + name,
		"RetentionInDays": logRetentionDays,
	})

	vars := Json{"desiredCount": fmt.Sprint(desired)}
	for k, v := range env {
		vars[k] = v
	}
	a.Function = st.Add(base+"-function", "AWS::Lambda::Function", map[string]any{
		"FunctionName": name,
		"Runtime":      Runtime,
		"Handler":      Handler,
		"Code":         code,
		"Role":         role.GetAtt("Arn"),
		"Timeout":      timeoutSeconds,
		"Environment":  Json{"Variables": vars},
	})
	// The function would otherwise create its log group without retention.
	st.DependsOn(a.Function, a.LogGroup)

	a.Rule = st.Add(base+"-rule", "AWS::Events::Rule", map[string]any{
		"Name":               name,
		"ScheduleExpression": "cron(" + cron + ")",
		"State":              "ENABLED",
		"Targets": []any{Json{
			"Id":  "Target0",
			"Arn": a.Function.GetAtt("Arn"),
		}},
	})
	a.Permission = st.Add(base+"-permission", "AWS::Lambda::Permission", map[string]any{
		"Action":       "lambda:InvokeFunction",
		"FunctionName": a.Function.GetAtt("Arn"),
		"Principal":    "events.amazonaws.com",
		"SourceArn":    a.Rule.GetAtt("Arn"),
	})
	return a
}
