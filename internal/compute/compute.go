// Package compute builds the container tier: one internal load balancer, one
// cluster, and for every configured service a composite record holding its
// target group, listener, logs, image repository, roles, task definition,
// running service and the ingress rule opened by target registration.
package compute

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/network"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/security"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	. "github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

const (
	// InitialDesiredCount is the replica count every service is created
	// with. Raising it is an operator or scheduler action.
	InitialDesiredCount = 0

	logRetentionDays   = 14
	keepImages         = 10
	healthCheckTimeout = 20
	unhealthyThreshold = 5
)

// Input is what the builder needs.
type Input struct {
	Prefix      string
	Environment string
	// VPCExport is the reference-store name of the VPC id.
	VPCExport      string
	PrivateSubnets []*network.Subnet
	Perimeter      *security.Perimeter
	Services       []config.ServiceConfig
}

// Composition is the declared compute tier.
type Composition struct {
	LoadBalancer       *stack.Resource
	LoadBalancerExport string
	Cluster            *stack.Resource
	ClusterName        string
	ClusterExport      string
	// Services has one entry per configured service, in configuration order.
	Services []*ServiceUnit
}

// ServiceUnit is everything derived from one configured service.
type ServiceUnit struct {
	Config config.ServiceConfig
	// Name is the ECS service name, "<cluster>-<service>".
	Name          string
	ContainerName string

	TargetGroup    *stack.Resource
	Listener       *stack.Resource
	SecurityGroup  *security.Group
	LogGroup       *stack.Resource
	Repository     *stack.Resource
	ExecutionRole  *stack.Resource
	TaskRole       *stack.Resource
	TaskDefinition *stack.Resource
	Service        *stack.Resource
	// Ingress lets the load balancer group reach the service group on the
	// service port.
	Ingress *stack.Resource

	TargetGroupExport string
	ServiceExport     string
}

// TargetGroupName is the target group name of a service, keyed by name and port.
func TargetGroupName(svc config.ServiceConfig) string {
	return fmt.Sprintf("%s-%d-tg", svc.Name, svc.Port)
}

// Build declares the compute tier into st. Mismatched perimeter and service
// list lengths, a missing private subnet or a listener port collision fail
// before anything is declared.
func Build(st *stack.Stack, store *exports.Store, in Input) (*Composition, error) {
	if err := check(in); err != nil {
		return nil, err
	}

	b := &builder{st: st, store: store, in: in}
	c := &Composition{
		ClusterName:        in.Prefix,
		LoadBalancerExport: in.Prefix + "-alb-full-name",
		ClusterExport:      in.Prefix + "-ecs-cluster-name",
	}

	vpcID := st.Import(store, in.VPCExport)
	subnets := make([]any, 0, len(in.PrivateSubnets))
	for _, subnet := range in.PrivateSubnets {
		subnets = append(subnets, st.Import(store, subnet.SubnetExport))
	}
	b.vpcID = vpcID
	b.subnets = subnets
	b.albGroup = st.Import(store, in.Perimeter.ALBGroup.Export)

	c.LoadBalancer = st.Add("alb", "AWS::ElasticLoadBalancingV2::LoadBalancer", map[string]any{
		"Name":           in.Prefix + "-alb",
		"Scheme":         "internal",
		"Type":           "application",
		"Subnets":        subnets,
		"SecurityGroups": Any(b.albGroup),
		"LoadBalancerAttributes": []any{
			Json{"Key": "deletion_protection.enabled", "Value": "false"},
		},
	})
	st.Export(store, c.LoadBalancerExport, c.LoadBalancer.GetAtt("LoadBalancerFullName"))

	c.Cluster = st.Add("cluster", "AWS::ECS::Cluster", map[string]any{
		"ClusterName": c.ClusterName,
	})
	st.Export(store, c.ClusterExport, c.Cluster.Ref())

	for i, svc := range in.Services {
		c.Services = append(c.Services, b.service(c, svc, in.Perimeter.ServiceGroups[i]))
	}

	if err := st.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func check(in Input) error {
	if in.Perimeter == nil || len(in.Perimeter.ServiceGroups) != len(in.Services) {
		got := 0
		if in.Perimeter != nil {
			got = len(in.Perimeter.ServiceGroups)
		}
		return &infra.TopologyError{Reason: fmt.Sprintf("%d service security groups for %d services", got, len(in.Services))}
	}
	if len(in.PrivateSubnets) == 0 {
		return &infra.TopologyError{Reason: "load balancer requires ≥1 private subnet"}
	}
	ports := make(map[int]string)
	for _, svc := range in.Services {
		if other, ok := ports[svc.Port]; ok {
			return &infra.TopologyError{Reason: fmt.Sprintf("listener port %d used by both %s and %s", svc.Port, other, svc.Name)}
		}
		ports[svc.Port] = svc.Name
	}
	return nil
}

type builder struct {
	st    *stack.Stack
	store *exports.Store
	in    Input

	vpcID    any
	subnets  []any
	albGroup any
}

func (b *builder) service(c *Composition, svc config.ServiceConfig, group *security.Group) *ServiceUnit {
	st := b.st
	u := &ServiceUnit{
		Config:            svc,
		Name:              c.ClusterName + "-" + svc.Name,
		SecurityGroup:     group,
		TargetGroupExport: fmt.Sprintf("%s-%s-tg-full-name", b.in.Prefix, svc.Name),
		ServiceExport:     fmt.Sprintf("%s-%s-service-name", b.in.Prefix, svc.Name),
	}
	u.ContainerName = fmt.Sprintf("%s-%d", u.Name, svc.Port)
	port := strconv.Itoa(svc.Port)

	u.TargetGroup = st.Add(TargetGroupName(svc), "AWS::ElasticLoadBalancingV2::TargetGroup", map[string]any{
		"Name":                      TargetGroupName(svc),
		"VpcId":                     b.vpcID,
		"TargetType":                "ip",
		"Protocol":                  "HTTP",
		"Port":                      svc.Port,
		"HealthCheckEnabled":        true,
		"HealthCheckPath":           svc.HealthCheckPath,
		"HealthCheckPort":           port,
		"HealthCheckTimeoutSeconds": healthCheckTimeout,
		"UnhealthyThresholdCount":   unhealthyThreshold,
	})
	u.Listener = st.Add("alb-"+svc.Name+"-http", "AWS::ElasticLoadBalancingV2::Listener", map[string]any{
		"LoadBalancerArn": c.LoadBalancer.Ref(),
		"Port":            svc.Port,
		"Protocol":        "HTTP",
		"DefaultActions": []any{Json{
			"Type":           "forward",
			"TargetGroupArn": u.TargetGroup.Ref(),
		}},
	})
	st.Export(b.store, u.TargetGroupExport, u.TargetGroup.GetAtt("TargetGroupFullName"))

	u.LogGroup = st.Add(svc.Name+"-log-group", "AWS::Logs::LogGroup", map[string]any{
		"LogGroupName":    fmt.Sprintf("%s-ecs-%s", b.in.Prefix, svc.Name),
		"RetentionInDays": logRetentionDays,
	})

	u.Repository = st.Add(svc.Name+"-repository", "AWS::ECR::Repository", map[string]any{
		"RepositoryName":          u.Name + "-docker",
		"EncryptionConfiguration": Json{"EncryptionType": "AES256"},
		"LifecyclePolicy":         Json{"LifecyclePolicyText": lifecyclePolicy(keepImages)},
		"EmptyOnDelete":           true,
	})

	u.ExecutionRole = st.Add(svc.Name+"-execution-role", "AWS::IAM::Role", map[string]any{
		"RoleName":                 u.Name + "-exec",
		"AssumeRolePolicyDocument": AssumeRolePolicy("ecs-tasks.amazonaws.com"),
		"ManagedPolicyArns": Any(
			ManagedPolicyARN("service-role/AmazonECSTaskExecutionRolePolicy"),
		),
	})
	u.TaskRole = st.Add(svc.Name+"-task-role", "AWS::IAM::Role", map[string]any{
		"RoleName":                 u.Name + "-task",
		"AssumeRolePolicyDocument": AssumeRolePolicy("ecs-tasks.amazonaws.com"),
		"ManagedPolicyArns": Any(
			ManagedPolicyARN("service-role/AmazonEC2ContainerServiceRole"),
			ManagedPolicyARN("AmazonEC2ContainerRegistryFullAccess"),
		),
		"Policies": []any{Json{
			"PolicyName": "ecs-exec",
			"PolicyDocument": NewPolicyDocument(PolicyStatement{
				Effect: "Allow",
				Action: []string{
					"ssmmessages:CreateControlChannel",
					"ssmmessages:CreateDataChannel",
					"ssmmessages:OpenControlChannel",
					"ssmmessages:OpenDataChannel",
				},
				Resource: "*",
			}),
		}},
	})

	u.TaskDefinition = st.Add(svc.Name+"-task-definition", "AWS::ECS::TaskDefinition", map[string]any{
		"Family":                  u.Name + "-task",
		"Cpu":                     strconv.Itoa(svc.CPU),
		"Memory":                  strconv.Itoa(svc.Memory),
		"NetworkMode":             "awsvpc",
		"RequiresCompatibilities": []string{"FARGATE"},
		"ExecutionRoleArn":        u.ExecutionRole.GetAtt("Arn"),
		"TaskRoleArn":             u.TaskRole.GetAtt("Arn"),
		"ContainerDefinitions":    []any{b.container(u)},
	})

	u.Service = st.Add(svc.Name+"-service", "AWS::ECS::Service", map[string]any{
		"ServiceName":          u.Name,
		"Cluster":              c.Cluster.Ref(),
		"TaskDefinition":       u.TaskDefinition.Ref(),
		"LaunchType":           "FARGATE",
		"DesiredCount":         InitialDesiredCount,
		"EnableExecuteCommand": true,
		"DeploymentConfiguration": Json{
			"MaximumPercent":        200,
			"MinimumHealthyPercent": 50,
		},
		"NetworkConfiguration": Json{
			"AwsvpcConfiguration": Json{
				"AssignPublicIp": "DISABLED",
				"Subnets":        b.subnets,
				"SecurityGroups": Any(b.st.Import(b.store, group.Export)),
			},
		},
		"LoadBalancers": []any{Json{
			"ContainerName":  u.ContainerName,
			"ContainerPort":  svc.Port,
			"TargetGroupArn": u.TargetGroup.Ref(),
		}},
	})
	b.register(u)
	st.Export(b.store, u.ServiceExport, u.Service.GetAtt("Name"))
	return u
}

// register completes the target registration of u: the service may only be
// created once its target group is attached to the load balancer, and the
// load balancer group needs an ingress rule into the service group.
func (b *builder) register(u *ServiceUnit) {
	b.st.DependsOn(u.Service, u.Listener)
	u.Ingress = b.st.Add(u.Config.Name+"-alb-ingress", "AWS::EC2::SecurityGroupIngress", map[string]any{
		"GroupId":               b.st.Import(b.store, u.SecurityGroup.Export),
		"SourceSecurityGroupId": b.albGroup,
		"IpProtocol":            "tcp",
		"FromPort":              u.Config.Port,
		"ToPort":                u.Config.Port,
		"Description":           fmt.Sprintf("Load balancer to %s on port %d", u.Name, u.Config.Port),
	})
}

func (b *builder) container(u *ServiceUnit) Json {
	svc := u.Config
	def := Json{
		"Name":      u.ContainerName,
		"Image":     Join{Delimiter: ":", Values: []any{u.Repository.GetAtt("RepositoryUri"), b.in.Environment}},
		"Essential": true,
		"PortMappings": []any{Json{
			"ContainerPort": svc.Port,
			"Protocol":      "tcp",
		}},
		"LogConfiguration": Json{
			"LogDriver": "awslogs",
			"Options": Json{
				"awslogs-group":         u.LogGroup.Ref(),
				"awslogs-region":        AWS_REGION,
				"awslogs-stream-prefix": "log",
			},
		},
		"LinuxParameters": Json{"InitProcessEnabled": true},
	}

	if len(svc.Environment) > 0 {
		keys := make([]string, 0, len(svc.Environment))
		for k := range svc.Environment {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		env := make([]any, 0, len(keys))
		for _, k := range keys {
			env = append(env, Json{"Name": k, "Value": svc.Environment[k]})
		}
		def["Environment"] = env
	}
	return def
}

// lifecyclePolicy expires images beyond the newest keep.
func lifecyclePolicy(keep int) string {
	policy := map[string]any{
		"rules": []any{map[string]any{
			"rulePriority": 1,
			"description":  fmt.Sprintf("Keep the last %d images", keep),
			"selection": map[string]any{
				"tagStatus":   "any",
				"countType":   "imageCountMoreThan",
				"countNumber": keep,
			},
			"action": map[string]any{"type": "expire"},
		}},
	}
	data, _ := json.Marshal(policy)
	return string(data)
}
