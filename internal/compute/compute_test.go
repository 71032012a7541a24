package compute

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/network"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/security"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
)

var services = []config.ServiceConfig{
	{Name: "web", CPU: 256, Memory: 512, Port: 8080, HealthCheckPath: "/health", Environment: map[string]string{"B": "2", "A": "1"}},
	{Name: "api", CPU: 512, Memory: 1024, Port: 3000, HealthCheckPath: "/status"},
}

// upstream builds the network and perimeter the compute tier consumes.
func upstream(t *testing.T, svcs []config.ServiceConfig) (*exports.Store, Input) {
	t.Helper()
	store := exports.NewStore()

	netStack := stack.New("dev-app-network", "eu-west-1", "123456789012", nil)
	topo, err := network.Build(netStack, store, network.Input{
		Prefix: "dev-app",
		Region: "eu-west-1",
		Network: config.NetworkConfig{
			VpcCIDR:        "10.0.0.0/16",
			PrivateSubnets: []config.SubnetConfig{{Zone: "a", CIDR: "10.0.1.0/24"}, {Zone: "b", CIDR: "10.0.3.0/24"}},
			PublicSubnets:  []config.SubnetConfig{{Zone: "a", CIDR: "10.0.2.0/24"}},
		},
	})
	require.NoError(t, err)

	sgStack := stack.New("dev-app-security-groups", "eu-west-1", "123456789012", nil)
	perimeter, err := security.Build(sgStack, store, security.Input{
		Prefix:    "dev-app",
		VPCExport: topo.VPCExport,
		Services:  svcs,
	})
	require.NoError(t, err)

	return store, Input{
		Prefix:         "dev-app",
		Environment:    "dev",
		VPCExport:      topo.VPCExport,
		PrivateSubnets: topo.Private,
		Perimeter:      perimeter,
		Services:       svcs,
	}
}

func newStack() *stack.Stack {
	return stack.New("dev-app-ecs", "eu-west-1", "123456789012", nil)
}

func TestBuild_CompositeRecords(t *testing.T) {
	store, in := upstream(t, services)
	st := newStack()

	c, err := Build(st, store, in)
	require.NoError(t, err)

	require.Len(t, c.Services, len(services))
	for i, u := range c.Services {
		svc := services[i]
		assert.Equal(t, svc, u.Config)
		assert.Equal(t, "dev-app-"+svc.Name, u.Name)
		assert.Same(t, in.Perimeter.ServiceGroups[i], u.SecurityGroup)
		assert.Equal(t, TargetGroupName(svc), u.TargetGroup.Properties["Name"])
		assert.Equal(t, float64(svc.Port), u.TargetGroup.Properties["Port"])
		assert.Equal(t, float64(svc.Port), u.Listener.Properties["Port"])
		assert.Equal(t, "dev-app-"+svc.Name+"-task", u.TaskDefinition.Properties["Family"])
		assert.Equal(t, "dev-app-"+svc.Name, u.Service.Properties["ServiceName"])
	}

	assert.Equal(t, "web-8080-tg", c.Services[0].TargetGroup.Properties["Name"])
	assert.Equal(t, "api-3000-tg", c.Services[1].TargetGroup.Properties["Name"])
}

func TestBuild_ColdStartAtZero(t *testing.T) {
	store, in := upstream(t, services)
	c, err := Build(newStack(), store, in)
	require.NoError(t, err)

	for _, u := range c.Services {
		assert.Equal(t, float64(0), u.Service.Properties["DesiredCount"])
	}
}

func TestBuild_TargetRegistration(t *testing.T) {
	store, in := upstream(t, services)
	st := newStack()
	c, err := Build(st, store, in)
	require.NoError(t, err)

	for i, u := range c.Services {
		lbs := u.Service.Properties["LoadBalancers"].([]any)
		require.Len(t, lbs, 1)
		lb := lbs[0].(map[string]any)
		assert.Equal(t, map[string]any{"Ref": u.TargetGroup.ID}, lb["TargetGroupArn"])
		assert.Equal(t, u.ContainerName, lb["ContainerName"])
		assert.Equal(t, float64(services[i].Port), lb["ContainerPort"])

		assert.Equal(t, []string{u.Listener.ID}, u.Service.DependsOn)

		ingress := u.Ingress
		require.NotNil(t, ingress)
		assert.Equal(t, "AWS::EC2::SecurityGroupIngress", ingress.Type)
		assert.Equal(t, map[string]any{"Fn::ImportValue": u.SecurityGroup.Export}, ingress.Properties["GroupId"])
		assert.Equal(t, map[string]any{"Fn::ImportValue": "dev-app-alb-sg-id"}, ingress.Properties["SourceSecurityGroupId"])
		assert.Equal(t, float64(services[i].Port), ingress.Properties["FromPort"])
		assert.Equal(t, float64(services[i].Port), ingress.Properties["ToPort"])
		assert.Equal(t, "tcp", ingress.Properties["IpProtocol"])
	}
}

func TestBuild_Container(t *testing.T) {
	store, in := upstream(t, services)
	c, err := Build(newStack(), store, in)
	require.NoError(t, err)

	web := c.Services[0]
	defs := web.TaskDefinition.Properties["ContainerDefinitions"].([]any)
	require.Len(t, defs, 1)
	def := defs[0].(map[string]any)

	assert.Equal(t, "dev-app-web-8080", def["Name"])
	assert.Equal(t, map[string]any{"Fn::Join": []any{":", []any{
		map[string]any{"Fn::GetAtt": []any{web.Repository.ID, "RepositoryUri"}},
		"dev",
	}}}, def["Image"])
	assert.Equal(t, []any{
		map[string]any{"Name": "A", "Value": "1"},
		map[string]any{"Name": "B", "Value": "2"},
	}, def["Environment"])

	logs := def["LogConfiguration"].(map[string]any)["Options"].(map[string]any)
	assert.Equal(t, map[string]any{"Ref": web.LogGroup.ID}, logs["awslogs-group"])
	assert.Equal(t, "dev-app-ecs-web", web.LogGroup.Properties["LogGroupName"])
	assert.Equal(t, float64(14), web.LogGroup.Properties["RetentionInDays"])

	assert.NotContains(t, c.Services[1].TaskDefinition.Properties["ContainerDefinitions"].([]any)[0], "Environment")
}

func TestBuild_SharedClusterAndLoadBalancer(t *testing.T) {
	store, in := upstream(t, services)
	st := newStack()
	c, err := Build(st, store, in)
	require.NoError(t, err)

	clusters, albs := 0, 0
	for _, id := range st.Declared() {
		r, _ := st.Resource(id)
		switch r.Type {
		case "AWS::ECS::Cluster":
			clusters++
		case "AWS::ElasticLoadBalancingV2::LoadBalancer":
			albs++
		}
	}
	assert.Equal(t, 1, clusters)
	assert.Equal(t, 1, albs)
	assert.Equal(t, "internal", c.LoadBalancer.Properties["Scheme"])
	assert.Len(t, c.LoadBalancer.Properties["Subnets"], 2)
	for _, u := range c.Services {
		assert.Equal(t, map[string]any{"Ref": c.Cluster.ID}, u.Service.Properties["Cluster"])
	}

	assert.Contains(t, store.Names(), "dev-app-web-tg-full-name")
	assert.Contains(t, store.Names(), "dev-app-api-service-name")
	assert.Contains(t, store.Names(), "dev-app-ecs-cluster-name")
	assert.Equal(t, []string{"dev-app-network", "dev-app-security-groups"}, st.Dependencies())
}

func TestBuild_TopologyErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Input)
		message string
	}{
		{
			name: "perimeter shorter than services",
			modify: func(in *Input) {
				in.Perimeter = &security.Perimeter{ALBGroup: in.Perimeter.ALBGroup, ServiceGroups: in.Perimeter.ServiceGroups[:1]}
			},
			message: "1 service security groups for 2 services",
		},
		{
			name:    "no perimeter",
			modify:  func(in *Input) { in.Perimeter = nil },
			message: "0 service security groups",
		},
		{
			name:    "no private subnets",
			modify:  func(in *Input) { in.PrivateSubnets = nil },
			message: "private subnet",
		},
		{
			name: "port collision",
			modify: func(in *Input) {
				in.Services = []config.ServiceConfig{services[0], {Name: "other", Port: 8080}}
			},
			message: "listener port 8080 used by both web and other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, in := upstream(t, services)
			tt.modify(&in)
			st := newStack()

			_, err := Build(st, store, in)
			var topo *infra.TopologyError
			require.True(t, errors.As(err, &topo), "got %v", err)
			assert.Contains(t, topo.Reason, tt.message)
			assert.Equal(t, 0, st.Len())
		})
	}
}

func TestLifecyclePolicy(t *testing.T) {
	assert.JSONEq(t, `{"rules":[{
		"rulePriority": 1,
		"description": "Keep the last 10 images",
		"selection": {"tagStatus": "any", "countType": "imageCountMoreThan", "countNumber": 10},
		"action": {"type": "expire"}
	}]}`, lifecyclePolicy(10))
}
