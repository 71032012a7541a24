package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
)

func storeWithVPC(t *testing.T) *exports.Store {
	t.Helper()
	store := exports.NewStore()
	require.NoError(t, store.Put(exports.Export{
		Name:   "dev-app-vpc-id",
		Stack:  "dev-app-network",
		Region: "eu-west-1",
		Output: "DevAppVpcId",
	}))
	return store
}

func TestBuild(t *testing.T) {
	st := stack.New("dev-app-security-groups", "eu-west-1", "123456789012", nil)
	store := storeWithVPC(t)

	p, err := Build(st, store, Input{
		Prefix:    "dev-app",
		VPCExport: "dev-app-vpc-id",
		Services: []config.ServiceConfig{
			{Name: "web", Port: 8080},
			{Name: "api", Port: 3000},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "dev-app-alb", p.ALBGroup.Name)
	require.Len(t, p.ServiceGroups, 2)
	assert.Equal(t, "dev-app-ecs-web", p.ServiceGroups[0].Name)
	assert.Equal(t, "dev-app-ecs-api", p.ServiceGroups[1].Name)
	assert.Equal(t, "EcsApiSg", p.ServiceGroups[1].Resource.ID)

	for _, g := range append([]*Group{p.ALBGroup}, p.ServiceGroups...) {
		props := g.Resource.Properties
		assert.Equal(t, map[string]any{"Fn::ImportValue": "dev-app-vpc-id"}, props["VpcId"])
		assert.NotContains(t, props, "SecurityGroupIngress", "%s must not carry ingress", g.Name)
	}

	assert.Equal(t, []string{"dev-app-network"}, st.Dependencies())
	assert.Contains(t, store.Names(), "dev-app-ecs-web-sg-id")
	assert.Contains(t, store.Names(), "dev-app-alb-sg-id")
}

func TestBuild_NoServices(t *testing.T) {
	st := stack.New("dev-app-security-groups", "eu-west-1", "123456789012", nil)
	p, err := Build(st, storeWithVPC(t), Input{Prefix: "dev-app", VPCExport: "dev-app-vpc-id"})
	require.NoError(t, err)
	assert.Empty(t, p.ServiceGroups)
	assert.Equal(t, 1, st.Len())
}

func TestBuild_MissingVPC(t *testing.T) {
	st := stack.New("dev-app-security-groups", "eu-west-1", "123456789012", nil)
	_, err := Build(st, exports.NewStore(), Input{Prefix: "dev-app", VPCExport: "dev-app-vpc-id"})

	var nf *infra.NotFoundError
	assert.True(t, errors.As(err, &nf))
}
