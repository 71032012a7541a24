package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/compute"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
)

// published fakes the exports of a compute stack with the given services.
func published(t *testing.T, names ...string) (*exports.Store, *compute.Composition) {
	t.Helper()
	store := exports.NewStore()
	put := func(name string) {
		require.NoError(t, store.Put(exports.Export{
			Name:   name,
			Stack:  "dev-app-ecs",
			Region: "eu-west-1",
			Output: stack.LogicalID(name),
			Value:  name,
		}))
	}

	c := &compute.Composition{ClusterName: "dev-app", ClusterExport: "dev-app-ecs-cluster-name"}
	put(c.ClusterExport)
	for _, name := range names {
		u := &compute.ServiceUnit{
			Config:        config.ServiceConfig{Name: name},
			ServiceExport: "dev-app-" + name + "-service-name",
		}
		put(u.ServiceExport)
		c.Services = append(c.Services, u)
	}
	return store, c
}

func build(t *testing.T) (*stack.Stack, *Scheduler) {
	t.Helper()
	store, c := published(t, "web", "api")
	st := stack.New("dev-app-ecs-scheduler", "eu-west-1", "123456789012", nil)

	s, err := Build(st, store, Input{
		Prefix:   "dev-app",
		Region:   "eu-west-1",
		Schedule: config.ScheduleConfig{Start: "0 7 ? * MON-FRI *", Stop: "0 19 ? * MON-FRI *"},
		Compute:  c,
	})
	require.NoError(t, err)
	return st, s
}

func TestBuild_Functions(t *testing.T) {
	_, s := build(t)

	tests := []struct {
		action  *Action
		name    string
		desired string
		cron    string
	}{
		{s.Start, "dev-app-ecs-start", "1", "cron(0 7 ? * MON-FRI *)"},
		{s.Stop, "dev-app-ecs-stop", "0", "cron(0 19 ? * MON-FRI *)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := tt.action.Function.Properties
			assert.Equal(t, tt.name, fn["FunctionName"])
			assert.Equal(t, "nodejs22.x", fn["Runtime"])
			assert.Equal(t, float64(120), fn["Timeout"])
			assert.Equal(t, map[string]any{"Fn::GetAtt": []any{s.Role.ID, "Arn"}}, fn["Role"])
			assert.Equal(t, map[string]any{
				"S3Bucket": map[string]any{"Ref": "CodeBucket"},
				"S3Key":    map[string]any{"Ref": "CodeKey"},
			}, fn["Code"])

			vars := fn["Environment"].(map[string]any)["Variables"].(map[string]any)
			assert.Equal(t, "eu-west-1", vars["region"])
			assert.Equal(t, tt.desired, vars["desiredCount"])
			assert.Equal(t, map[string]any{"Fn::ImportValue": "dev-app-ecs-cluster-name"}, vars["clusterName"])
			assert.Equal(t, map[string]any{"Fn::Join": []any{",", []any{
				map[string]any{"Fn::ImportValue": "dev-app-web-service-name"},
				map[string]any{"Fn::ImportValue": "dev-app-api-service-name"},
			}}}, vars["services"])

			assert.Equal(t, tt.cron, tt.action.Rule.Properties["ScheduleExpression"])
			assert.Equal(t, "/aws/lambda/"+tt.name, tt.action.LogGroup.Properties["LogGroupName"])
			assert.Equal(t, float64(7), tt.action.LogGroup.Properties["RetentionInDays"])
			assert.Equal(t, []string{tt.action.LogGroup.ID}, tt.action.Function.DependsOn)

			perm := tt.action.Permission.Properties
			assert.Equal(t, "events.amazonaws.com", perm["Principal"])
			assert.Equal(t, map[string]any{"Fn::GetAtt": []any{tt.action.Rule.ID, "Arn"}}, perm["SourceArn"])
		})
	}
}

func TestBuild_ParametersAndDependencies(t *testing.T) {
	st, _ := build(t)

	params := st.Parameters()
	assert.Contains(t, params, "CodeBucket")
	assert.Contains(t, params, "CodeKey")
	assert.Empty(t, st.Bindings())
	assert.Equal(t, []string{"dev-app-ecs"}, st.Dependencies())
}

func TestBuild_RoleFirst(t *testing.T) {
	st, s := build(t)

	order, err := st.Order()
	require.NoError(t, err)
	require.NotEmpty(t, order)
	assert.Equal(t, s.Role.ID, order[0])
	assert.Equal(t, 9, st.Len())
}
