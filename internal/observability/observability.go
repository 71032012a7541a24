// Package observability declares the alarms and the dashboard watching the
// compute tier.
//
// Every service gets three leaf alarms (unhealthy targets, CPU, memory) and a
// composite alarm over them that notifies one shared topic. Metric dimensions
// are imported from the compute stack exports.
package observability

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/compute"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	. "github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

const (
	usageThreshold = 80
	metricPeriod   = 300
	widgetHeight   = 6
)

// Input is what the builder needs.
type Input struct {
	Prefix  string
	Compute *compute.Composition
}

// Watch is the declared observability unit.
type Watch struct {
	Topic     *stack.Resource
	TopicName string
	Services  []*ServiceAlarms
	Dashboard *stack.Resource
}

// ServiceAlarms are the alarms of one service.
type ServiceAlarms struct {
	Service       string
	UnhealthyHost *stack.Resource
	CPU           *stack.Resource
	Memory        *stack.Resource
	Composite     *stack.Resource
	// Rule is the composite alarm rule.
	Rule string
}

// Leaves returns the leaf alarms in creation order.
func (a *ServiceAlarms) Leaves() []*stack.Resource {
	return []*stack.Resource{a.UnhealthyHost, a.CPU, a.Memory}
}

// Rule builds "ALARM(a) OR ALARM(b) ..." over names, in order.
func Rule(names ...string) string {
	terms := make([]string, len(names))
	for i, name := range names {
		terms[i] = "ALARM(" + name + ")"
	}
	return strings.Join(terms, " OR ")
}

type dimensions struct {
	loadBalancer any
	cluster      any
	targetGroups []any
	services     []any
}

// Build declares the alarms, the topic and the dashboard into st.
func Build(st *stack.Stack, store *exports.Store, in Input) (*Watch, error) {
	w := &Watch{TopicName: in.Prefix + "-cw-alarms"}
	w.Topic = st.Add("alarm-topic", "AWS::SNS::Topic", map[string]any{
		"TopicName": w.TopicName,
	})

	c := in.Compute
	dims := dimensions{
		loadBalancer: st.Import(store, c.LoadBalancerExport),
		cluster:      st.Import(store, c.ClusterExport),
	}
	for _, u := range c.Services {
		dims.targetGroups = append(dims.targetGroups, st.Import(store, u.TargetGroupExport))
		dims.services = append(dims.services, st.Import(store, u.ServiceExport))
	}

	for i, u := range c.Services {
		w.Services = append(w.Services, serviceAlarms(st, in.Prefix, w.Topic, u.Config.Name, dims, i))
	}

	body, vars := dashboardBody(dims)
	w.Dashboard = st.Add("ecs-dashboard", "AWS::CloudWatch::Dashboard", map[string]any{
		"DashboardName": in.Prefix + "-ecs-monitor",
		"DashboardBody": SubWithMap{String: body, Variables: vars},
	})

	if err := st.Err(); err != nil {
		return nil, err
	}
	return w, nil
}

func serviceAlarms(st *stack.Stack, prefix string, topic *stack.Resource, name string, dims dimensions, i int) *ServiceAlarms {
	a := &ServiceAlarms{Service: name}

	a.UnhealthyHost = st.Add(name+"-unhealthy-hosts-alarm", "AWS::CloudWatch::Alarm", alarm(
		fmt.Sprintf("tg-%s-%s-unhealthy-hosts", prefix, name),
		"AWS/ApplicationELB", "UnHealthyHostCount",
		[]any{
			Json{"Name": "LoadBalancer", "Value": dims.loadBalancer},
			Json{"Name": "TargetGroup", "Value": dims.targetGroups[i]},
		},
		"GreaterThanOrEqualToThreshold", 1,
	))

	serviceDims := []any{
		Json{"Name": "ClusterName", "Value": dims.cluster},
		Json{"Name": "ServiceName", "Value": dims.services[i]},
	}
	a.CPU = st.Add(name+"-cpu-alarm", "AWS::CloudWatch::Alarm", alarm(
		fmt.Sprintf("ecs-%s-%s-cpu-usage", prefix, name),
		"AWS/ECS", "CPUUtilization", serviceDims,
		"GreaterThanThreshold", usageThreshold,
	))
	a.Memory = st.Add(name+"-memory-alarm", "AWS::CloudWatch::Alarm", alarm(
		fmt.Sprintf("ecs-%s-%s-memory-usage", prefix, name),
		"AWS/ECS", "MemoryUtilization", serviceDims,
		"GreaterThanThreshold", usageThreshold,
	))

	leaves := a.Leaves()
	names := make([]string, len(leaves))
	for j, leaf := range leaves {
		names[j], _ = leaf.Properties["AlarmName"].(string)
	}
	a.Rule = Rule(names...)

	// The rule names the leaves by string, which CloudFormation does not
	// treat as a dependency.
	a.Composite = st.Add(name+"-composite-alarm", "AWS::CloudWatch::CompositeAlarm", map[string]any{
		"AlarmName":    fmt.Sprintf("ecs-%s-%s-alert", prefix, name),
		"AlarmRule":    a.Rule,
		"AlarmActions": Any(topic.Ref()),
		"OKActions":    Any(topic.Ref()),
	})
	st.DependsOn(a.Composite, leaves...)
	return a
}

func alarm(name, namespace, metric string, dims []any, operator string, threshold int) map[string]any {
	return map[string]any{
		"AlarmName":          name,
		"Namespace":          namespace,
		"MetricName":         metric,
		"Dimensions":         dims,
		"Statistic":          "Average",
		"Period":             metricPeriod,
		"EvaluationPeriods":  1,
		"DatapointsToAlarm":  1,
		"ComparisonOperator": operator,
		"Threshold":          threshold,
		"TreatMissingData":   "missing",
	}
}

type widget struct {
	Type       string         `json:"type"`
	X          int            `json:"x"`
	Y          int            `json:"y"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Properties map[string]any `json:"properties"`
}

// dashboardBody returns the dashboard JSON as an Fn::Sub string. Imported
// dimension values are substituted through the returned variables.
func dashboardBody(dims dimensions) (string, map[string]any) {
	vars := map[string]any{
		"LoadBalancer": dims.loadBalancer,
		"Cluster":      dims.cluster,
	}

	var health, cpu, memory [][]string
	for i := range dims.targetGroups {
		tg := fmt.Sprintf("TargetGroup%d", i)
		svc := fmt.Sprintf("Service%d", i)
		vars[tg] = dims.targetGroups[i]
		vars[svc] = dims.services[i]

		health = append(health, []string{"AWS/ApplicationELB", "UnHealthyHostCount", "LoadBalancer", "${LoadBalancer}", "TargetGroup", "${" + tg + "}"})
		cpu = append(cpu, []string{"AWS/ECS", "CPUUtilization", "ClusterName", "${Cluster}", "ServiceName", "${" + svc + "}"})
		memory = append(memory, []string{"AWS/ECS", "MemoryUtilization", "ClusterName", "${Cluster}", "ServiceName", "${" + svc + "}"})
	}

	body := map[string]any{"widgets": []widget{
		graph("ECS UNHEALTHY TARGETS", health, 0, 0, 24),
		graph("ECS Services CPU", cpu, 0, widgetHeight, 12),
		graph("ECS Services MEMORY", memory, 12, widgetHeight, 12),
	}}
	data, _ := json.Marshal(body)
	return string(data), vars
}

func graph(title string, metrics [][]string, x, y, width int) widget {
	if metrics == nil {
		metrics = [][]string{}
	}
	return widget{
		Type:   "metric",
		X:      x,
		Y:      y,
		Width:  width,
		Height: widgetHeight,
		Properties: map[string]any{
			"title":   title,
			"view":    "timeSeries",
			"region":  "${AWS::Region}",
			"stat":    "Average",
			"period":  metricPeriod,
			"metrics": metrics,
		},
	}
}
