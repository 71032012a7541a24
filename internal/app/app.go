// Package app wires the unit builders into one assembly.
//
// Units are built in a fixed construction order, each into its own stack,
// all sharing one reference store. Stacks are then sorted into deploy order
// from the dependencies their imports recorded.
package app

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
	"go.uber.org/zap"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/audit"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/budget"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/compute"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/edge"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/network"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/observability"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/scheduler"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/security"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/template"
)

// Unit names, the suffix of every stack name.
const (
	UnitBudget     = "budget"
	UnitCloudTrail = "cloudtrail"
	UnitNetwork    = "network"
	UnitSecurity   = "security-groups"
	UnitECS        = "ecs"
	UnitScheduler  = "ecs-scheduler"
	UnitWAF        = "waf"
	UnitCloudFront = "cloudfront"
	UnitAlarms     = "cw-alarms"
)

// Stack tags applied to every stack and inherited by their resources.
const (
	TagCreatedBy   = "created-by"
	TagEnvironment = "environment"
)

// Options configures Synthesize.
type Options struct {
	Logger *zap.Logger
	// CreatedBy is the value of the created-by tag. Defaults to "envsynth".
	CreatedBy string
}

// Unit is one synthesized stack.
type Unit struct {
	Name     string
	Stack    *stack.Stack
	Template *infra.Template
}

// Assembly is the result of a synthesis: every stack in deploy order.
type Assembly struct {
	Environment string
	Project     string
	Units       []*Unit
	Store       *exports.Store
}

// Synthesize validates cfg and builds every unit. Any error aborts the run
// before anything is written.
func Synthesize(cfg *config.BuildConfig, opts Options) (*Assembly, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	createdBy := opts.CreatedBy
	if createdBy == "" {
		createdBy = "envsynth"
	}

	s := &synth{cfg: cfg, log: log, store: exports.NewStore(), createdBy: createdBy}
	if err := s.build(); err != nil {
		return nil, err
	}

	ordered, err := deployOrder(s.stacks)
	if err != nil {
		return nil, err
	}

	a := &Assembly{Environment: cfg.Environment, Project: cfg.Project, Store: s.store}
	for _, st := range ordered {
		t, err := template.Build(st)
		if err != nil {
			return nil, err
		}
		a.Units = append(a.Units, &Unit{Name: st.Name, Stack: st, Template: t})
		log.Debug("stack synthesized",
			zap.String("stack", st.Name),
			zap.String("region", st.Region),
			zap.Int("resources", st.Len()),
		)
	}
	log.Info("assembly synthesized",
		zap.String("environment", cfg.Environment),
		zap.Int("stacks", len(a.Units)),
		zap.Int("exports", s.store.Len()),
	)
	return a, nil
}

type synth struct {
	cfg       *config.BuildConfig
	log       *zap.Logger
	store     *exports.Store
	createdBy string
	stacks    []*stack.Stack
}

func (s *synth) newStack(unit, region, description string) *stack.Stack {
	st := stack.New(s.cfg.StackName(unit), region, s.cfg.Account, s.log)
	st.Description = description
	st.Tag(TagCreatedBy, s.createdBy)
	st.Tag(TagEnvironment, s.cfg.Environment)
	s.stacks = append(s.stacks, st)
	return st
}

// build runs the unit builders. Producers always come before their
// consumers.
func (s *synth) build() error {
	cfg := s.cfg
	prefix := cfg.Prefix()

	st := s.newStack(UnitBudget, budget.Region, "Monthly cost budget")
	if _, err := budget.Build(st, budget.Input{Prefix: prefix, Limit: cfg.Stacks.Budget.Limit}); err != nil {
		return unitError(UnitBudget, err)
	}

	st = s.newStack(UnitCloudTrail, cfg.Region, "Account audit trail")
	if _, err := audit.Build(st, audit.Input{Prefix: prefix, Account: cfg.Account}); err != nil {
		return unitError(UnitCloudTrail, err)
	}

	st = s.newStack(UnitNetwork, cfg.Region, "VPC, subnets, gateways and routes")
	topo, err := network.Build(st, s.store, network.Input{Prefix: prefix, Region: cfg.Region, Network: cfg.Stacks.Network})
	if err != nil {
		return unitError(UnitNetwork, err)
	}

	st = s.newStack(UnitSecurity, cfg.Region, "Security groups")
	perimeter, err := security.Build(st, s.store, security.Input{Prefix: prefix, VPCExport: topo.VPCExport, Services: cfg.Stacks.ECS})
	if err != nil {
		return unitError(UnitSecurity, err)
	}

	st = s.newStack(UnitECS, cfg.Region, "Load balancer, cluster and services")
	comp, err := compute.Build(st, s.store, compute.Input{
		Prefix:         prefix,
		Environment:    cfg.Environment,
		VPCExport:      topo.VPCExport,
		PrivateSubnets: topo.Private,
		Perimeter:      perimeter,
		Services:       cfg.Stacks.ECS,
	})
	if err != nil {
		return unitError(UnitECS, err)
	}

	st = s.newStack(UnitScheduler, cfg.Region, "Scheduled start and stop of the services")
	if _, err := scheduler.Build(st, s.store, scheduler.Input{
		Prefix:   prefix,
		Region:   cfg.Region,
		Schedule: cfg.Stacks.Schedule,
		Compute:  comp,
	}); err != nil {
		return unitError(UnitScheduler, err)
	}

	st = s.newStack(UnitWAF, edge.WAFRegion, "Web application firewall of the distribution")
	firewall, err := edge.BuildWAF(st, s.store, edge.WAFInput{
		Prefix:      prefix,
		Project:     cfg.Project,
		Environment: cfg.Environment,
		WAF:         cfg.Stacks.WAF,
	})
	if err != nil {
		return unitError(UnitWAF, err)
	}

	st = s.newStack(UnitCloudFront, cfg.Region, "Web application bucket and distribution")
	if _, err := edge.BuildCDN(st, s.store, edge.CDNInput{
		Prefix:       prefix,
		Account:      cfg.Account,
		ACLArnExport: firewall.ACLArnExport,
	}); err != nil {
		return unitError(UnitCloudFront, err)
	}

	st = s.newStack(UnitAlarms, cfg.Region, "Service alarms and dashboard")
	if _, err := observability.Build(st, s.store, observability.Input{Prefix: prefix, Compute: comp}); err != nil {
		return unitError(UnitAlarms, err)
	}
	return nil
}

func unitError(unit string, err error) error {
	return fmt.Errorf("%s unit: %w", unit, err)
}

// deployOrder sorts stacks so every stack follows the stacks it imports
// from. Construction order breaks ties.
func deployOrder(stacks []*stack.Stack) ([]*stack.Stack, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	byName := make(map[string]*stack.Stack, len(stacks))
	index := make(map[string]int, len(stacks))
	for i, st := range stacks {
		if err := g.AddVertex(st.Name); err != nil {
			return nil, err
		}
		byName[st.Name] = st
		index[st.Name] = i
	}
	for _, st := range stacks {
		for _, dep := range st.Dependencies() {
			if _, ok := byName[dep]; !ok {
				return nil, &infra.TopologyError{Reason: fmt.Sprintf("stack %s depends on unknown stack %s", st.Name, dep)}
			}
			err := g.AddEdge(dep, st.Name)
			switch {
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, &infra.TopologyError{Reason: fmt.Sprintf("stacks %s and %s depend on each other", st.Name, dep)}
			case err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists):
				return nil, err
			}
		}
	}

	names, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return index[a] < index[b]
	})
	if err != nil {
		return nil, err
	}
	out := make([]*stack.Stack, len(names))
	for i, name := range names {
		out[i] = byName[name]
	}
	return out, nil
}

// Unit returns the unit with the given stack name.
func (a *Assembly) Unit(name string) (*Unit, bool) {
	for _, u := range a.Units {
		if u.Name == name {
			return u, true
		}
	}
	return nil, false
}

// Templates returns the templates keyed by stack name.
func (a *Assembly) Templates() map[string]*infra.Template {
	out := make(map[string]*infra.Template, len(a.Units))
	for _, u := range a.Units {
		out[u.Name] = u.Template
	}
	return out
}

// Resources returns the total resource count.
func (a *Assembly) Resources() int {
	n := 0
	for _, u := range a.Units {
		n += u.Stack.Len()
	}
	return n
}

// Manifest describes the assembly for the provisioning backend. Template
// file names use the given format's extension.
func (a *Assembly) Manifest(format string) infra.Manifest {
	m := infra.Manifest{Environment: a.Environment, Project: a.Project}
	for _, u := range a.Units {
		m.Stacks = append(m.Stacks, infra.StackManifest{
			Name:              u.Name,
			Account:           u.Stack.Account,
			Region:            u.Stack.Region,
			TemplateFile:      TemplateFile(u.Name, format),
			Tags:              u.Stack.Tags(),
			Dependencies:      u.Stack.Dependencies(),
			ParameterBindings: u.Stack.Bindings(),
		})
	}
	return m
}

// List summarizes the assembly.
func (a *Assembly) List() infra.ListResult {
	var r infra.ListResult
	for _, u := range a.Units {
		r.Stacks = append(r.Stacks, infra.ListStack{
			Name:         u.Name,
			Region:       u.Stack.Region,
			Resources:    u.Stack.Len(),
			Exports:      u.Stack.ExportCount(),
			Dependencies: u.Stack.Dependencies(),
		})
	}
	return r
}
