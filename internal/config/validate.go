package config

import (
	"fmt"
	"net/netip"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/multierr"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
)

var (
	accountPattern = regexp.MustCompile(`^\d{12}$`)
	regionPattern  = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)
	namePattern    = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	zonePattern    = regexp.MustCompile(`^[a-z]$`)
)

// fargateMemory maps each Fargate CPU size to its allowed memory range in MiB.
var fargateMemory = map[int][2]int{
	256:   {512, 2048},
	512:   {1024, 4096},
	1024:  {2048, 8192},
	2048:  {4096, 16384},
	4096:  {8192, 30720},
	8192:  {16384, 61440},
	16384: {32768, 122880},
}

// Validate checks every field of the record and returns all problems at
// once, each as an *infra.ConfigurationError.
//
// Address containment and overlap are not checked here; the network planner
// reports those as topology errors.
func (c *BuildConfig) Validate() error {
	var errs error
	fail := func(field, format string, args ...any) {
		errs = multierr.Append(errs, &infra.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if !accountPattern.MatchString(c.Account) {
		fail("account", "must be a 12 digit account id, got %q", c.Account)
	}
	if !regionPattern.MatchString(c.Region) {
		fail("region", "must be a region name like eu-west-1, got %q", c.Region)
	}
	if !namePattern.MatchString(c.Project) {
		fail("project", "must be lowercase letters, digits and hyphens, got %q", c.Project)
	}
	if !slices.Contains(Environments, c.Environment) {
		fail("environment", "%q is not one of %v", c.Environment, Environments)
	}

	if !c.Stacks.Budget.Limit.IsPositive() {
		fail("stacks.budget.limit", "must be greater than zero")
	}

	c.validateNetwork(fail)
	c.validateServices(fail)

	for _, cron := range []struct{ field, expr string }{
		{"stacks.schedule.start", c.Stacks.Schedule.Start},
		{"stacks.schedule.stop", c.Stacks.Schedule.Stop},
	} {
		if n := len(strings.Fields(cron.expr)); n != 6 {
			fail(cron.field, "cron expression must have 6 fields, got %d", n)
		}
	}

	for i, ip := range c.Stacks.WAF.IPBlacklist {
		if _, err := netip.ParsePrefix(ip); err != nil {
			fail(fmt.Sprintf("stacks.waf.ipBlacklist[%d]", i), "%v", err)
		}
	}
	for i, ip := range c.Stacks.WAF.IPWhitelist {
		if _, err := netip.ParsePrefix(ip); err != nil {
			fail(fmt.Sprintf("stacks.waf.ipWhitelist[%d]", i), "%v", err)
		}
	}

	return errs
}

func (c *BuildConfig) validateNetwork(fail func(field, format string, args ...any)) {
	network := c.Stacks.Network
	if network.VpcCIDR == "" {
		fail("stacks.network.vpcCidr", "required")
	} else if _, err := netip.ParsePrefix(network.VpcCIDR); err != nil {
		fail("stacks.network.vpcCidr", "%v", err)
	}

	check := func(role string, subnets []SubnetConfig) {
		zones := make(map[string]bool)
		for i, subnet := range subnets {
			field := fmt.Sprintf("stacks.network.%s[%d]", role, i)
			if !zonePattern.MatchString(subnet.Zone) {
				fail(field+".zone", "must be a single letter, got %q", subnet.Zone)
			} else if zones[subnet.Zone] {
				fail(field+".zone", "zone %q used twice", subnet.Zone)
			}
			zones[subnet.Zone] = true
			if subnet.CIDR == "" {
				fail(field+".cidr", "required")
			} else if _, err := netip.ParsePrefix(subnet.CIDR); err != nil {
				fail(field+".cidr", "%v", err)
			}
		}
	}
	check("privateSubnets", network.PrivateSubnets)
	check("publicSubnets", network.PublicSubnets)
}

func (c *BuildConfig) validateServices(fail func(field, format string, args ...any)) {
	names := make(map[string]int)
	ports := make(map[int]int)
	for i, svc := range c.Stacks.ECS {
		field := fmt.Sprintf("stacks.ecs[%d]", i)

		if !namePattern.MatchString(svc.Name) {
			fail(field+".name", "must be lowercase letters, digits and hyphens, got %q", svc.Name)
		} else if j, ok := names[svc.Name]; ok {
			fail(field+".name", "%q already used by stacks.ecs[%d]", svc.Name, j)
		} else {
			names[svc.Name] = i
		}

		if limits, ok := fargateMemory[svc.CPU]; !ok {
			fail(field+".cpu", "%d is not a Fargate CPU size", svc.CPU)
		} else if svc.Memory < limits[0] || svc.Memory > limits[1] {
			fail(field+".memory", "%d MiB outside %d-%d for cpu %d", svc.Memory, limits[0], limits[1], svc.CPU)
		}

		if svc.Port < 1 || svc.Port > 65535 {
			fail(field+".port", "%d out of range", svc.Port)
		} else if j, ok := ports[svc.Port]; ok {
			fail(field+".port", "listener port %d already used by stacks.ecs[%d]", svc.Port, j)
		} else {
			ports[svc.Port] = i
		}

		if !strings.HasPrefix(svc.HealthCheckPath, "/") {
			fail(field+".healthCheckPath", "must start with /, got %q", svc.HealthCheckPath)
		}
	}
}
