// Package security declares the firewall groups of the load balancer and of
// every service.
//
// The groups carry no ingress rules. The rule letting the load balancer reach
// a service is declared by the compute builder when it registers the service
// as a target.
package security

import (
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	. "github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

// Input is what the builder needs.
type Input struct {
	Prefix string
	// VPCExport is the reference-store name of the VPC id.
	VPCExport string
	Services  []config.ServiceConfig
}

// Group is a declared security group.
type Group struct {
	// Name is the GroupName, such as "dev-app-ecs-web".
	Name     string
	Resource *stack.Resource
	// Export is the reference-store name of the group id.
	Export string
}

// Perimeter holds the load balancer group and one group per service, in
// service order.
type Perimeter struct {
	ALBGroup      *Group
	ServiceGroups []*Group
}

// Build declares the perimeter into st.
func Build(st *stack.Stack, store *exports.Store, in Input) (*Perimeter, error) {
	vpcID := st.Import(store, in.VPCExport)

	p := &Perimeter{
		ALBGroup: group(st, store, vpcID, "alb", in.Prefix+"-alb", "load balancer"),
	}
	for _, svc := range in.Services {
		name := in.Prefix + "-ecs-" + svc.Name
		p.ServiceGroups = append(p.ServiceGroups, group(st, store, vpcID, "ecs-"+svc.Name, name, "service "+svc.Name))
	}

	if err := st.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func group(st *stack.Stack, store *exports.Store, vpcID any, base, name, what string) *Group {
	g := &Group{Name: name, Export: name + "-sg-id"}
	g.Resource = st.Add(base+"-sg", "AWS::EC2::SecurityGroup", map[string]any{
		"GroupName":        name,
		"GroupDescription": "Security group of the " + what,
		"VpcId":            vpcID,
		"SecurityGroupEgress": []any{Json{
			"CidrIp":      "0.0.0.0/0",
			"Description": "Allow all outbound traffic by default",
			"IpProtocol":  "-1",
		}},
		"Tags": NameTag(name),
	})
	st.Export(store, g.Export, g.Resource.GetAtt("GroupId"))
	return g
}
