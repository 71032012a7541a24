// Package network builds the VPC, its subnets, the internet and NAT gateways
// and the default routes connecting them.
package network

import (
	"fmt"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	. "github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

// DefaultRoute is the destination of every route the builder declares.
const DefaultRoute = "0.0.0.0/0"

// NextHop is the target of a route.
type NextHop string

const (
	ViaInternetGateway NextHop = "internet-gateway"
	ViaNATGateway      NextHop = "nat-gateway"
)

// Input is what the builder needs from the configuration record.
type Input struct {
	// Prefix is "<environment>-<project>".
	Prefix  string
	Region  string
	Network config.NetworkConfig
}

// Topology is the declared network.
type Topology struct {
	VPC *stack.Resource
	// VPCExport is the reference-store name of the VPC id.
	VPCExport string
	Layout    *Layout

	Private []*Subnet
	Public  []*Subnet

	InternetGateway *Gateway
	NATGateway      *Gateway
}

// Subnet is a declared subnet with its own route table.
type Subnet struct {
	// Name is the Name tag, such as "dev-app-pvt-a".
	Name             string
	Block            AddressBlock
	AvailabilityZone string
	Resource         *stack.Resource
	RouteTable       *RouteTable

	// SubnetExport and RouteTableExport are the reference-store names of
	// the subnet id and route table id.
	SubnetExport     string
	RouteTableExport string
}

// RouteTable is owned by exactly one subnet.
type RouteTable struct {
	Resource    *stack.Resource
	Association *stack.Resource
	Routes      []*Route
}

// Route is one route table entry.
type Route struct {
	Destination string
	NextHop     NextHop
	Resource    *stack.Resource
}

// Gateway is the internet gateway or the NAT gateway of the VPC.
type Gateway struct {
	Kind     NextHop
	Resource *stack.Resource
	// Attachment binds the internet gateway to the VPC.
	Attachment *stack.Resource
	// EIP is the public address of the NAT gateway.
	EIP *stack.Resource
	// Subnet anchors the NAT gateway.
	Subnet *Subnet
}

// Build validates the address plan and declares the network into st.
// Nothing is declared when the plan is invalid.
func Build(st *stack.Stack, store *exports.Store, in Input) (*Topology, error) {
	layout, err := Plan(in.Network.VpcCIDR, in.Network.PrivateSubnets, in.Network.PublicSubnets)
	if err != nil {
		return nil, err
	}

	b := &builder{st: st, store: store, in: in}
	topo := &Topology{Layout: layout, VPCExport: in.Prefix + "-vpc-id"}

	topo.VPC = st.Add("vpc", "AWS::EC2::VPC", map[string]any{
		"CidrBlock":          layout.VPC.String(),
		"EnableDnsSupport":   true,
		"EnableDnsHostnames": true,
		"Tags":               NameTag(in.Prefix),
	})
	b.publish("vpc-id", topo.VPCExport, topo.VPC.Ref())

	for _, block := range layout.Private {
		topo.Private = append(topo.Private, b.subnet(topo.VPC, block))
	}
	for _, block := range layout.Public {
		topo.Public = append(topo.Public, b.subnet(topo.VPC, block))
	}

	topo.InternetGateway = b.internetGateway(topo.VPC)
	topo.NATGateway = b.natGateway(topo.Public[0], topo.InternetGateway.Attachment)

	for _, subnet := range topo.Private {
		b.route(subnet, topo.NATGateway)
	}
	for _, subnet := range topo.Public {
		b.route(subnet, topo.InternetGateway)
	}

	if err := st.Err(); err != nil {
		return nil, err
	}
	return topo, nil
}

type builder struct {
	st    *stack.Stack
	store *exports.Store
	in    Input
}

// publish exports value and mirrors it into an SSM parameter named after the
// export, for consumers outside the assembly.
func (b *builder) publish(name, exportName string, value any) {
	b.st.Export(b.store, exportName, value)
	b.st.Add(name+"-param", "AWS::SSM::Parameter", map[string]any{
		"Name":  exportName,
		"Type":  "String",
		"Value": value,
	})
}

func (b *builder) subnet(vpc *stack.Resource, block AddressBlock) *Subnet {
	base := fmt.Sprintf("%s-%s", block.Role.short(), block.Zone)
	s := &Subnet{
		Name:             b.in.Prefix + "-" + base,
		Block:            block,
		AvailabilityZone: b.in.Region + block.Zone,
		SubnetExport:     fmt.Sprintf("%s-%s-subnet-id", b.in.Prefix, base),
		RouteTableExport: fmt.Sprintf("%s-%s-rt-id", b.in.Prefix, base),
	}

	s.Resource = b.st.Add(base+"-subnet", "AWS::EC2::Subnet", map[string]any{
		"VpcId":               vpc.Ref(),
		"CidrBlock":           block.Prefix.String(),
		"AvailabilityZone":    s.AvailabilityZone,
		"MapPublicIpOnLaunch": block.Role == Public,
		"Tags":                NameTag(s.Name),
	})
	rt := &RouteTable{}
	rt.Resource = b.st.Add(base+"-route-table", "AWS::EC2::RouteTable", map[string]any{
		"VpcId": vpc.Ref(),
		"Tags":  NameTag(s.Name),
	})
	rt.Association = b.st.Add(base+"-route-table-association", "AWS::EC2::SubnetRouteTableAssociation", map[string]any{
		"SubnetId":     s.Resource.Ref(),
		"RouteTableId": rt.Resource.Ref(),
	})
	s.RouteTable = rt

	b.publish(base+"-subnet-id", s.SubnetExport, s.Resource.Ref())
	b.st.Export(b.store, s.RouteTableExport, rt.Resource.Ref())
	return s
}

func (b *builder) internetGateway(vpc *stack.Resource) *Gateway {
	igw := b.st.Add("igw", "AWS::EC2::InternetGateway", map[string]any{
		"Tags": NameTag(b.in.Prefix + "-igw"),
	})
	attachment := b.st.Add("igw-attachment", "AWS::EC2::VPCGatewayAttachment", map[string]any{
		"VpcId":             vpc.Ref(),
		"InternetGatewayId": igw.Ref(),
	})
	return &Gateway{Kind: ViaInternetGateway, Resource: igw, Attachment: attachment}
}

// natGateway anchors the single NAT gateway to the given public subnet. Its
// address is allocated only once the internet gateway is attached.
func (b *builder) natGateway(anchor *Subnet, attachment *stack.Resource) *Gateway {
	zone := anchor.Block.Zone
	eip := b.st.Add("nat-eip", "AWS::EC2::EIP", map[string]any{
		"Domain": "vpc",
		"Tags":   NameTag(fmt.Sprintf("%s-nat-eip-%s", b.in.Prefix, zone)),
	})
	b.st.DependsOn(eip, attachment)

	nat := b.st.Add("nat", "AWS::EC2::NatGateway", map[string]any{
		"SubnetId":     anchor.Resource.Ref(),
		"AllocationId": eip.GetAtt("AllocationId"),
		"Tags":         NameTag(fmt.Sprintf("%s-nat-%s", b.in.Prefix, zone)),
	})
	return &Gateway{Kind: ViaNATGateway, Resource: nat, EIP: eip, Subnet: anchor}
}

func (b *builder) route(subnet *Subnet, gw *Gateway) {
	base := fmt.Sprintf("%s-%s", subnet.Block.Role.short(), subnet.Block.Zone)
	props := map[string]any{
		"RouteTableId":         subnet.RouteTable.Resource.Ref(),
		"DestinationCidrBlock": DefaultRoute,
	}
	if gw.Kind == ViaNATGateway {
		props["NatGatewayId"] = gw.Resource.Ref()
	} else {
		props["GatewayId"] = gw.Resource.Ref()
	}

	r := b.st.Add(base+"-default-route", "AWS::EC2::Route", props)
	if gw.Attachment != nil {
		b.st.DependsOn(r, gw.Attachment)
	}
	subnet.RouteTable.Routes = append(subnet.RouteTable.Routes, &Route{
		Destination: DefaultRoute,
		NextHop:     gw.Kind,
		Resource:    r,
	})
}
