package network

import (
	"fmt"
	"net/netip"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
)

// Role tells whether a subnet routes through the internet gateway or the NAT.
type Role string

const (
	Private Role = "private"
	Public  Role = "public"
)

// short is the role abbreviation used in resource names.
func (r Role) short() string {
	if r == Public {
		return "pub"
	}
	return "pvt"
}

// AddressBlock is a subnet CIDR with its provenance.
type AddressBlock struct {
	Prefix netip.Prefix
	Zone   string
	Role   Role
}

func (b AddressBlock) String() string {
	return fmt.Sprintf("%s subnet %s (zone %s)", b.Role, b.Prefix, b.Zone)
}

// Layout is a checked address plan: every block lies inside VPC and no two
// blocks overlap.
type Layout struct {
	VPC     netip.Prefix
	Private []AddressBlock
	Public  []AddressBlock
}

// Blocks returns private blocks followed by public blocks.
func (l *Layout) Blocks() []AddressBlock {
	return append(append([]AddressBlock(nil), l.Private...), l.Public...)
}

// Plan validates the address plan without declaring anything.
func Plan(vpcCIDR string, private, public []config.SubnetConfig) (*Layout, error) {
	vpc, err := parseBlock(vpcCIDR)
	if err != nil {
		return nil, &infra.TopologyError{Reason: fmt.Sprintf("vpc block %q: %v", vpcCIDR, err)}
	}
	if vpc.Bits() < 16 || vpc.Bits() > 28 {
		return nil, &infra.TopologyError{Reason: fmt.Sprintf("vpc block %s: prefix length must be between /16 and /28", vpc)}
	}
	if len(public) == 0 {
		return nil, &infra.TopologyError{Reason: "NAT requires ≥1 public subnet"}
	}

	layout := &Layout{VPC: vpc}
	var placed []AddressBlock
	add := func(role Role, specs []config.SubnetConfig) ([]AddressBlock, error) {
		blocks := make([]AddressBlock, 0, len(specs))
		for _, spec := range specs {
			prefix, err := parseBlock(spec.CIDR)
			if err != nil {
				return nil, &infra.TopologyError{Reason: fmt.Sprintf("%s subnet %q: %v", role, spec.CIDR, err)}
			}
			block := AddressBlock{Prefix: prefix, Zone: spec.Zone, Role: role}
			if !contains(vpc, prefix) {
				return nil, &infra.TopologyError{Reason: fmt.Sprintf("%s is outside vpc block %s", block, vpc)}
			}
			for _, other := range placed {
				if other.Prefix.Overlaps(prefix) {
					return nil, &infra.TopologyError{Reason: fmt.Sprintf("%s overlaps %s", block, other)}
				}
			}
			placed = append(placed, block)
			blocks = append(blocks, block)
		}
		return blocks, nil
	}

	if layout.Private, err = add(Private, private); err != nil {
		return nil, err
	}
	if layout.Public, err = add(Public, public); err != nil {
		return nil, err
	}
	return layout, nil
}

// parseBlock accepts only canonical IPv4 network addresses.
func parseBlock(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("only IPv4 blocks are supported")
	}
	if p.Masked() != p {
		return netip.Prefix{}, fmt.Errorf("host bits set, did you mean %s", p.Masked())
	}
	return p, nil
}

// contains reports whether inner is a subset of outer.
func contains(outer, inner netip.Prefix) bool {
	return outer.Bits() <= inner.Bits() && outer.Contains(inner.Addr())
}
