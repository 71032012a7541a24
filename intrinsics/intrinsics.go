// Package intrinsics provides the CloudFormation intrinsic functions used by
// the unit builders.
//
// The core types are re-exported from cloudformation-schema-go so builders
// and tests only import this package:
//
//	Ref{"Vpc"}                       → {"Ref": "Vpc"}
//	GetAtt{"Alb", "DNSName"}         → {"Fn::GetAtt": ["Alb", "DNSName"]}
//	Sub{"${AWS::Region}-bucket"}     → {"Fn::Sub": "${AWS::Region}-bucket"}
//	ImportValue{"dev-app-vpc-id"}    → {"Fn::ImportValue": "dev-app-vpc-id"}
package intrinsics

import (
	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

type (
	// Ref represents a CloudFormation Ref intrinsic function.
	Ref = intrinsics.Ref

	// GetAtt represents a CloudFormation Fn::GetAtt intrinsic function.
	GetAtt = intrinsics.GetAtt

	// Sub represents a CloudFormation Fn::Sub intrinsic function.
	Sub = intrinsics.Sub

	// SubWithMap is Fn::Sub with a variable map.
	SubWithMap = intrinsics.SubWithMap

	// Join represents a CloudFormation Fn::Join intrinsic function.
	Join = intrinsics.Join

	// Select represents a CloudFormation Fn::Select intrinsic function.
	Select = intrinsics.Select

	// Split represents a CloudFormation Fn::Split intrinsic function.
	Split = intrinsics.Split

	// ImportValue represents a CloudFormation Fn::ImportValue intrinsic function.
	ImportValue = intrinsics.ImportValue

	// Tag represents a CloudFormation resource tag.
	Tag = intrinsics.Tag
)

// Param creates a Ref for a CloudFormation parameter.
var Param = intrinsics.Param

// NameTag returns the single-element tag list carrying the Name tag.
func NameTag(name any) []any {
	return []any{Tag{Key: "Name", Value: name}}
}
