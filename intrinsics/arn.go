package intrinsics

import (
	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

// ManagedPolicyARN returns the partition-aware ARN of an AWS managed policy.
//
//	ManagedPolicyARN("service-role/AWSLambdaBasicExecutionRole")
//	→ {"Fn::Sub": "arn:${AWS::Partition}:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"}
func ManagedPolicyARN(name string) Sub {
	return Sub{String: arn.ARN{
		Partition: "${AWS::Partition}",
		Service:   "iam",
		AccountID: "aws",
		Resource:  "policy/" + name,
	}.String()}
}

// StackARN returns an ARN in the deploying account and region. The resource
// may itself contain Fn::Sub variables.
func StackARN(service, resource string) Sub {
	return Sub{String: arn.ARN{
		Partition: "${AWS::Partition}",
		Service:   service,
		Region:    "${AWS::Region}",
		AccountID: "${AWS::AccountId}",
		Resource:  resource,
	}.String()}
}

// GlobalARN returns an ARN for a service without a region, such as S3.
func GlobalARN(service, resource string) Sub {
	return Sub{String: arn.ARN{
		Partition: "${AWS::Partition}",
		Service:   service,
		Resource:  resource,
	}.String()}
}

// AccountARN returns an ARN in the deploying account for a global service
// such as CloudFront.
func AccountARN(service, resource string) Sub {
	return Sub{String: arn.ARN{
		Partition: "${AWS::Partition}",
		Service:   service,
		AccountID: "${AWS::AccountId}",
		Resource:  resource,
	}.String()}
}
