// Package audit declares the account audit trail and the bucket it writes to.
package audit

import (
	"fmt"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	. "github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

const (
	tieringAfterDays = 15
	expireAfterDays  = 90
)

// Input is what the builder needs.
type Input struct {
	Prefix  string
	Account string
}

// Audit is the declared audit unit.
type Audit struct {
	Bucket       *stack.Resource
	BucketName   string
	BucketPolicy *stack.Resource
	Trail        *stack.Resource
}

// Build declares the bucket, its policy and the trail into st.
func Build(st *stack.Stack, in Input) (*Audit, error) {
	a := &Audit{BucketName: fmt.Sprintf("%s-cloudtrail-%s", in.Prefix, in.Account)}

	a.Bucket = st.Add("cloudtrail-bucket", "AWS::S3::Bucket", map[string]any{
		"BucketName": a.BucketName,
		"BucketEncryption": Json{
			"ServerSideEncryptionConfiguration": []any{Json{
				"ServerSideEncryptionByDefault": Json{"SSEAlgorithm": "AES256"},
			}},
		},
		"PublicAccessBlockConfiguration": blockAll(),
		"LifecycleConfiguration": Json{
			"Rules": []any{Json{
				"Status": "Enabled",
				"Transitions": []any{Json{
					"StorageClass":     "INTELLIGENT_TIERING",
					"TransitionInDays": tieringAfterDays,
				}},
				"ExpirationInDays": expireAfterDays,
			}},
		},
	})
	st.Retain(a.Bucket)

	bucketARN := a.Bucket.GetAtt("Arn")
	logsARN := Sub{String: fmt.Sprintf("${%s.Arn}/AWSLogs/${AWS::AccountId}/*", a.Bucket.ID)}
	trailARN := StackARN("cloudtrail", "trail/"+in.Prefix+"-trail")

	a.BucketPolicy = st.Add("cloudtrail-bucket-policy", "AWS::S3::BucketPolicy", map[string]any{
		"Bucket": a.Bucket.Ref(),
		"PolicyDocument": NewPolicyDocument(
			DenyInsecureTransport(bucketARN, Sub{String: fmt.Sprintf("${%s.Arn}/*", a.Bucket.ID)}),
			PolicyStatement{
				Sid:       "AWSCloudTrailAclCheck",
				Effect:    "Allow",
				Principal: ServicePrincipal{"cloudtrail.amazonaws.com"},
				Action:    "s3:GetBucketAcl",
				Resource:  bucketARN,
				Condition: Json{StringEquals: Json{"aws:SourceArn": trailARN}},
			},
			PolicyStatement{
				Sid:       "AWSCloudTrailWrite",
				Effect:    "Allow",
				Principal: ServicePrincipal{"cloudtrail.amazonaws.com"},
				Action:    "s3:PutObject",
				Resource:  logsARN,
				Condition: Json{StringEquals: Json{
					"s3:x-amz-acl":  "bucket-owner-full-control",
					"aws:SourceArn": trailARN,
				}},
			},
		),
	})

	a.Trail = st.Add("trail", "AWS::CloudTrail::Trail", map[string]any{
		"TrailName":                  in.Prefix + "-trail",
		"S3BucketName":               a.Bucket.Ref(),
		"IsLogging":                  true,
		"IsMultiRegionTrail":         true,
		"IncludeGlobalServiceEvents": true,
		"EnableLogFileValidation":    true,
	})
	// CloudTrail checks the bucket policy when the trail is created.
	st.DependsOn(a.Trail, a.BucketPolicy)

	if err := st.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// DenyInsecureTransport is the statement rejecting every request to the
// given resources that does not use TLS.
func DenyInsecureTransport(resources ...any) PolicyStatement {
	return PolicyStatement{
		Effect:    "Deny",
		Principal: AWSPrincipal{"*"},
		Action:    "s3:*",
		Resource:  resources,
		Condition: Json{Bool: Json{"aws:SecureTransport": "false"}},
	}
}

func blockAll() Json {
	return Json{
		"BlockPublicAcls":       true,
		"BlockPublicPolicy":     true,
		"IgnorePublicAcls":      true,
		"RestrictPublicBuckets": true,
	}
}
