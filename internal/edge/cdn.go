package edge

import (
	"fmt"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/audit"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	. "github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

// CachingOptimized is the id of the AWS managed cache policy.
const CachingOptimized = "658327ea-f89d-4fab-a63d-7e88639e58f6"

// CDNInput is what BuildCDN needs.
type CDNInput struct {
	Prefix  string
	Account string
	// ACLArnExport is the reference-store name of the firewall ARN.
	ACLArnExport string
}

// CDN is the declared content delivery unit.
type CDN struct {
	Bucket        *stack.Resource
	BucketName    string
	AccessControl *stack.Resource
	Distribution  *stack.Resource
	BucketPolicy  *stack.Resource
}

// BuildCDN declares the web-app bucket and the distribution serving it.
func BuildCDN(st *stack.Stack, store *exports.Store, in CDNInput) (*CDN, error) {
	c := &CDN{BucketName: fmt.Sprintf("%s-webapp-%s", in.Prefix, in.Account)}

	c.Bucket = st.Add("webapp-bucket", "AWS::S3::Bucket", map[string]any{
		"BucketName": c.BucketName,
		"BucketEncryption": Json{
			"ServerSideEncryptionConfiguration": []any{Json{
				"ServerSideEncryptionByDefault": Json{"SSEAlgorithm": "AES256"},
			}},
		},
		"PublicAccessBlockConfiguration": Json{
			"BlockPublicAcls":       true,
			"BlockPublicPolicy":     true,
			"IgnorePublicAcls":      true,
			"RestrictPublicBuckets": true,
		},
		"OwnershipControls": Json{
			"Rules": []any{Json{"ObjectOwnership": "BucketOwnerEnforced"}},
		},
		"CorsConfiguration": Json{
			"CorsRules": []any{Json{
				"AllowedHeaders": []string{"*"},
				"AllowedMethods": []string{"DELETE", "GET", "HEAD", "POST", "PUT"},
				"AllowedOrigins": []string{"*"},
			}},
		},
		"MetricsConfigurations": []any{Json{"Id": "EntireBucket"}},
	})

	c.AccessControl = st.Add("webapp-oac", "AWS::CloudFront::OriginAccessControl", map[string]any{
		"OriginAccessControlConfig": Json{
			"Name":                          in.Prefix + "-webapp-oac",
			"OriginAccessControlOriginType": "s3",
			"SigningBehavior":               "always",
			"SigningProtocol":               "sigv4",
		},
	})

	name := in.Prefix + "-cdn"
	c.Distribution = st.Add("distribution", "AWS::CloudFront::Distribution", map[string]any{
		"DistributionConfig": Json{
			"Comment":           name,
			"Enabled":           true,
			"WebACLId":          st.Import(store, in.ACLArnExport),
			"DefaultRootObject": "index.html",
			"HttpVersion":       "http2and3",
			"Origins": []any{Json{
				"Id":                    "webapp",
				"DomainName":            c.Bucket.GetAtt("RegionalDomainName"),
				"OriginAccessControlId": c.AccessControl.GetAtt("Id"),
				"S3OriginConfig":        Json{"OriginAccessIdentity": ""},
			}},
			"DefaultCacheBehavior": Json{
				"TargetOriginId":       "webapp",
				"ViewerProtocolPolicy": "redirect-to-https",
				"AllowedMethods":       []string{"GET", "HEAD", "OPTIONS", "PUT", "PATCH", "POST", "DELETE"},
				"CachedMethods":        []string{"GET", "HEAD"},
				"CachePolicyId":        CachingOptimized,
				"Compress":             true,
			},
		},
	})

	c.BucketPolicy = st.Add("webapp-bucket-policy", "AWS::S3::BucketPolicy", map[string]any{
		"Bucket": c.Bucket.Ref(),
		"PolicyDocument": NewPolicyDocument(
			audit.DenyInsecureTransport(c.Bucket.GetAtt("Arn"), Sub{String: fmt.Sprintf("${%s.Arn}/*", c.Bucket.ID)}),
			PolicyStatement{
				Effect:    "Allow",
				Principal: ServicePrincipal{"cloudfront.amazonaws.com"},
				Action:    "s3:GetObject",
				Resource:  Sub{String: fmt.Sprintf("${%s.Arn}/*", c.Bucket.ID)},
				Condition: Json{StringEquals: Json{
					"AWS:SourceArn": AccountARN("cloudfront", fmt.Sprintf("distribution/${%s}", c.Distribution.ID)),
				}},
			},
		),
	})

	st.AddOutput("distribution-domain-name", c.Distribution.GetAtt("DomainName"), "Domain name of the distribution")

	if err := st.Err(); err != nil {
		return nil, err
	}
	return c, nil
}
