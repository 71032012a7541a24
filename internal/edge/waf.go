// Package edge declares the public entry point of the web application: a
// web application firewall and the content delivery network it protects.
//
// The firewall of a distribution must live in us-east-1 while the
// distribution and its bucket live in the environment region, so the
// distribution reads the firewall ARN through a cross-region parameter.
package edge

import (
	"github.com/alessandrodindinelli/aws-cdk-template/internal/config"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/exports"
	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	. "github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

// WAFRegion is where firewalls attached to a distribution are deployed.
const WAFRegion = "us-east-1"

const (
	rateLimit            = 1500
	wafLogRetentionDays  = 30
	managedRulesPriority = 10
)

// ManagedRuleGroups are the AWS managed rule groups evaluated after the IP
// rules, in priority order.
var ManagedRuleGroups = []string{
	"AWSManagedRulesAmazonIpReputationList",
	"AWSManagedRulesCommonRuleSet",
	"AWSManagedRulesKnownBadInputsRuleSet",
	"AWSManagedRulesLinuxRuleSet",
	"AWSManagedRulesUnixRuleSet",
}

// WAFInput is what BuildWAF needs.
type WAFInput struct {
	Prefix      string
	Project     string
	Environment string
	WAF         config.WAFConfig
}

// Firewall is the declared firewall unit.
type Firewall struct {
	Blacklist    *stack.Resource
	Whitelist    *stack.Resource
	ACL          *stack.Resource
	LogGroup     *stack.Resource
	Logging      *stack.Resource
	ACLArnExport string
}

// BuildWAF declares the firewall into st and exports its ARN.
func BuildWAF(st *stack.Stack, store *exports.Store, in WAFInput) (*Firewall, error) {
	f := &Firewall{ACLArnExport: in.Prefix + "-waf-acl-arn"}

	f.Blacklist = st.Add("blacklist-ipset", "AWS::WAFv2::IPSet", ipSet(in.Prefix+"-blacklist-ipset", in.WAF.IPBlacklist))
	f.Whitelist = st.Add("whitelist-ipset", "AWS::WAFv2::IPSet", ipSet(in.Prefix+"-whitelist-ipset", in.WAF.IPWhitelist))

	name := in.Prefix + "-cdn-waf"
	rules := []any{
		Json{
			"Name":     in.Prefix + "-rate-limit",
			"Priority": 0,
			"Action":   Json{"Block": Json{}},
			"Statement": Json{
				"RateBasedStatement": Json{
					"Limit":            rateLimit,
					"AggregateKeyType": "IP",
				},
			},
			"VisibilityConfig": visibility(in.Prefix + "-rate-limit"),
		},
		ipRule(in.Prefix+"-cdn-blacklist-rule", 1, "Block", "blacklist-sources", f.Blacklist),
		ipRule(in.Prefix+"-cdn-whitelist-rule", 2, "Allow", "whitelist-sources", f.Whitelist),
	}
	for i, group := range ManagedRuleGroups {
		rules = append(rules, Json{
			"Name":     "AWS-" + group,
			"Priority": managedRulesPriority * (i + 1),
			"Statement": Json{
				"ManagedRuleGroupStatement": Json{
					"VendorName": "AWS",
					"Name":       group,
				},
			},
			"OverrideAction":   Json{"None": Json{}},
			"VisibilityConfig": visibility("AWS-" + group),
		})
	}

	f.ACL = st.Add("cdn-waf", "AWS::WAFv2::WebACL", map[string]any{
		"Name":             name,
		"Scope":            "CLOUDFRONT",
		"DefaultAction":    Json{"Block": Json{}},
		"VisibilityConfig": visibility(name),
		"Rules":            rules,
		"Tags":             NameTag(name),
	})
	st.Export(store, f.ACLArnExport, f.ACL.GetAtt("Arn"))

	// Log groups receiving firewall logs must be named aws-waf-logs-*.
	logGroupName := "aws-waf-logs-" + in.Project + "-" + in.Environment
	f.LogGroup = st.Add("waf-log-group", "AWS::Logs::LogGroup", map[string]any{
		"LogGroupName":    logGroupName,
		"RetentionInDays": wafLogRetentionDays,
	})

	// The log group Arn attribute ends in ":*", which the logging
	// configuration rejects.
	f.Logging = st.Add("cdn-waf-logs", "AWS::WAFv2::LoggingConfiguration", map[string]any{
		"ResourceArn":           f.ACL.GetAtt("Arn"),
		"LogDestinationConfigs": Any(StackARN("logs", "log-group:"+logGroupName)),
		"LoggingFilter": Json{
			"DefaultBehavior": "DROP",
			"Filters": []any{Json{
				"Behavior":    "KEEP",
				"Requirement": "MEETS_ANY",
				"Conditions": []any{
					Json{"ActionCondition": Json{"Action": "COUNT"}},
					Json{"ActionCondition": Json{"Action": "BLOCK"}},
				},
			}},
		},
	})
	st.DependsOn(f.Logging, f.LogGroup)

	if err := st.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func ipSet(name string, addresses []string) map[string]any {
	return map[string]any{
		"Name":             name,
		"Scope":            "CLOUDFRONT",
		"IPAddressVersion": "IPV4",
		"Addresses":        append([]string{}, addresses...),
	}
}

// ipRule matches the client address either as the source IP or as the
// first X-Forwarded-For entry.
func ipRule(name string, priority int, action, metric string, set *stack.Resource) Json {
	return Json{
		"Name":     name,
		"Priority": priority,
		"Action":   Json{action: Json{}},
		"Statement": Json{
			"OrStatement": Json{
				"Statements": []any{
					Json{"IPSetReferenceStatement": Json{
						"Arn": set.GetAtt("Arn"),
						"IPSetForwardedIPConfig": Json{
							"HeaderName":       "X-Forwarded-For",
							"Position":         "FIRST",
							"FallbackBehavior": "NO_MATCH",
						},
					}},
					Json{"IPSetReferenceStatement": Json{
						"Arn": set.GetAtt("Arn"),
					}},
				},
			},
		},
		"VisibilityConfig": visibility(metric),
	}
}

func visibility(metric string) Json {
	return Json{
		"SampledRequestsEnabled":   true,
		"CloudWatchMetricsEnabled": true,
		"MetricName":               metric,
	}
}
