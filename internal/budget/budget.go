// Package budget declares the monthly cost budget and its alert topic.
//
// Budgets are a global service managed from us-east-1, so the unit is
// always deployed there whatever the environment region.
package budget

import (
	"github.com/shopspring/decimal"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/stack"
	. "github.com/alessandrodindinelli/aws-cdk-template/intrinsics"
)

// Region is where the budget unit is deployed.
const Region = "us-east-1"

// Thresholds are the percentages of the limit, in actual spend, that notify
// the alert topic.
var Thresholds = []int{99, 90}

// Input is what the builder needs.
type Input struct {
	Prefix string
	Limit  decimal.Decimal
}

// Budget is the declared budget unit.
type Budget struct {
	Topic  *stack.Resource
	Budget *stack.Resource
}

// Build declares the topic and the budget into st.
func Build(st *stack.Stack, in Input) (*Budget, error) {
	b := &Budget{}
	b.Topic = st.Add("budget-topic", "AWS::SNS::Topic", map[string]any{
		"TopicName": in.Prefix + "-budget-alerts",
	})

	notifications := make([]any, 0, len(Thresholds))
	for _, threshold := range Thresholds {
		notifications = append(notifications, Json{
			"Notification": Json{
				"ComparisonOperator": "GREATER_THAN",
				"NotificationType":   "ACTUAL",
				"Threshold":          threshold,
				"ThresholdType":      "PERCENTAGE",
			},
			"Subscribers": []any{Json{
				"SubscriptionType": "SNS",
				"Address":          b.Topic.Ref(),
			}},
		})
	}

	b.Budget = st.Add("budget", "AWS::Budgets::Budget", map[string]any{
		"Budget": Json{
			"BudgetName": in.Prefix + "-budget",
			"BudgetType": "COST",
			"TimeUnit":   "MONTHLY",
			"BudgetLimit": Json{
				"Amount": in.Limit.InexactFloat64(),
				"Unit":   "USD",
			},
		},
		"NotificationsWithSubscribers": notifications,
	})

	if err := st.Err(); err != nil {
		return nil, err
	}
	return b, nil
}
