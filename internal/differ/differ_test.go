package differ

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
)

func TestCompare(t *testing.T) {
	t1 := &infra.Template{
		Resources: map[string]infra.ResourceDef{
			"Bucket1": {Type: "AWS::S3::Bucket", Properties: map[string]any{"BucketName": "bucket1"}},
			"Bucket2": {Type: "AWS::S3::Bucket", Properties: map[string]any{"BucketName": "bucket2"}},
		},
	}
	t2 := &infra.Template{
		Resources: map[string]infra.ResourceDef{
			"Bucket1": {Type: "AWS::S3::Bucket", Properties: map[string]any{"BucketName": "bucket1-modified"}},
			"Bucket3": {Type: "AWS::S3::Bucket", Properties: map[string]any{"BucketName": "bucket3"}},
		},
	}

	result, err := Compare(t1, t2, Options{})
	require.NoError(t, err)

	require.Len(t, result.Diff.Removed, 1)
	assert.Equal(t, "Bucket2", result.Diff.Removed[0].Resource)
	require.Len(t, result.Diff.Added, 1)
	assert.Equal(t, "Bucket3", result.Diff.Added[0].Resource)
	require.Len(t, result.Diff.Modified, 1)
	assert.Equal(t, "Bucket1", result.Diff.Modified[0].Resource)
	assert.Equal(t, []string{"BucketName modified"}, result.Diff.Modified[0].Changes)
	assert.Equal(t, 3, result.Summary.Total)
}

func TestCompareIdentical(t *testing.T) {
	template := &infra.Template{
		Resources: map[string]infra.ResourceDef{
			"Bucket": {Type: "AWS::S3::Bucket", Properties: map[string]any{"BucketName": "test"}},
		},
	}

	result, err := Compare(template, template, Options{})
	require.NoError(t, err)
	assert.True(t, result.Empty())
}

func TestCompareTypeAndPolicyChange(t *testing.T) {
	t1 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Resource1": {Type: "AWS::S3::Bucket"},
	}}
	t2 := &infra.Template{Resources: map[string]infra.ResourceDef{
		"Resource1": {Type: "AWS::S3::AccessPoint", DeletionPolicy: "Retain"},
	}}

	result, err := Compare(t1, t2, Options{})
	require.NoError(t, err)
	require.Len(t, result.Diff.Modified, 1)
	assert.Contains(t, result.Diff.Modified[0].Changes, "Type changed: AWS::S3::Bucket → AWS::S3::AccessPoint")
	assert.Contains(t, result.Diff.Modified[0].Changes, "DeletionPolicy changed")
}

func TestCompareProperties(t *testing.T) {
	tests := []struct {
		name    string
		props1  map[string]any
		props2  map[string]any
		opts    Options
		wantLen int
	}{
		{name: "identical", props1: map[string]any{"Key": "value"}, props2: map[string]any{"Key": "value"}},
		{name: "added property", props1: map[string]any{}, props2: map[string]any{"Key": "value"}, wantLen: 1},
		{name: "removed property", props1: map[string]any{"Key": "value"}, props2: map[string]any{}, wantLen: 1},
		{name: "modified property", props1: map[string]any{"Key": "value1"}, props2: map[string]any{"Key": "value2"}, wantLen: 1},
		{
			name:    "reordered list",
			props1:  map[string]any{"List": []any{"a", "b"}},
			props2:  map[string]any{"List": []any{"b", "a"}},
			wantLen: 2,
		},
		{
			name:   "reordered list ignoring order",
			props1: map[string]any{"List": []any{"a", map[string]any{"Ref": "X"}}},
			props2: map[string]any{"List": []any{map[string]any{"Ref": "X"}, "a"}},
			opts:   Options{IgnoreOrder: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, compareProperties("", tt.props1, tt.props2, tt.opts), tt.wantLen)
		})
	}
}

func TestCompareProperties_NestedPaths(t *testing.T) {
	before := map[string]any{
		"Budget": map[string]any{
			"BudgetLimit": map[string]any{"Amount": float64(150), "Unit": "USD"},
			"TimeUnit":    "MONTHLY",
		},
	}
	after := map[string]any{
		"Budget": map[string]any{
			"BudgetLimit": map[string]any{"Amount": float64(200), "Unit": "USD"},
			"BudgetName":  "dev-app-budget",
		},
	}

	changes := compareProperties("", before, after, Options{})
	assert.ElementsMatch(t, []string{
		"Budget.BudgetLimit.Amount modified",
		"Budget.BudgetName added",
		"Budget.TimeUnit removed",
	}, changes)
}

func TestCompareProperties_ShapeChange(t *testing.T) {
	changes := compareProperties("",
		map[string]any{"VpcId": "vpc-123"},
		map[string]any{"VpcId": map[string]any{"Fn::ImportValue": "dev-app-vpc-id"}},
		Options{})
	assert.Equal(t, []string{"VpcId modified"}, changes)
}

func TestEqualStringSlices(t *testing.T) {
	assert.True(t, equalStringSlices(nil, nil))
	assert.True(t, equalStringSlices([]string{"a", "b"}, []string{"a", "b"}))
	assert.False(t, equalStringSlices([]string{"a"}, []string{"b"}))
	assert.False(t, equalStringSlices([]string{"a"}, []string{"a", "b"}))
}

func TestCompareAssembly(t *testing.T) {
	previous := map[string]*infra.Template{
		"dev-app-network": {Resources: map[string]infra.ResourceDef{
			"Vpc": {Type: "AWS::EC2::VPC", Properties: map[string]any{"CidrBlock": "10.0.0.0/16"}},
		}},
		"dev-app-old": {Resources: map[string]infra.ResourceDef{
			"Topic": {Type: "AWS::SNS::Topic"},
		}},
	}
	current := map[string]*infra.Template{
		"dev-app-network": {Resources: map[string]infra.ResourceDef{
			"Vpc": {Type: "AWS::EC2::VPC", Properties: map[string]any{"CidrBlock": "10.1.0.0/16"}},
		}},
		"dev-app-budget": {Resources: map[string]infra.ResourceDef{
			"Budget":      {Type: "AWS::Budgets::Budget"},
			"BudgetTopic": {Type: "AWS::SNS::Topic"},
		}},
	}

	result, err := CompareAssembly(previous, current, Options{})
	require.NoError(t, err)

	assert.Equal(t, []infra.DiffEntry{
		{Stack: "dev-app-budget", Resource: "Budget", Type: "AWS::Budgets::Budget"},
		{Stack: "dev-app-budget", Resource: "BudgetTopic", Type: "AWS::SNS::Topic"},
	}, result.Diff.Added)
	assert.Equal(t, []infra.DiffEntry{
		{Stack: "dev-app-old", Resource: "Topic", Type: "AWS::SNS::Topic"},
	}, result.Diff.Removed)
	require.Len(t, result.Diff.Modified, 1)
	assert.Equal(t, "dev-app-network", result.Diff.Modified[0].Stack)
	assert.Equal(t, infra.DiffSummary{Added: 2, Removed: 1, Modified: 1, Total: 4}, result.Summary)
}

func TestCompareAssembly_YAMLMatchesMemory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ManifestFile, `{"environment":"dev","project":"app","stacks":[
		{"name":"dev-app-budget","account":"123456789012","region":"us-east-1","templateFile":"dev-app-budget.template.yaml"}
	]}`)
	writeFile(t, dir, "dev-app-budget.template.yaml", `AWSTemplateFormatVersion: "2010-09-09"
Resources:
  Budget:
    Type: AWS::Budgets::Budget
    Properties:
      Budget:
        BudgetLimit:
          Amount: 150
          Unit: USD
`)

	previous, err := LoadDir(dir)
	require.NoError(t, err)
	require.Contains(t, previous, "dev-app-budget")

	current := map[string]*infra.Template{
		"dev-app-budget": {
			AWSTemplateFormatVersion: "2010-09-09",
			Resources: map[string]infra.ResourceDef{
				"Budget": {Type: "AWS::Budgets::Budget", Properties: map[string]any{
					"Budget": map[string]any{"BudgetLimit": map[string]any{"Amount": float64(150), "Unit": "USD"}},
				}},
			},
		},
	}

	result, err := CompareAssembly(previous, current, Options{})
	require.NoError(t, err)
	assert.True(t, result.Empty(), "%+v", result.Diff)
}

func TestLoadDir_Missing(t *testing.T) {
	templates, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestLoadTemplate_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", "{not: [valid")

	_, err := LoadTemplate(filepath.Join(dir, "bad.json"))
	assert.Error(t, err)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
