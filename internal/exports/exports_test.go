package exports

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infra "github.com/alessandrodindinelli/aws-cdk-template"
)

func TestStore_PutGet(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(Export{Name: "dev-app-vpc-id", Stack: "dev-app-network", Output: "VpcId"}))

	e, err := s.Get("dev-app-vpc-id")
	require.NoError(t, err)
	assert.Equal(t, "dev-app-network", e.Stack)
	assert.Equal(t, "VpcId", e.Output)
	assert.Equal(t, 1, s.Len())
}

func TestStore_Duplicate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(Export{Name: "x", Stack: "first"}))

	err := s.Put(Export{Name: "x", Stack: "second"})
	var dup *infra.DuplicateExportError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "first", dup.Producer)
	assert.False(t, dup.AfterRead)
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore()
	_, err := s.Get("missing")

	var nf *infra.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.Name)
}

func TestStore_WriteAfterRead(t *testing.T) {
	s := NewStore()
	_, err := s.Get("late")
	require.Error(t, err)

	err = s.Put(Export{Name: "late", Stack: "producer"})
	var dup *infra.DuplicateExportError
	require.True(t, errors.As(err, &dup))
	assert.True(t, dup.AfterRead)
	assert.Equal(t, "producer", dup.Producer)
}

func TestStore_ReadsDoNotBlockOtherNames(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(Export{Name: "a", Stack: "s"}))
	_, err := s.Get("a")
	require.NoError(t, err)

	assert.NoError(t, s.Put(Export{Name: "b", Stack: "s"}))
}

func TestStore_NamesAndByStack(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(Export{Name: "c", Stack: "net"}))
	require.NoError(t, s.Put(Export{Name: "a", Stack: "net"}))
	require.NoError(t, s.Put(Export{Name: "b", Stack: "sg"}))

	assert.Equal(t, []string{"a", "b", "c"}, s.Names())

	byNet := s.ByStack("net")
	require.Len(t, byNet, 2)
	assert.Equal(t, "a", byNet[0].Name)
	assert.Equal(t, "c", byNet[1].Name)
	assert.Empty(t, s.ByStack("unknown"))
}
