package plan

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarkhas/servus/internal/typeref"
)

type database struct{}

type cache struct{}

type base struct {
	DB *database `inject:""`
}

type consumer struct {
	base

	Cache   *cache    `inject:",optional"`
	Primary *database `inject:"primary"`
	Ignored string
}

func TestBuildDiscoversFields(t *testing.T) {
	t.Parallel()

	p, err := Build(reflect.TypeOf(consumer{}), "inject")
	require.NoError(t, err)
	require.Len(t, p.Fields, 3)

	byName := map[string]Field{}
	for _, f := range p.Fields {
		byName[f.Name] = f
	}

	db, ok := byName["base.DB"]
	require.True(t, ok, "embedded fields are inherited")
	assert.Equal(t, typeref.Key[*database](), db.Key)
	assert.False(t, db.Optional)
	assert.Equal(t, []int{0, 0}, db.Index)

	c := byName["Cache"]
	assert.True(t, c.Optional)
	assert.Equal(t, typeref.Key[*cache](), c.Key)

	p2 := byName["Primary"]
	assert.Equal(t, typeref.Key[*database]()+"#primary", p2.Key)
	assert.False(t, p2.Optional)
}

func TestRequiredOptionalPartition(t *testing.T) {
	t.Parallel()

	p, err := Build(reflect.TypeOf(consumer{}), "inject")
	require.NoError(t, err)

	assert.Len(t, p.Required(), 2)
	assert.Len(t, p.Optional(), 1)
}

func TestBuildRejectsUnexportedField(t *testing.T) {
	t.Parallel()

	type bad struct {
		db *database `inject:""` //nolint:unused
	}

	_, err := Build(reflect.TypeOf(bad{}), "inject")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexported")
}

func TestBuildRejectsNonStruct(t *testing.T) {
	t.Parallel()

	_, err := Build(reflect.TypeOf(42), "inject")
	require.Error(t, err)
}

func TestSetAssignsThroughIndexPath(t *testing.T) {
	t.Parallel()

	p, err := Build(reflect.TypeOf(consumer{}), "inject")
	require.NoError(t, err)

	c := &consumer{}
	structVal := reflect.ValueOf(c).Elem()

	db := &database{}
	for _, f := range p.Fields {
		if f.Name == "base.DB" {
			require.NoError(t, p.Set(structVal, f, db))
		}
	}

	assert.Same(t, db, c.DB)
}

func TestSetRejectsWrongType(t *testing.T) {
	t.Parallel()

	p, err := Build(reflect.TypeOf(consumer{}), "inject")
	require.NoError(t, err)

	c := &consumer{}
	structVal := reflect.ValueOf(c).Elem()

	err = p.Set(structVal, p.Fields[0], "not a database")
	require.Error(t, err)
}

func TestCacheReturnsSamePlan(t *testing.T) {
	t.Parallel()

	cacheA := NewCache("inject")

	p1, _, err := cacheA.For(&consumer{})
	require.NoError(t, err)
	p2, _, err := cacheA.For(&consumer{})
	require.NoError(t, err)

	assert.Same(t, p1, p2, "plans are built once per consumer type")
}

func TestCacheRejectsNonPointer(t *testing.T) {
	t.Parallel()

	c := NewCache("inject")

	_, _, err := c.For(consumer{})
	require.Error(t, err)

	var nilConsumer *consumer
	_, _, err = c.For(nilConsumer)
	require.Error(t, err)
}
