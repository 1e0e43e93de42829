package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuiltinTypes(t *testing.T) {
	types := BuiltinTypes()
	require.Contains(t, types, "string")
	require.Equal(t, BaseString, types["string"].Base)
	require.True(t, types["string"].Base.IsStringLike())
	require.True(t, types["int64"].Base.Is64Bit())
}

func TestEnumCodes(t *testing.T) {
	e := NewEnum("color")
	e.AddItem("red")
	e.AddItem("green")
	e.AddItemWithCode("blue", 99)

	code, ok := e.CodeOf("red")
	require.True(t, ok)
	require.Equal(t, 0, code)

	display, ok := e.DisplayOf(99)
	require.True(t, ok)
	require.Equal(t, "blue", display)

	require.Equal(t, 5, e.MaxItemLen())
	require.True(t, e.BitmapEligible())
}

func TestRegexType(t *testing.T) {
	dt, err := NewRegexType("zipcode", `^\d{5}$`)
	require.NoError(t, err)
	require.True(t, dt.Validate("90210"))
	require.False(t, dt.Validate("abc"))

	_, err = NewRegexType("bad", `(unterminated`)
	require.Error(t, err)
}

func TestClassLifecycle(t *testing.T) {
	c := NewClass("person", DesignationUser)
	require.Equal(t, ClassNotYetInitializing, c.State())

	require.Error(t, c.AddMember(&Member{Name: "name"}))

	require.NoError(t, c.BeginConstruction())
	require.NoError(t, c.AddMember(&Member{Name: "name", Type: NewBuiltin("string", BaseString), MinPopulation: 1, MaxPopulation: 1}))
	require.Error(t, c.AddMember(&Member{Name: "name", Type: NewBuiltin("string", BaseString)}))

	require.NoError(t, c.Freeze())
	require.Error(t, c.AddMember(&Member{Name: "age"}))

	m, ok := c.MemberByName("name")
	require.True(t, ok)
	require.Equal(t, 0, m.Position)
	require.True(t, m.Required())
	require.True(t, m.IsScalar())
}

func TestClassEqualsAndSubClass(t *testing.T) {
	base := NewClass("animal", DesignationUser)
	require.NoError(t, base.BeginConstruction())
	require.NoError(t, base.Freeze())

	dog := NewClass("dog", DesignationUser)
	dog.Parent = base
	require.NoError(t, dog.BeginConstruction())
	require.NoError(t, dog.Freeze())

	require.True(t, dog.IsSubClassOf(base))
	require.False(t, base.IsSubClassOf(dog))

	other := NewClass("animal", DesignationUser)
	require.NoError(t, other.BeginConstruction())
	require.NoError(t, other.Freeze())
	require.True(t, base.Equals(other))
}
