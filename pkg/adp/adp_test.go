package adp

import (
	"testing"

	"github.com/hadronzoo/deltadb/pkg/schema"
	"github.com/stretchr/testify/require"
)

func frozenClass(t *testing.T, name string, desig schema.Designation, memberType *schema.DataType) *schema.Class {
	t.Helper()
	c := schema.NewClass(name, desig)
	require.NoError(t, c.BeginConstruction())
	require.NoError(t, c.AddMember(&schema.Member{Name: "value", Type: memberType, MinPopulation: 1, MaxPopulation: 1}))
	require.NoError(t, c.Freeze())
	return c
}

func TestRegisterClassPartitions(t *testing.T) {
	r := New("testapp")
	r.InitStandard()
	stringType, _ := r.TypeByName("string")

	sys := schema.NewClass("SysStringTable", schema.DesignationSystem)
	require.NoError(t, sys.BeginConstruction())
	require.NoError(t, sys.Freeze())
	require.NoError(t, r.RegisterClass(sys))
	require.Equal(t, uint32(1), sys.Number)

	badSys := schema.NewClass("NotAReservedName", schema.DesignationSystem)
	require.NoError(t, badSys.BeginConstruction())
	require.NoError(t, badSys.Freeze())
	require.Error(t, r.RegisterClass(badSys))

	u1 := frozenClass(t, "Widget", schema.DesignationUser, stringType)
	require.NoError(t, r.RegisterClass(u1))
	require.Equal(t, uint32(21), u1.Number)

	u2 := frozenClass(t, "Gadget", schema.DesignationUser, stringType)
	require.NoError(t, r.RegisterClass(u2))
	require.Equal(t, uint32(22), u2.Number)

	require.Error(t, r.RegisterClass(u1))
}

func TestRegisterClassRequiresFrozen(t *testing.T) {
	r := New("testapp")
	c := schema.NewClass("Unfrozen", schema.DesignationUser)
	require.Error(t, r.RegisterClass(c))
}

func TestRegisterMemberPartitions(t *testing.T) {
	r := New("testapp")
	r.InitStandard()
	stringType, _ := r.TypeByName("string")
	c := schema.NewClass("Widget", schema.DesignationUser)
	require.NoError(t, c.BeginConstruction())
	m1 := &schema.Member{Name: "a", Type: stringType, MinPopulation: 1, MaxPopulation: 1}
	m2 := &schema.Member{Name: "b", Type: stringType, MinPopulation: 0, MaxPopulation: 1}
	require.NoError(t, c.AddMember(m1))
	require.NoError(t, c.AddMember(m2))
	require.NoError(t, c.Freeze())
	require.NoError(t, r.RegisterClass(c))

	require.NoError(t, r.RegisterMember(c, m1))
	require.NoError(t, r.RegisterMember(c, m2))
	require.Equal(t, uint32(501), m1.Number)
	require.Equal(t, uint32(502), m2.Number)
}

func TestIsSubClass(t *testing.T) {
	r := New("testapp")
	r.InitStandard()
	stringType, _ := r.TypeByName("string")

	animal := frozenClass(t, "Animal", schema.DesignationUser, stringType)
	require.NoError(t, r.RegisterClass(animal))

	dog := schema.NewClass("Dog", schema.DesignationUser)
	dog.Parent = animal
	require.NoError(t, dog.BeginConstruction())
	require.NoError(t, dog.AddMember(&schema.Member{Name: "value", Type: stringType, MinPopulation: 1, MaxPopulation: 1}))
	require.NoError(t, dog.Freeze())
	require.NoError(t, r.RegisterClass(dog))

	require.True(t, r.IsSubClass(animal, dog))
	require.False(t, r.IsSubClass(dog, animal))
}

func TestRegisterComposite(t *testing.T) {
	r := New("testapp")
	r.InitStandard()
	stringType, _ := r.TypeByName("string")
	inner := frozenClass(t, "Address", schema.DesignationUser, stringType)

	id1, err := r.RegisterComposite("Person", "homeAddress", inner)
	require.NoError(t, err)
	require.GreaterOrEqual(t, id1, uint32(classCompositeMin))

	_, err = r.RegisterComposite("Person", "homeAddress", inner)
	require.Error(t, err)
}

func TestDuplicateEnumAndRegex(t *testing.T) {
	r := New("testapp")
	r.InitStandard()

	e := schema.NewEnum("Color")
	e.AddItem("red")
	_, err := r.RegisterEnum(e)
	require.NoError(t, err)
	_, err = r.RegisterEnum(e)
	require.Error(t, err)

	_, err = r.RegisterRegex("zip", `^\d{5}$`)
	require.NoError(t, err)
	_, err = r.RegisterRegex("zip", `^\d{5}$`)
	require.Error(t, err)
}
