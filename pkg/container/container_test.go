package container

import (
	"testing"

	"github.com/hadronzoo/deltadb/pkg/atom"
	"github.com/hadronzoo/deltadb/pkg/schema"
	"github.com/stretchr/testify/require"
)

func widgetClass(t *testing.T) *schema.Class {
	t.Helper()
	c := schema.NewClass("Widget", schema.DesignationUser)
	c.Number = 21
	require.NoError(t, c.BeginConstruction())
	require.NoError(t, c.AddMember(&schema.Member{Name: "label", Number: 501, Type: schema.NewBuiltin("string", schema.BaseString), MinPopulation: 1, MaxPopulation: 1}))
	require.NoError(t, c.AddMember(&schema.Member{Name: "weight", Number: 502, Type: schema.NewBuiltin("float64", schema.BaseFloat64), MinPopulation: 0, MaxPopulation: 1}))
	require.NoError(t, c.AddMember(&schema.Member{Name: "active", Number: 503, Type: schema.NewBuiltin("bool", schema.BaseBool), MinPopulation: 0, MaxPopulation: 1}))
	require.NoError(t, c.Freeze())
	return c
}

func TestInitRejectsUnfrozenOrNilClass(t *testing.T) {
	_, err := Init("", nil)
	require.Error(t, err)

	unfrozen := schema.NewClass("X", schema.DesignationUser)
	_, err = Init("", unfrozen)
	require.Error(t, err)
}

func TestSetAndGetValue(t *testing.T) {
	c, err := Init("", widgetClass(t))
	require.NoError(t, err)
	require.True(t, c.IsNull())

	label := atom.New()
	require.NoError(t, label.SetValue(schema.BaseString, "bolt"))
	require.NoError(t, c.SetValue(1, 501, label))
	require.False(t, c.IsNull())

	weight := atom.New()
	require.NoError(t, weight.SetValue(schema.BaseFloat64, "12.5"))
	require.NoError(t, c.SetValue(1, 502, weight))

	got, ok := c.GetValue(ROMID{ClassID: c.Class().Number, ObjectID: 1, MemberID: 501}, schema.BaseString)
	require.True(t, ok)
	require.Equal(t, "bolt", got.Str())

	gotW, ok := c.GetValue(ROMID{ClassID: c.Class().Number, ObjectID: 1, MemberID: 502}, schema.BaseFloat64)
	require.True(t, ok)
	require.Equal(t, "12.5", gotW.Str())
}

func TestSetValueUnknownMember(t *testing.T) {
	c, err := Init("", widgetClass(t))
	require.NoError(t, err)
	a := atom.New()
	require.NoError(t, a.SetValue(schema.BaseString, "x"))
	require.Error(t, c.SetValue(1, 9999, a))
}

func TestSetValueTypeMismatch(t *testing.T) {
	c, err := Init("", widgetClass(t))
	require.NoError(t, err)
	a := atom.New()
	require.NoError(t, a.SetValue(schema.BaseInt32, "5"))
	require.Error(t, c.SetValue(1, 501, a)) // label wants string
}

func TestImportExportJSON(t *testing.T) {
	c, err := Init("", widgetClass(t))
	require.NoError(t, err)

	errs := c.ImportJSON([]byte(`{"label":"bolt","weight":12.5,"active":true,"unknownMember":"ignored"}`))
	require.Empty(t, errs)

	out, err := c.ExportJSON()
	require.NoError(t, err)
	require.Contains(t, string(out), `"label":"bolt"`)
}

func TestImportJSONTypeMismatchDropsOnlyThatMember(t *testing.T) {
	c, err := Init("", widgetClass(t))
	require.NoError(t, err)

	errs := c.ImportJSON([]byte(`{"label":"bolt","weight":"not-a-number"}`))
	require.Len(t, errs, 1)
	require.Equal(t, "weight", errs[0].Member)

	got, ok := c.GetValue(ROMID{ClassID: c.Class().Number, ObjectID: 1, MemberID: 501}, schema.BaseString)
	require.True(t, ok)
	require.Equal(t, "bolt", got.Str())
}

func TestListSubsRangeScan(t *testing.T) {
	c, err := Init("", widgetClass(t))
	require.NoError(t, err)
	classID := c.Class().Number

	l1 := atom.New()
	require.NoError(t, l1.SetValue(schema.BaseString, "a"))
	require.NoError(t, c.SetValue(1, 501, l1))
	l2 := atom.New()
	require.NoError(t, l2.SetValue(schema.BaseString, "b"))
	require.NoError(t, c.SetValue(2, 501, l2))

	subs := c.ListSubs(classID)
	require.Equal(t, []uint32{1, 2}, subs)
}
