package repository

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/hadronzoo/deltadb/pkg/atom"
	"github.com/hadronzoo/deltadb/pkg/blobstore"
	"github.com/hadronzoo/deltadb/pkg/container"
	"github.com/hadronzoo/deltadb/pkg/schema"
	"github.com/hadronzoo/deltadb/pkg/strtable"
	"github.com/stretchr/testify/require"
)

func widgetClass(t *testing.T, number uint32) *schema.Class {
	t.Helper()
	c := schema.NewClass("Widget", schema.DesignationUser)
	require.NoError(t, c.BeginConstruction())
	require.NoError(t, c.AddMember(&schema.Member{
		Name: "label", Number: 501, Type: schema.NewBuiltin("string", schema.BaseString),
		MinPopulation: 1, MaxPopulation: 1,
	}))
	require.NoError(t, c.AddMember(&schema.Member{
		Name: "weight", Number: 502, Type: schema.NewBuiltin("float64", schema.BaseFloat64),
		MinPopulation: 0, MaxPopulation: 1,
	}))
	require.NoError(t, c.Freeze())
	c.Number = number
	return c
}

func widgetContainer(t *testing.T, class *schema.Class, label string, weight float64) *container.Container {
	t.Helper()
	c, err := container.Init("", class)
	require.NoError(t, err)
	require.NoError(t, c.SetValueByName(1, "label", label))
	a := atom.New()
	require.NoError(t, a.SetValue(schema.BaseFloat64, strconv.FormatFloat(weight, 'f', -1, 64)))
	require.NoError(t, c.SetValue(1, 502, a))
	return c
}

func openTestRAM(t *testing.T, class *schema.Class) *RAM {
	t.Helper()
	dir := t.TempDir()
	strs, err := strtable.Open(filepath.Join(dir, "strings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { strs.Close() })

	r := NewRAM(dir, "widgets", strs)
	require.NoError(t, r.InitStart(class))
	require.NoError(t, r.InitMemberIndex(501, IndexUnique))
	require.NoError(t, r.InitDone())
	return r
}

func TestRAMInsertFetchRoundTrip(t *testing.T) {
	class := widgetClass(t, 21)
	r := openTestRAM(t, class)

	c := widgetContainer(t, class, "bolt", 3)
	objID, err := r.Insert(c)
	require.NoError(t, err)
	require.Equal(t, uint32(1), objID)

	out, err := r.Fetch(objID)
	require.NoError(t, err)
	a, ok := out.GetValue(container.ROMID{ClassID: class.Number, ObjectID: 1, MemberID: 501}, schema.BaseString)
	require.True(t, ok)
	require.Equal(t, "bolt", a.Str())
}

func TestRAMFloat64RoundTrip(t *testing.T) {
	class := widgetClass(t, 28)
	r := openTestRAM(t, class)

	c := widgetContainer(t, class, "washer", 12.5)
	objID, err := r.Insert(c)
	require.NoError(t, err)

	out, err := r.Fetch(objID)
	require.NoError(t, err)
	a, ok := out.GetValue(container.ROMID{ClassID: class.Number, ObjectID: 1, MemberID: 502}, schema.BaseFloat64)
	require.True(t, ok)
	require.Equal(t, "12.5", a.Str())
}

func TestRAMRejectsDuplicateUniqueKey(t *testing.T) {
	class := widgetClass(t, 22)
	r := openTestRAM(t, class)

	c1 := widgetContainer(t, class, "bolt", 3)
	_, err := r.Insert(c1)
	require.NoError(t, err)

	c2 := widgetContainer(t, class, "bolt", 4)
	_, err = r.Insert(c2)
	require.Error(t, err)
}

func TestRAMDeleteDisabledByDefault(t *testing.T) {
	class := widgetClass(t, 23)
	r := openTestRAM(t, class)
	c := widgetContainer(t, class, "nut", 1)
	objID, err := r.Insert(c)
	require.NoError(t, err)
	require.Error(t, r.Delete(objID))

	r.EnableDeletes()
	require.NoError(t, r.Delete(objID))
	_, err = r.Fetch(objID)
	require.Error(t, err)
}

func TestRAMReplayFromDeltaLog(t *testing.T) {
	class := widgetClass(t, 24)
	dir := t.TempDir()
	strs, err := strtable.Open(filepath.Join(dir, "strings.db"))
	require.NoError(t, err)
	defer strs.Close()

	r := NewRAM(dir, "widgets", strs)
	require.NoError(t, r.InitStart(class))
	require.NoError(t, r.InitDone())
	c := widgetContainer(t, class, "washer", 2)
	objID, err := r.Insert(c)
	require.NoError(t, err)

	r2 := NewRAM(dir, "widgets", strs)
	require.NoError(t, r2.InitStart(class))
	require.NoError(t, r2.InitDone())
	require.Equal(t, r.Population(), r2.Population())

	out, err := r2.Fetch(objID)
	require.NoError(t, err)
	a, ok := out.GetValue(container.ROMID{ClassID: class.Number, ObjectID: 1, MemberID: 501}, schema.BaseString)
	require.True(t, ok)
	require.Equal(t, "washer", a.Str())
}

func openTestDisk(t *testing.T, class *schema.Class) *Disk {
	t.Helper()
	dir := t.TempDir()
	records, err := blobstore.Open(filepath.Join(dir, "records.dat"), filepath.Join(dir, "records.idx"))
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	d := NewDisk(dir, "widgets_disk", nil)
	require.NoError(t, d.InitStart(class))
	require.NoError(t, d.InitMemberIndex(501, IndexUnique))
	require.NoError(t, d.InitDone(records))
	return d
}

func TestDiskInsertFetchRoundTrip(t *testing.T) {
	class := widgetClass(t, 25)
	d := openTestDisk(t, class)

	c := widgetContainer(t, class, "rivet", 5)
	objID, err := d.Insert(c)
	require.NoError(t, err)
	require.Equal(t, uint32(1), objID)

	out, err := d.Fetch(objID)
	require.NoError(t, err)
	a, ok := out.GetValue(container.ROMID{ClassID: class.Number, ObjectID: 1, MemberID: 501}, schema.BaseString)
	require.True(t, ok)
	require.Equal(t, "rivet", a.Str())
}

func TestDiskUpdateWritesNewVersion(t *testing.T) {
	class := widgetClass(t, 26)
	d := openTestDisk(t, class)

	c := widgetContainer(t, class, "screw", 1)
	objID, err := d.Insert(c)
	require.NoError(t, err)

	c2 := widgetContainer(t, class, "screw-v2", 1)
	require.NoError(t, d.Update(objID, c2))

	out, err := d.Fetch(objID)
	require.NoError(t, err)
	a, ok := out.GetValue(container.ROMID{ClassID: class.Number, ObjectID: 1, MemberID: 501}, schema.BaseString)
	require.True(t, ok)
	require.Equal(t, "screw-v2", a.Str())
}

func TestDiskVerifyPassesAfterInserts(t *testing.T) {
	class := widgetClass(t, 27)
	d := openTestDisk(t, class)
	_, err := d.Insert(widgetContainer(t, class, "a", 1))
	require.NoError(t, err)
	_, err = d.Insert(widgetContainer(t, class, "b", 2))
	require.NoError(t, err)
	require.NoError(t, d.Verify())
}

func TestDeltaLineFormatRoundTrip(t *testing.T) {
	line := formatDelta(3, true, 21, 7, 501, "hello\nworld")
	dl, err := parseDelta(line[:len(line)-1])
	require.NoError(t, err)
	require.True(t, dl.HasRepos)
	require.Equal(t, uint32(3), dl.ReposID)
	require.Equal(t, uint32(21), dl.ClassID)
	require.Equal(t, uint32(7), dl.ObjectID)
	require.Equal(t, uint32(501), dl.MemberID)
	require.Equal(t, "hello\nworld", dl.Value)
}
