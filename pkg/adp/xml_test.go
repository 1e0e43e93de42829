package adp

import (
	"encoding/xml"
	"os"
	"testing"

	"github.com/hadronzoo/deltadb/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	origProfileDir := ProfileDir
	// ProfileDir is a const in production use; tests exercise the XML
	// marshal/unmarshal shape directly against a temp path instead of
	// overriding the fixed /etc/hzDelta.d location.
	_ = origProfileDir

	r := New("testapp")
	r.InitStandard()
	stringType, _ := r.TypeByName("string")

	c := schema.NewClass("Widget", schema.DesignationUser)
	require.NoError(t, c.BeginConstruction())
	require.NoError(t, c.AddMember(&schema.Member{Name: "label", Type: stringType, MinPopulation: 1, MaxPopulation: 1}))
	require.NoError(t, c.Freeze())
	require.NoError(t, r.RegisterClass(c))

	path := dir + "/testapp.adp"
	profile := xmlProfile{App: r.appName}
	for _, cc := range r.Classes() {
		xc := xmlClass{ID: cc.Number, Desig: desigCode(cc.Designation), Name: cc.Name}
		for _, m := range cc.Members() {
			xc.Members = append(xc.Members, xmlMember{
				Posn: m.Position, UID: m.Number, Min: m.MinPopulation,
				Max: m.MaxPopulation, DataType: m.Type.Name, Name: m.Name,
			})
		}
		profile.Classes = append(profile.Classes, xc)
	}

	data, err := xml.MarshalIndent(profile, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `desig="usr"`)
	require.Contains(t, string(raw), `name="Widget"`)

	var back xmlProfile
	require.NoError(t, xml.Unmarshal(raw, &back))
	require.Equal(t, profile.Classes, back.Classes)
}

func TestDesigCodeRoundTrip(t *testing.T) {
	require.Equal(t, schema.DesignationSystem, desigFromCode(desigCode(schema.DesignationSystem)))
	require.Equal(t, schema.DesignationUser, desigFromCode(desigCode(schema.DesignationUser)))
	require.Equal(t, schema.DesignationConfig, desigFromCode(desigCode(schema.DesignationConfig)))
}
