package adp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/schema"
)

// ProfileDir is the fixed directory ADP profiles live under (spec §6
// "ADP profile: /etc/hzDelta.d/<appname>.adp").
const ProfileDir = "/etc/hzDelta.d"

type xmlMember struct {
	Posn     int    `xml:"posn,attr"`
	UID      uint32 `xml:"uid,attr"`
	Min      int    `xml:"min,attr"`
	Max      int    `xml:"max,attr"`
	DataType string `xml:"datatype,attr"`
	Name     string `xml:"name,attr"`
}

type xmlClass struct {
	ID      uint32      `xml:"id,attr"`
	Desig   string      `xml:"desig,attr"`
	Name    string      `xml:"name,attr"`
	Members []xmlMember `xml:"member"`
}

type xmlEnum struct {
	Name string `xml:"name,attr"`
}

type xmlProfile struct {
	XMLName xml.Name   `xml:"AppDeltaProfile"`
	App     string     `xml:"app,attr"`
	Enums   []xmlEnum  `xml:"enum"`
	Classes []xmlClass `xml:"class"`
}

func desigCode(d schema.Designation) string {
	switch d {
	case schema.DesignationSystem:
		return "sys"
	case schema.DesignationUser:
		return "usr"
	case schema.DesignationConfig:
		return "cfg"
	default:
		return "usr"
	}
}

func desigFromCode(s string) schema.Designation {
	switch s {
	case "sys":
		return schema.DesignationSystem
	case "usr":
		return schema.DesignationUser
	case "cfg":
		return schema.DesignationConfig
	default:
		return schema.DesignationUnknown
	}
}

// ProfilePath returns the fixed export path for appName (spec §6).
func ProfilePath(appName string) string {
	return filepath.Join(ProfileDir, appName+".adp")
}

// Export writes the registry's classes (with members, in ID order) and
// enums to /etc/hzDelta.d/<app>.adp as XML (spec §4.4 "export"). If a
// previous file exists and differs, it is backed up first.
func (r *Registry) Export() error {
	profile := xmlProfile{App: r.appName}
	for _, e := range r.Enums() {
		profile.Enums = append(profile.Enums, xmlEnum{Name: e.Name})
	}
	for _, c := range r.Classes() {
		xc := xmlClass{ID: c.Number, Desig: desigCode(c.Designation), Name: c.Name}
		for _, m := range c.Members() {
			xc.Members = append(xc.Members, xmlMember{
				Posn:     m.Position,
				UID:      m.Number,
				Min:      m.MinPopulation,
				Max:      m.MaxPopulation,
				DataType: m.Type.Name,
				Name:     m.Name,
			})
		}
		profile.Classes = append(profile.Classes, xc)
	}

	out, err := xml.MarshalIndent(profile, "", "  ")
	if err != nil {
		return dberr.Wrap(dberr.KindFormat, "adp.Export", "marshal profile", err)
	}
	out = append([]byte(xml.Header), out...)

	path := ProfilePath(r.appName)
	if existing, err := os.ReadFile(path); err == nil && !bytes.Equal(existing, out) {
		backup := fmt.Sprintf("%s.bak.%d", path, time.Now().UnixNano())
		if err := os.WriteFile(backup, existing, 0o644); err != nil {
			return dberr.Wrap(dberr.KindIO, "adp.Export", "backup previous profile", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return dberr.Wrap(dberr.KindIO, "adp.Export", "create profile dir", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return dberr.Wrap(dberr.KindIO, "adp.Export", "write profile", err)
	}
	return nil
}

// Import parses /etc/hzDelta.d/<appName>.adp and reconstructs a Registry's
// classes and enums, resolving member datatype names against the types
// already registered via InitStandard plus any enums declared in the
// profile (spec §4.4 "import").
func Import(appName string, types map[string]*schema.DataType) (*Registry, error) {
	path := ProfilePath(appName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "adp.Import", "read profile", err)
	}

	var profile xmlProfile
	if err := xml.Unmarshal(data, &profile); err != nil {
		return nil, dberr.Wrap(dberr.KindFormat, "adp.Import", "parse profile XML", err)
	}

	r := New(appName)
	r.InitStandard()
	for name, dt := range types {
		r.types[name] = dt
	}

	for _, xe := range profile.Enums {
		e := schema.NewEnum(xe.Name)
		r.enums[xe.Name] = e
		r.types[xe.Name] = schema.NewEnumType(xe.Name, e)
	}

	for _, xc := range profile.Classes {
		c := schema.NewClass(xc.Name, desigFromCode(xc.Desig))
		if err := c.BeginConstruction(); err != nil {
			return nil, dberr.Wrap(dberr.KindFormat, "adp.Import", "begin construction", err)
		}
		for _, xm := range xc.Members {
			dt, ok := r.types[xm.DataType]
			if !ok {
				return nil, dberr.New(dberr.KindFormat, "adp.Import", fmt.Sprintf("class %q member %q: unknown datatype %q", xc.Name, xm.Name, xm.DataType))
			}
			m := &schema.Member{
				Name:          xm.Name,
				Number:        xm.UID,
				Type:          dt,
				MinPopulation: xm.Min,
				MaxPopulation: xm.Max,
			}
			if err := c.AddMember(m); err != nil {
				return nil, dberr.Wrap(dberr.KindFormat, "adp.Import", "add member", err)
			}
			r.membersByID[xm.UID] = &Member{Class: c, Member: m}
		}
		if err := c.Freeze(); err != nil {
			return nil, dberr.Wrap(dberr.KindFormat, "adp.Import", "freeze class", err)
		}
		c.Number = xc.ID
		r.classesByName[c.Name] = c
		r.classesByID[c.Number] = c
		if c.Number >= classUserMin && c.Number < classConfigMin && c.Number >= r.nextUserClassID {
			r.nextUserClassID = c.Number + 1
		}
		if c.Number >= classConfigMin && c.Number < classCompositeMin && c.Number >= r.nextConfigClassID {
			r.nextConfigClassID = c.Number + 1
		}
	}

	return r, nil
}
