package main

import (
	"fmt"
	"os"

	"github.com/hadronzoo/deltadb/pkg/adp"
	"github.com/hadronzoo/deltadb/pkg/schema"
	"gopkg.in/yaml.v3"
)

// schemaFile is the YAML shape `adp export` reads to build a Registry from
// scratch: one file names every enum and user class the application owns,
// in the spirit of the ADP profile it gets exported to, but editable by
// hand before any process has run.
type schemaFile struct {
	Enums []struct {
		Name  string   `yaml:"name"`
		Items []string `yaml:"items"`
	} `yaml:"enums"`
	Classes []struct {
		Name    string `yaml:"name"`
		Members []struct {
			Name string `yaml:"name"`
			Type string `yaml:"type"`
			Min  int    `yaml:"min"`
			Max  int    `yaml:"max"`
		} `yaml:"members"`
	} `yaml:"classes"`
}

func loadSchemaFile(path string) (*schemaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	return &sf, nil
}

// buildRegistry constructs a fresh Registry from a schemaFile, registering
// every enum, then every class with its members, in file order so IDs are
// assigned deterministically run to run.
func buildRegistry(appName string, sf *schemaFile) (*adp.Registry, error) {
	r := adp.New(appName)
	r.InitStandard()

	for _, se := range sf.Enums {
		e := schema.NewEnum(se.Name)
		for _, item := range se.Items {
			e.AddItem(item)
		}
		if _, err := r.RegisterEnum(e); err != nil {
			return nil, fmt.Errorf("enum %q: %w", se.Name, err)
		}
	}

	for _, sc := range sf.Classes {
		c := schema.NewClass(sc.Name, schema.DesignationUser)
		if err := c.BeginConstruction(); err != nil {
			return nil, fmt.Errorf("class %q: %w", sc.Name, err)
		}
		for _, sm := range sc.Members {
			dt, ok := r.TypeByName(sm.Type)
			if !ok {
				return nil, fmt.Errorf("class %q member %q: unknown type %q", sc.Name, sm.Name, sm.Type)
			}
			min, max := sm.Min, sm.Max
			if max == 0 {
				max = 1
			}
			m := &schema.Member{Name: sm.Name, Type: dt, MinPopulation: min, MaxPopulation: max}
			if err := c.AddMember(m); err != nil {
				return nil, fmt.Errorf("class %q member %q: %w", sc.Name, sm.Name, err)
			}
		}
		if err := c.Freeze(); err != nil {
			return nil, fmt.Errorf("class %q: %w", sc.Name, err)
		}
		if err := r.RegisterClass(c); err != nil {
			return nil, fmt.Errorf("class %q: %w", sc.Name, err)
		}
		for _, m := range c.Members() {
			if err := r.RegisterMember(c, m); err != nil {
				return nil, fmt.Errorf("class %q member %q: %w", sc.Name, m.Name, err)
			}
		}
	}

	return r, nil
}
