package shape

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileSchema struct {
	Types []fileType `yaml:"types"`
}

type fileType struct {
	Name       string         `yaml:"name"`
	Super      string         `yaml:"super"`
	Interfaces []string       `yaml:"interfaces"`
	Interface  bool           `yaml:"interface"`
	Table      string         `yaml:"table"`
	Properties []fileProperty `yaml:"properties"`
}

type fileProperty struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Transient   bool     `yaml:"transient"`
	Indexed     bool     `yaml:"indexed"`
	Groups      []string `yaml:"groups"`
	MaxLength   int      `yaml:"maxLength"`
	LargeObject bool     `yaml:"largeObject"`
	Column      string   `yaml:"column"`
	FormerName  string   `yaml:"formerName"`
}

// ParseYAML reads shapes from a YAML document of the form
//
//	types:
//	  - name: Person
//	    interfaces: [Named]
//	    properties:
//	      - {name: name, type: string, indexed: true, maxLength: 80}
//	      - {name: employer, type: ref:Company}
func ParseYAML(data []byte) ([]Shape, error) {
	var doc fileSchema
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse shapes: %w", err)
	}

	shapes := make([]Shape, 0, len(doc.Types))
	for _, ft := range doc.Types {
		s := Shape{
			Name:       ft.Name,
			Super:      ft.Super,
			Interfaces: ft.Interfaces,
			Interface:  ft.Interface,
			TableName:  ft.Table,
		}
		for _, fp := range ft.Properties {
			if fp.Name == "" {
				return nil, NewShapeError(ft.Name, "", "property name is required")
			}
			t, err := ParseTypeRef(fp.Type)
			if err != nil {
				return nil, NewShapeError(ft.Name, fp.Name, err.Error())
			}
			opts := []Option{MaxLength(fp.MaxLength), Column(fp.Column), RenamedFrom(fp.FormerName)}
			if fp.Transient {
				opts = append(opts, Transient())
			}
			if fp.Indexed {
				opts = append(opts, Indexed())
			}
			if len(fp.Groups) > 0 {
				opts = append(opts, InGroup(fp.Groups...))
			}
			if fp.LargeObject {
				opts = append(opts, AsLargeObject())
			}
			s.Accessors = append(s.Accessors, Property(fp.Name, t, opts...))
		}
		shapes = append(shapes, s)
	}
	return shapes, nil
}

// LoadFile parses a YAML shape file and registers every type in it.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read shape file: %w", err)
	}
	shapes, err := ParseYAML(data)
	if err != nil {
		return err
	}
	return r.Register(shapes...)
}
