package compiler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dust/internal/entity"
)

// typesFile is the YAML layout of a type declaration file:
//
//	types:
//	  - unit: shop
//	    name: product
//	    fields:
//	      - {name: name, datatype: string}
//	      - {name: tags, datatype: string, cardinality: set}
type typesFile struct {
	Types []yamlType `yaml:"types"`
}

type yamlType struct {
	Unit   string      `yaml:"unit"`
	Name   string      `yaml:"name"`
	ID     int64       `yaml:"id"`
	Fields []yamlField `yaml:"fields"`
}

type yamlField struct {
	Name        string `yaml:"name"`
	Datatype    string `yaml:"datatype"`
	Cardinality string `yaml:"cardinality"`
	ID          int64  `yaml:"id"`
	Order       *int   `yaml:"order"`
}

// LoadYAML reads type declarations from a YAML file.
func LoadYAML(path string) ([]entity.TypeDecl, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read types file: %w", err)
	}
	return ParseYAML(path, data)
}

// ParseYAML parses type declarations from YAML. name labels errors.
func ParseYAML(name string, data []byte) ([]entity.TypeDecl, error) {
	var f typesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &CompileError{Field: "yaml", Message: err.Error(), File: name}
	}

	decls := make([]entity.TypeDecl, 0, len(f.Types))
	for i, yt := range f.Types {
		where := fmt.Sprintf("types[%d]", i)
		decl := entity.TypeDecl{Unit: yt.Unit, Name: yt.Name, ID: yt.ID}
		for j, yf := range yt.Fields {
			fwhere := fmt.Sprintf("%s.fields[%d]", where, j)
			d, err := entity.ParseDatatype(yf.Datatype)
			if err != nil {
				return nil, &CompileError{Field: fwhere + ".datatype", Message: err.Error(), File: name}
			}
			c, err := entity.ParseCardinality(yf.Cardinality)
			if err != nil {
				return nil, &CompileError{Field: fwhere + ".cardinality", Message: err.Error(), File: name}
			}
			order := j
			if yf.Order != nil {
				order = *yf.Order
			}
			decl.Fields = append(decl.Fields, entity.FieldDecl{
				Name:        yf.Name,
				Datatype:    d,
				Cardinality: c,
				ID:          yf.ID,
				Order:       order,
			})
		}
		decls = append(decls, decl)
	}
	return decls, nil
}
