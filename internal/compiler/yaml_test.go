package compiler

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dust/internal/entity"
)

func TestLoadYAML(t *testing.T) {
	decls, err := LoadYAML(filepath.Join("testdata", "shop.yaml"))
	require.NoError(t, err)
	require.Len(t, decls, 2)

	assert.Equal(t, entity.TypeDecl{Unit: "shop", Name: "category", Fields: []entity.FieldDecl{
		{Name: "name", Datatype: entity.DatatypeString, Order: 0},
		{Name: "products", Datatype: entity.DatatypeEntity, Cardinality: entity.CardSet, Order: 1},
	}}, decls[0])

	product := decls[1]
	assert.Equal(t, int64(20), product.ID)
	assert.Equal(t, entity.FieldDecl{
		Name: "sizes", Datatype: entity.DatatypeInt, Cardinality: entity.CardList, ID: 40, Order: 5,
	}, product.Fields[2])
}

func TestLoadYAMLMissingFile(t *testing.T) {
	_, err := LoadYAML(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseYAMLErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"syntax", "types: [", "yaml"},
		{"datatype", "types:\n  - {unit: u, name: t, fields: [{name: x, datatype: decimal}]}", "types[0].fields[0].datatype"},
		{"cardinality", "types:\n  - {unit: u, name: t, fields: [{name: x, datatype: int, cardinality: bag}]}", "types[0].fields[0].cardinality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML("inline.yaml", []byte(tt.src))
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Equal(t, "inline.yaml", ce.File)
		})
	}
}
