package querysql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
	"github.com/roach88/dust/internal/queryir"
	"github.com/roach88/dust/internal/querysql"
	"github.com/roach88/dust/internal/store"
)

func productType() *entity.MetaType {
	return &entity.MetaType{
		Unit: "shop",
		Name: "product",
		Fields: []*entity.Field{
			{Name: "name", Datatype: entity.DatatypeString},
			{Name: "price", Datatype: entity.DatatypeNumeric},
			{Name: "active", Datatype: entity.DatatypeBool},
			{Name: "tags", Datatype: entity.DatatypeString, Cardinality: entity.CardSet},
		},
	}
}

func compiler(d querysql.Dialect) *querysql.Compiler {
	return &querysql.Compiler{
		Dialect: d,
		Column:  func(f *entity.Field) string { return "_" + f.Name },
	}
}

func TestCompile_Nil(t *testing.T) {
	w, err := compiler(store.Postgres{}).Compile(productType(), nil)
	require.NoError(t, err)
	assert.True(t, w.Empty())
	assert.Empty(t, w.Args)
}

func TestCompile_Predicates(t *testing.T) {
	tests := []struct {
		name     string
		pred     queryir.Predicate
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "equals",
			pred:     queryir.Compare{Field: "name", Op: queryir.OpEq, Value: ir.IRString("lamp")},
			wantSQL:  `"_name" = $1`,
			wantArgs: []any{"lamp"},
		},
		{
			name:     "ordered widens int",
			pred:     &queryir.Compare{Field: "price", Op: queryir.OpGe, Value: ir.IRInt(10)},
			wantSQL:  `"_price" >= $1`,
			wantArgs: []any{float64(10)},
		},
		{
			name:     "not equal includes null",
			pred:     queryir.Compare{Field: "name", Op: queryir.OpNe, Value: ir.IRString("lamp")},
			wantSQL:  `("_name" <> $1 OR "_name" IS NULL)`,
			wantArgs: []any{"lamp"},
		},
		{
			name:    "is null",
			pred:    queryir.IsNull{Field: "price"},
			wantSQL: `"_price" IS NULL`,
		},
		{
			name:    "is not null",
			pred:    &queryir.IsNull{Field: "price", Negate: true},
			wantSQL: `"_price" IS NOT NULL`,
		},
		{
			name:    "empty and",
			pred:    queryir.And{},
			wantSQL: "1 = 1",
		},
		{
			name: "conjunction numbers placeholders in order",
			pred: queryir.And{Predicates: []queryir.Predicate{
				queryir.Compare{Field: "price", Op: queryir.OpLt, Value: ir.IRFloat(20)},
				queryir.IsNull{Field: "name", Negate: true},
				queryir.Compare{Field: "active", Op: queryir.OpEq, Value: ir.IRBool(true)},
			}},
			wantSQL:  `("_price" < $1 AND "_name" IS NOT NULL AND "_active" = $2)`,
			wantArgs: []any{float64(20), true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := compiler(store.Postgres{}).Compile(productType(), tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, w.SQL)
			assert.Equal(t, tt.wantArgs, w.Args)
		})
	}
}

func TestCompile_DialectArguments(t *testing.T) {
	pred := queryir.And{Predicates: []queryir.Predicate{
		queryir.Compare{Field: "active", Op: queryir.OpEq, Value: ir.IRBool(false)},
		queryir.Compare{Field: "name", Op: queryir.OpGt, Value: ir.IRString("m")},
	}}

	w, err := compiler(store.SQLite{}).Compile(productType(), pred)
	require.NoError(t, err)
	assert.Equal(t, `("_active" = ? AND "_name" > ?)`, w.SQL)
	assert.Equal(t, []any{int64(0), "m"}, w.Args)
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, err := compiler(store.Postgres{}).Compile(productType(), queryir.IsNull{Field: "tags"})
	require.Error(t, err)

	var fe *queryir.Error
	assert.ErrorAs(t, err, &fe)
}
