package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
)

func productType() *entity.MetaType {
	field := func(name string, d entity.Datatype, c entity.Cardinality) *entity.Field {
		return &entity.Field{Unit: "shop", Type: "product", Name: name, Datatype: d, Cardinality: c}
	}
	return &entity.MetaType{
		Unit: "shop",
		Name: "product",
		Fields: []*entity.Field{
			field("name", entity.DatatypeString, entity.CardSingle),
			field("price", entity.DatatypeNumeric, entity.CardSingle),
			field("stock", entity.DatatypeInt, entity.CardSingle),
			field("active", entity.DatatypeBool, entity.CardSingle),
			field("category", entity.DatatypeEntity, entity.CardSingle),
			field("tags", entity.DatatypeString, entity.CardSet),
			field("attrs", entity.DatatypeJSON, entity.CardMap),
			field("extra", entity.DatatypeJSON, entity.CardSingle),
		},
	}
}

func TestParseOp(t *testing.T) {
	tests := map[string]Op{
		"=": OpEq, "==": OpEq, "!=": OpNe, "<>": OpNe,
		"<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
	}
	for sym, want := range tests {
		got, err := ParseOp(sym)
		require.NoError(t, err, sym)
		assert.Equal(t, want, got, sym)
	}

	_, err := ParseOp("~")
	assert.Error(t, err)
	assert.Equal(t, "Op(42)", Op(42).String())
	assert.True(t, OpGe.Ordered())
	assert.False(t, OpNe.Ordered())
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want Condition
	}{
		{"price>=10", Condition{Field: "price", Op: OpGe, Raw: "10"}},
		{"name = lamp ", Condition{Field: "name", Op: OpEq, Raw: "lamp"}},
		{"name==lamp", Condition{Field: "name", Op: OpEq, Raw: "lamp"}},
		{"stock<>0", Condition{Field: "stock", Op: OpNe, Raw: "0"}},
		{"stock<3", Condition{Field: "stock", Op: OpLt, Raw: "3"}},
		{"name=", Condition{Field: "name", Op: OpEq, Raw: ""}},
		{"name=a=b", Condition{Field: "name", Op: OpEq, Raw: "a=b"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCondition(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConditionErrors(t *testing.T) {
	for _, in := range []string{"price", "=10", "name!lamp"} {
		_, err := ParseCondition(in)
		assert.Error(t, err, in)
	}

	_, err := ParseConditions([]string{"price>1", "oops"})
	assert.ErrorContains(t, err, `"oops"`)
}

func TestBind(t *testing.T) {
	mt := productType()

	p, err := Bind(mt, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	conds, err := ParseConditions([]string{"price>=9.5"})
	require.NoError(t, err)
	p, err = Bind(mt, conds)
	require.NoError(t, err)
	assert.Equal(t, Compare{Field: "price", Op: OpGe, Value: ir.IRFloat(9.5)}, p)

	conds, err = ParseConditions([]string{"stock<3", "active=true", "category!=null", "name=null", "category=shop:1:category"})
	require.NoError(t, err)
	p, err = Bind(mt, conds)
	require.NoError(t, err)
	assert.Equal(t, And{Predicates: []Predicate{
		Compare{Field: "stock", Op: OpLt, Value: ir.IRInt(3)},
		Compare{Field: "active", Op: OpEq, Value: ir.IRBool(true)},
		IsNull{Field: "category", Negate: true},
		IsNull{Field: "name"},
		Compare{Field: "category", Op: OpEq, Value: ir.IRRef("shop:1:category")},
	}}, p)
}

func TestBindErrors(t *testing.T) {
	tests := []struct {
		cond string
		want string
	}{
		{"colour=red", "filter colour: not declared on product"},
		{"tags=new", "filter tags: set fields cannot be filtered"},
		{"attrs=x", "filter attrs: map fields cannot be filtered"},
		{"extra=x", "filter extra: json fields cannot be filtered"},
		{"stock=many", `filter stock: "many" is not an int`},
		{"price>cheap", `filter price: "cheap" is not numeric`},
		{"active=maybe", `filter active: "maybe" is not a bool`},
		{"active>true", "filter active: > on bool field"},
		{"stock<null", "filter stock: < null"},
	}
	mt := productType()
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			c, err := ParseCondition(tt.cond)
			require.NoError(t, err)
			_, err = Bind(mt, []Condition{c})
			require.Error(t, err)

			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestValidate(t *testing.T) {
	mt := productType()

	assert.NoError(t, Validate(mt, nil))
	assert.NoError(t, Validate(mt, And{}))
	assert.NoError(t, Validate(mt, &Compare{Field: "price", Op: OpLt, Value: ir.IRInt(3)}), "ints widen to numeric")
	assert.NoError(t, Validate(mt, &IsNull{Field: "name"}))
	assert.NoError(t, Validate(mt, Compare{Field: "category", Op: OpEq, Value: ir.IRString("shop:1:category")}))

	tests := []struct {
		name string
		pred Predicate
		want string
	}{
		{"kind mismatch", Compare{Field: "stock", Op: OpEq, Value: ir.IRString("3")}, "filter stock: string value for int field"},
		{"null value", Compare{Field: "name", Op: OpEq, Value: ir.IRNull{}}, "filter name: compare with null; use IsNull"},
		{"bad op", Compare{Field: "name", Op: Op(9), Value: ir.IRString("x")}, "filter name: Op(9) is not an operator"},
		{"nested", &And{Predicates: []Predicate{IsNull{Field: "name"}, IsNull{Field: "tags"}}}, "filter tags: set fields cannot be filtered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, Validate(mt, tt.pred), tt.want)
		})
	}
}

func TestFieldOf(t *testing.T) {
	f, ok := FieldOf(productType(), "price")
	require.True(t, ok)
	assert.Equal(t, entity.DatatypeNumeric, f.Datatype)

	_, ok = FieldOf(productType(), "missing")
	assert.False(t, ok)
}
