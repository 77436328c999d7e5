package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dust/internal/entity"
)

// ShopUnit is the unit the fixture types live in.
const ShopUnit = "shop"

// ShopTypes declares a small catalogue schema that touches every datatype
// and cardinality.
func ShopTypes() []entity.TypeDecl {
	return []entity.TypeDecl{
		{Unit: ShopUnit, Name: "category", Fields: []entity.FieldDecl{
			{Name: "name", Datatype: entity.DatatypeString, Order: 0},
			{Name: "products", Datatype: entity.DatatypeEntity, Cardinality: entity.CardSet, Order: 1},
		}},
		{Unit: ShopUnit, Name: "product", Fields: []entity.FieldDecl{
			{Name: "name", Datatype: entity.DatatypeString, Order: 0},
			{Name: "price", Datatype: entity.DatatypeNumeric, Order: 1},
			{Name: "stock", Datatype: entity.DatatypeInt, Order: 2},
			{Name: "active", Datatype: entity.DatatypeBool, Order: 3},
			{Name: "photo", Datatype: entity.DatatypeBytes, Order: 4},
			{Name: "attrs", Datatype: entity.DatatypeJSON, Cardinality: entity.CardMap, Order: 5},
			{Name: "category", Datatype: entity.DatatypeEntity, Order: 6},
			{Name: "tags", Datatype: entity.DatatypeString, Cardinality: entity.CardSet, Order: 7},
			{Name: "sizes", Datatype: entity.DatatypeInt, Cardinality: entity.CardList, Order: 8},
		}},
	}
}

// NewShopStore returns a store with ShopTypes registered.
func NewShopStore(t *testing.T, opts ...entity.Option) *entity.Store {
	t.Helper()

	s := entity.NewStore(opts...)
	t.Cleanup(s.Close)
	require.NoError(t, s.RegisterTypes(ShopTypes()...))
	return s
}
