package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
	"github.com/roach88/dust/internal/queryir"
	"github.com/roach88/dust/internal/testutil"
)

// seedProducts persists three products and returns their global ids in
// creation order: lamp (12.5, stock 3), desk (80, no stock), pen (1.2, stock 40).
func seedProducts(t *testing.T, path string) []entity.GlobalID {
	t.Helper()
	src := testutil.NewShopStore(t)

	var gids []entity.GlobalID
	for _, p := range []struct {
		name  string
		price float64
		stock ir.IRValue
		sizes ir.IRList
	}{
		{"lamp", 12.5, ir.IRInt(3), ir.IRList{ir.IRInt(2), ir.IRInt(1)}},
		{"desk", 80, ir.IRNull{}, ir.IRList{ir.IRInt(7)}},
		{"pen", 1.2, ir.IRInt(40), nil},
	} {
		e, err := src.GetEntity(entity.Create(testutil.ShopUnit, "product"))
		require.NoError(t, err)
		set(t, src, e.Path().F("name"), ir.IRString(p.name))
		set(t, src, e.Path().F("price"), ir.IRFloat(p.price))
		if !ir.IsNull(p.stock) {
			set(t, src, e.Path().F("stock"), p.stock)
		}
		if p.sizes != nil {
			set(t, src, e.Path().F("sizes"), p.sizes)
		}
		gids = append(gids, e.GlobalID())
	}

	s := openSQLite(t, path, src)
	_, err := s.PersistPending(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	return gids
}

func loadWhere(t *testing.T, path string, conds ...string) (*entity.Store, []*entity.Entity) {
	t.Helper()
	ctx := context.Background()
	dst := testutil.NewShopStore(t)
	s := openSQLite(t, path, dst)
	_, err := s.LoadUnits(ctx)
	require.NoError(t, err)

	mt, ok := dst.MetaType("product")
	require.True(t, ok)
	parsed, err := queryir.ParseConditions(conds)
	require.NoError(t, err)
	pred, err := queryir.Bind(mt, parsed)
	require.NoError(t, err)

	loaded, err := s.LoadWhere(ctx, queryir.Select{Type: "product", Filter: pred})
	require.NoError(t, err)
	return dst, loaded
}

func globalIDs(es []*entity.Entity) []entity.GlobalID {
	out := make([]entity.GlobalID, len(es))
	for i, e := range es {
		out[i] = e.GlobalID()
	}
	return out
}

func TestLoadWhere(t *testing.T) {
	path := tempDB(t)
	gids := seedProducts(t, path)
	lamp, desk, pen := gids[0], gids[1], gids[2]

	tests := []struct {
		name  string
		conds []string
		want  []entity.GlobalID
	}{
		{"no filter", nil, []entity.GlobalID{lamp, desk, pen}},
		{"equals", []string{"name=desk"}, []entity.GlobalID{desk}},
		{"ordered", []string{"price>=10"}, []entity.GlobalID{lamp, desk}},
		{"conjunction", []string{"price>=10", "stock<10"}, []entity.GlobalID{lamp}},
		{"not equal keeps unset", []string{"stock!=3"}, []entity.GlobalID{desk, pen}},
		{"unset", []string{"stock=null"}, []entity.GlobalID{desk}},
		{"set", []string{"stock!=null"}, []entity.GlobalID{lamp, pen}},
		{"nothing", []string{"name=chair"}, []entity.GlobalID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst, loaded := loadWhere(t, path, tt.conds...)
			assert.ElementsMatch(t, tt.want, globalIDs(loaded))
			assert.Len(t, dst.VisitEntities(testutil.ShopUnit, "product"), len(tt.want))
			for _, e := range loaded {
				assert.Equal(t, entity.Saved, e.State())
			}
		})
	}
}

func TestLoadWhereLoadsMembersOfMatchesOnly(t *testing.T) {
	path := tempDB(t)
	gids := seedProducts(t, path)

	dst, loaded := loadWhere(t, path, "name=lamp")
	require.Len(t, loaded, 1)

	sizes, err := dst.Get(entity.At(gids[0]).F("sizes"), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRList{ir.IRInt(2), ir.IRInt(1)}, sizes)

	_, ok := dst.Lookup(gids[1])
	assert.False(t, ok, "members of unmatched entities are not loaded")
}

func TestLoadWhereRejectsInvalidFilter(t *testing.T) {
	path := tempDB(t)
	seedProducts(t, path)

	s := openSQLite(t, path, testutil.NewShopStore(t))
	_, err := s.LoadWhere(context.Background(), queryir.Select{
		Type:   "product",
		Filter: queryir.IsNull{Field: "sizes"},
	})
	require.Error(t, err)

	var fe *queryir.Error
	assert.ErrorAs(t, err, &fe)
}

func TestLoadWhereUnknownType(t *testing.T) {
	s := openSQLite(t, tempDB(t), testutil.NewShopStore(t))
	_, err := s.LoadWhere(context.Background(), queryir.Select{Type: "nothing"})
	assert.Error(t, err)
}

func TestLoadTypeIsUnfiltered(t *testing.T) {
	ctx := context.Background()
	path := tempDB(t)
	seedProducts(t, path)

	s := openSQLite(t, path, testutil.NewShopStore(t))
	all, err := s.LoadType(ctx, "product")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
