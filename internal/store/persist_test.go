package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
	"github.com/roach88/dust/internal/store"
	"github.com/roach88/dust/internal/testutil"
)

// openSQLite opens the database at path for es and creates missing tables.
func openSQLite(t *testing.T, path string, es *entity.Store, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.SQLite{}, path, es, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Migrate(context.Background())
	require.NoError(t, err)
	return s
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "dust.db")
}

func countRows(t *testing.T, s *store.Store, table string, gid entity.GlobalID) int {
	t.Helper()
	var n int
	err := s.DB().QueryRow(`SELECT COUNT(*) FROM "`+table+`" WHERE "_global_id" = ?`, string(gid)).Scan(&n)
	require.NoError(t, err)
	return n
}

func set(t *testing.T, es *entity.Store, p entity.Path, v ir.IRValue) {
	t.Helper()
	_, err := es.Set(p, v)
	require.NoError(t, err)
}

func TestRelationalRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := tempDB(t)

	src := testutil.NewShopStore(t)
	p, err := src.GetEntity(entity.Create(testutil.ShopUnit, "product"))
	require.NoError(t, err)
	cat, err := src.GetEntity(entity.Create(testutil.ShopUnit, "category"))
	require.NoError(t, err)

	set(t, src, p.Path().F("name"), ir.IRString("lamp"))
	set(t, src, p.Path().F("price"), ir.IRFloat(12.5))
	set(t, src, p.Path().F("stock"), ir.IRInt(3))
	set(t, src, p.Path().F("active"), ir.IRBool(true))
	set(t, src, p.Path().F("photo"), ir.IRBytes{0x00, 0xff, 0x10})
	set(t, src, p.Path().F("attrs"), ir.IRMap{"color": ir.IRString("red"), "dims": ir.IRList{ir.IRInt(1), ir.IRInt(2)}})
	set(t, src, p.Path().F("category"), cat.Ref())
	set(t, src, p.Path().F("tags"), ir.IRSet{ir.IRString("c"), ir.IRString("a"), ir.IRString("b")})
	set(t, src, p.Path().F("sizes"), ir.IRList{ir.IRInt(10), ir.IRInt(20), ir.IRInt(30)})
	set(t, src, cat.Path().F("products"), p.Ref())

	w := openSQLite(t, path, src)
	pending := len(src.Pending())
	res, err := w.PersistPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending, res.Inserted)
	assert.Empty(t, src.Pending())
	require.NoError(t, w.Close())

	dst := testutil.NewShopStore(t)
	r := openSQLite(t, path, dst)
	_, err = r.LoadAll(ctx)
	require.NoError(t, err)

	got, ok := dst.Lookup(p.GlobalID())
	require.True(t, ok)
	assert.Equal(t, entity.Saved, got.State())

	for _, field := range []string{"name", "price", "stock", "active", "photo", "attrs", "category", "tags"} {
		want, err := src.Get(p.Path().F(field), nil)
		require.NoError(t, err)
		have, err := dst.Get(got.Path().F(field), nil)
		require.NoError(t, err)
		assert.True(t, ir.Equal(want, have), "%s: want %v, have %v", field, want, have)
	}

	sizes, err := dst.Get(got.Path().F("sizes"), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRList{ir.IRInt(10), ir.IRInt(20), ir.IRInt(30)}, sizes)

	products, err := dst.Get(entity.At(cat.GlobalID()).F("products"), nil)
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRSet{p.Ref()}, products))
}

func TestReloadDoesNotDuplicateListMembers(t *testing.T) {
	ctx := context.Background()
	path := tempDB(t)

	src := testutil.NewShopStore(t)
	p, err := src.GetEntity(entity.Create(testutil.ShopUnit, "product"))
	require.NoError(t, err)
	set(t, src, p.Path().F("sizes"), ir.IRList{ir.IRInt(1), ir.IRInt(1), ir.IRInt(2)})

	s := openSQLite(t, path, src)
	_, err = s.PersistPending(ctx)
	require.NoError(t, err)

	for range 2 {
		_, err = s.LoadAll(ctx)
		require.NoError(t, err)
	}

	sizes, err := src.Get(p.Path().F("sizes"), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRList{ir.IRInt(1), ir.IRInt(1), ir.IRInt(2)}, sizes)
	assert.Equal(t, entity.Saved, p.State())
}

func TestUpdateReplacesAuxiliaryRows(t *testing.T) {
	ctx := context.Background()
	es := testutil.NewShopStore(t)
	s := openSQLite(t, tempDB(t), es)

	p, err := es.GetEntity(entity.Create(testutil.ShopUnit, "product"))
	require.NoError(t, err)
	set(t, es, p.Path().F("name"), ir.IRString("lamp"))
	set(t, es, p.Path().F("sizes"), ir.IRList{ir.IRInt(1), ir.IRInt(2), ir.IRInt(3)})
	_, err = s.PersistPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, countRows(t, s, "shop_product_sizes", p.GlobalID()))

	set(t, es, p.Path().F("name"), ir.IRString("desk"))
	set(t, es, p.Path().F("sizes"), ir.IRList{ir.IRInt(1), ir.IRInt(2)})
	require.Equal(t, entity.Dirty, p.State())

	res, err := s.Persist(ctx, []*entity.Entity{p})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, entity.Saved, p.State())
	assert.Equal(t, 2, countRows(t, s, "shop_product_sizes", p.GlobalID()))

	var name string
	require.NoError(t, s.DB().QueryRow(`SELECT "_name" FROM "shop_product" WHERE "_global_id" = ?`, string(p.GlobalID())).Scan(&name))
	assert.Equal(t, "desk", name)
}

func TestPersistSkipsDeletedEntities(t *testing.T) {
	ctx := context.Background()
	es := testutil.NewShopStore(t)
	s := openSQLite(t, tempDB(t), es)

	p, err := es.GetEntity(entity.Create(testutil.ShopUnit, "product"))
	require.NoError(t, err)
	_, err = s.PersistPending(ctx)
	require.NoError(t, err)

	_, err = es.Del(p.Path())
	require.NoError(t, err)
	require.Equal(t, entity.Deleted, p.State())

	res, err := s.PersistPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.PassResult{ID: res.ID, Skipped: 1}, res)
	assert.Equal(t, 1, countRows(t, s, "shop_product", p.GlobalID()))
	assert.Equal(t, entity.Deleted, p.State())
}

func TestDeleteLeavesAuxiliaryRows(t *testing.T) {
	ctx := context.Background()
	es := testutil.NewShopStore(t)
	s := openSQLite(t, tempDB(t), es)

	p, err := es.GetEntity(entity.Create(testutil.ShopUnit, "product"))
	require.NoError(t, err)
	set(t, es, p.Path().F("tags"), ir.IRSet{ir.IRString("a"), ir.IRString("b")})
	_, err = s.PersistPending(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, s.DB(), p))
	assert.Equal(t, 0, countRows(t, s, "shop_product", p.GlobalID()))
	assert.Equal(t, 2, countRows(t, s, "shop_product_tags", p.GlobalID()))
}

func TestLoadRestoresUnitCounters(t *testing.T) {
	ctx := context.Background()
	path := tempDB(t)

	src := testutil.NewShopStore(t)
	for range 3 {
		_, err := src.GetEntity(entity.Create(testutil.ShopUnit, "product"))
		require.NoError(t, err)
	}
	w := openSQLite(t, path, src)
	_, err := w.PersistPending(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	dst := testutil.NewShopStore(t)
	r := openSQLite(t, path, dst)
	loaded, err := r.LoadAll(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, loaded)

	next, err := dst.GetEntity(entity.Create(testutil.ShopUnit, "product"))
	require.NoError(t, err)
	assert.Equal(t, int64(17), next.ID())
}

func TestPersistSkipsUnpersistedTypes(t *testing.T) {
	ctx := context.Background()
	es := testutil.NewShopStore(t)
	require.NoError(t, es.RegisterTypes(entity.TypeDecl{Unit: testutil.ShopUnit, Name: "_draft", Fields: []entity.FieldDecl{
		{Name: "note", Datatype: entity.DatatypeString},
	}}))
	s := openSQLite(t, tempDB(t), es)

	d, err := es.GetEntity(entity.Create(testutil.ShopUnit, "_draft"))
	require.NoError(t, err)

	res, err := s.Persist(ctx, []*entity.Entity{d})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, entity.Uncommitted, d.State())

	exists, err := store.SQLite{}.TableExists(ctx, s.DB(), "shop__draft")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPassIDsAreInjectable(t *testing.T) {
	es := testutil.NewShopStore(t)
	s := openSQLite(t, tempDB(t), es, store.WithPassIDs(func() string { return "pass-1" }))

	res, err := s.PersistPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pass-1", res.ID)
}

func TestGenerateSchemaSkipsExistingTables(t *testing.T) {
	ctx := context.Background()
	es := testutil.NewShopStore(t)
	s, err := store.Open(ctx, store.SQLite{}, tempDB(t), es)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ddl, err := s.GenerateSchema(ctx, testutil.ShopUnit)
	require.NoError(t, err)
	assert.Len(t, ddl, 10)

	applied, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, ddl, applied)

	ddl, err = s.GenerateSchema(ctx)
	require.NoError(t, err)
	assert.Empty(t, ddl)
}

func TestPersistReportsStatementErrors(t *testing.T) {
	ctx := context.Background()
	es := testutil.NewShopStore(t)
	s, err := store.Open(ctx, store.SQLite{}, tempDB(t), es)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.PersistPending(ctx)
	require.Error(t, err)

	var se *store.StatementError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.SQL, "INSERT INTO")
}

// docStore registers a type whose json fields are not MAP fields.
func docStore(t *testing.T) *entity.Store {
	t.Helper()
	es := entity.NewStore()
	t.Cleanup(es.Close)
	require.NoError(t, es.RegisterTypes(entity.TypeDecl{Unit: "cfg", Name: "doc", Fields: []entity.FieldDecl{
		{Name: "body", Datatype: entity.DatatypeJSON},
		{Name: "note", Datatype: entity.DatatypeJSON},
		{Name: "history", Datatype: entity.DatatypeJSON, Cardinality: entity.CardList},
	}}))
	return es
}

func TestJSONFieldRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := tempDB(t)

	body := ir.IRMap{"a": ir.IRInt(1), "tags": ir.IRList{ir.IRString("x")}}
	history := ir.IRList{
		ir.IRMap{"v": ir.IRInt(1)},
		ir.IRList{ir.IRInt(1), ir.IRInt(2)},
		ir.IRString("plain"),
	}

	src := docStore(t)
	d, err := src.GetEntity(entity.Create("cfg", "doc"))
	require.NoError(t, err)
	set(t, src, d.Path().F("body"), body)
	set(t, src, d.Path().F("note"), ir.IRString("hello"))
	set(t, src, d.Path().F("history"), history)

	w := openSQLite(t, path, src)
	_, err = w.PersistPending(ctx)
	require.NoError(t, err)

	var raw string
	require.NoError(t, w.DB().QueryRow(`SELECT "_body" FROM "cfg_doc"`).Scan(&raw))
	assert.Equal(t, `{"a":1,"tags":["x"]}`, raw)
	assert.Equal(t, 3, countRows(t, w, "cfg_doc_history", d.GlobalID()))
	require.NoError(t, w.Close())

	dst := docStore(t)
	r := openSQLite(t, path, dst)
	_, err = r.LoadAll(ctx)
	require.NoError(t, err)

	got, ok := dst.Lookup(d.GlobalID())
	require.True(t, ok)
	for field, want := range map[string]ir.IRValue{"body": body, "note": ir.IRString("hello"), "history": history} {
		have, err := dst.Get(got.Path().F(field), nil)
		require.NoError(t, err)
		assert.True(t, ir.Equal(want, have), "%s: want %v, have %v", field, want, have)
	}
}
