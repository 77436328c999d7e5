package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
	"github.com/roach88/dust/internal/queryir"
	"github.com/roach88/dust/internal/store"
	"github.com/roach88/dust/internal/testutil"
)

func setupTestStore(t *testing.T, es *entity.Store, path string) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.SQLite{}, path, es)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Migrate(context.Background())
	require.NoError(t, err)
	return s
}

// startEngine runs e until the test ends and returns a channel carrying Run's
// result.
func startEngine(t *testing.T, e *Engine) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return done
}

func TestEngine_DoRunsOnStore(t *testing.T) {
	es := testutil.NewShopStore(t)
	e := New(es, nil, WithIDs(NewFixedGenerator("req-1", "req-2")))
	startEngine(t, e)
	ctx := context.Background()

	var gid entity.GlobalID
	err := e.Do(ctx, func(s *entity.Store) error {
		p, err := s.GetEntity(entity.Create(testutil.ShopUnit, "product"))
		if err != nil {
			return err
		}
		gid = p.GlobalID()
		_, err = s.Set(p.Path().F("name"), ir.IRString("lamp"))
		return err
	})
	require.NoError(t, err)

	var name ir.IRValue
	err = e.Do(ctx, func(s *entity.Store) error {
		p, ok := s.Lookup(gid)
		if !ok {
			return errors.New("entity not found")
		}
		var err error
		name, err = s.Get(p.Path().F("name"), nil)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("lamp"), name)
}

func TestEngine_DoReturnsFunctionError(t *testing.T) {
	e := New(testutil.NewShopStore(t), nil)
	startEngine(t, e)

	boom := errors.New("boom")
	err := e.Do(context.Background(), func(*entity.Store) error { return boom })
	assert.ErrorIs(t, err, boom)

	// A failed request does not stop the loop.
	err = e.Do(context.Background(), func(*entity.Store) error { return nil })
	assert.NoError(t, err)
}

func TestEngine_FlushAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dust.db")

	es := testutil.NewShopStore(t)
	e := New(es, setupTestStore(t, es, path))
	startEngine(t, e)

	var pending int
	require.NoError(t, e.Do(ctx, func(s *entity.Store) error {
		p, err := s.GetEntity(entity.Create(testutil.ShopUnit, "product"))
		if err != nil {
			return err
		}
		if _, err := s.Add(p.Path().F("sizes"), ir.IRInt(42)); err != nil {
			return err
		}
		pending = len(s.Pending())
		return nil
	}))

	res, err := e.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending, res.Inserted)
	assert.NotEmpty(t, res.ID)

	res, err = e.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted+res.Updated+res.Skipped, "nothing left to persist")

	dst := testutil.NewShopStore(t)
	loader := New(dst, setupTestStore(t, dst, path))
	startEngine(t, loader)

	n, err := loader.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending, n)

	var sizes ir.IRValue
	require.NoError(t, loader.Do(ctx, func(s *entity.Store) error {
		var err error
		sizes, err = s.Get(entity.Locate(testutil.ShopUnit, 14, "product").F("sizes"), nil)
		return err
	}))
	assert.Equal(t, ir.IRList{ir.IRInt(42)}, sizes)
}

func TestEngine_NoStore(t *testing.T) {
	e := New(testutil.NewShopStore(t), nil)
	startEngine(t, e)

	_, err := e.Flush(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = e.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = e.Query(context.Background(), queryir.Select{Type: "product"})
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestEngine_Query(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dust.db")

	es := testutil.NewShopStore(t)
	e := New(es, setupTestStore(t, es, path))
	startEngine(t, e)

	var cheap entity.GlobalID
	require.NoError(t, e.Do(ctx, func(s *entity.Store) error {
		for _, price := range []float64{4, 40} {
			p, err := s.GetEntity(entity.Create(testutil.ShopUnit, "product"))
			if err != nil {
				return err
			}
			if _, err := s.Set(p.Path().F("price"), ir.IRFloat(price)); err != nil {
				return err
			}
			if price < 10 {
				cheap = p.GlobalID()
			}
		}
		return nil
	}))
	_, err := e.Flush(ctx)
	require.NoError(t, err)

	dst := testutil.NewShopStore(t)
	loader := New(dst, setupTestStore(t, dst, path))
	startEngine(t, loader)

	gids, err := loader.Query(ctx, queryir.Select{
		Type:   "product",
		Filter: queryir.Compare{Field: "price", Op: queryir.OpLt, Value: ir.IRFloat(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, []entity.GlobalID{cheap}, gids)

	_, err = loader.Query(ctx, queryir.Select{Type: "product", Filter: queryir.IsNull{Field: "tags"}})
	assert.ErrorContains(t, err, "query: load product")
}

func TestEngine_Stop(t *testing.T) {
	e := New(testutil.NewShopStore(t), nil)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	require.NoError(t, e.Do(context.Background(), func(*entity.Store) error { return nil }))
	e.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	err := e.Do(context.Background(), func(*entity.Store) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngine_ContextCancelRejectsQueued(t *testing.T) {
	e := New(testutil.NewShopStore(t), nil)

	// Queue a request before Run starts so it is pending at cancellation.
	result := make(chan error, 1)
	go func() {
		result <- e.Do(context.Background(), func(*entity.Store) error { return nil })
	}()
	require.Eventually(t, func() bool { return e.queue.Len() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("queued request was not rejected")
	}
}

func TestEngine_CancelledCallerIsNotExecuted(t *testing.T) {
	e := New(testutil.NewShopStore(t), nil)
	startEngine(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := e.Do(ctx, func(*entity.Store) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	// Wait for the loop to dequeue the cancelled request.
	require.NoError(t, e.Do(context.Background(), func(*entity.Store) error { return nil }))
	assert.False(t, ran)
}

func TestEngine_SerialisesConcurrentCallers(t *testing.T) {
	e := New(testutil.NewShopStore(t), nil)
	startEngine(t, e)
	ctx := context.Background()

	var gid entity.GlobalID
	require.NoError(t, e.Do(ctx, func(s *entity.Store) error {
		p, err := s.GetEntity(entity.Create(testutil.ShopUnit, "product"))
		if err != nil {
			return err
		}
		gid = p.GlobalID()
		return nil
	}))

	const callers = 20
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.Do(ctx, func(s *entity.Store) error {
				p, _ := s.Lookup(gid)
				_, err := s.Change(p.Path().F("stock"), ir.IRInt(1))
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var stock ir.IRValue
	require.NoError(t, e.Do(ctx, func(s *entity.Store) error {
		p, _ := s.Lookup(gid)
		var err error
		stock, err = s.Get(p.Path().F("stock"), nil)
		return err
	}))
	assert.Equal(t, ir.IRInt(callers), stock)
}
