package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/queryir"
	"github.com/roach88/dust/internal/store"
)

// ErrStopped is returned for requests submitted to, or still queued in, a
// stopped engine.
var ErrStopped = errors.New("engine stopped")

// ErrNoStore is returned by Flush, Load and Query on an engine built without a
// persistence store.
var ErrNoStore = errors.New("engine has no persistence store")

// Engine owns one entity store and serialises every access to it.
//
// Thread-safety model:
//   - Do, Flush, Load, Query and Stop: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// All entity mutation and every persistence pass happen in the Run goroutine,
// in the order requests were submitted.
type Engine struct {
	entities *entity.Store
	store    *store.Store
	queue    *requestQueue
	ids      IDGenerator
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDs sets the generator for request ids. Defaults to UUIDv7Generator.
func WithIDs(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an Engine owning es. st may be nil for an in-memory engine;
// when set it must have been opened over es.
func New(es *entity.Store, st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		entities: es,
		store:    st,
		queue:    newRequestQueue(),
		ids:      UUIDv7Generator{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs fn against the entity store on the Run goroutine and returns its
// error. fn must not retain entity pointers after it returns.
func (e *Engine) Do(ctx context.Context, fn func(*entity.Store) error) error {
	resp, err := e.submit(ctx, request{Type: RequestAccess, Fn: fn})
	if err != nil {
		return err
	}
	return resp.err
}

// Flush runs a persistence pass over every pending entity.
func (e *Engine) Flush(ctx context.Context) (store.PassResult, error) {
	resp, err := e.submit(ctx, request{Type: RequestFlush})
	if err != nil {
		return store.PassResult{}, err
	}
	return resp.pass, resp.err
}

// Load loads stored entities of the given units (all units when none are
// named) and returns how many entities were loaded.
func (e *Engine) Load(ctx context.Context, units ...string) (int, error) {
	resp, err := e.submit(ctx, request{Type: RequestLoad, Units: units})
	if err != nil {
		return 0, err
	}
	return resp.loaded, resp.err
}

// Query loads the stored entities of q.Type that match q.Filter, after the
// unit, type and field entities, and returns their global ids in storage
// order.
func (e *Engine) Query(ctx context.Context, q queryir.Select) ([]entity.GlobalID, error) {
	resp, err := e.submit(ctx, request{Type: RequestQuery, Query: q})
	if err != nil {
		return nil, err
	}
	return resp.gids, resp.err
}

// submit enqueues r and waits for its response or ctx cancellation.
func (e *Engine) submit(ctx context.Context, r request) (response, error) {
	r.ctx = ctx
	r.ID = e.ids.Generate()
	r.reply = make(chan response, 1)
	if _, ok := e.queue.Enqueue(r); !ok {
		return response{}, ErrStopped
	}
	select {
	case resp := <-r.reply:
		return resp, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// Run processes requests until ctx is cancelled or Stop is called.
//
// A failing request is reported to its caller and logged; processing
// continues with the next request. Requests still queued when Run returns
// fail with ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	defer e.rejectQueued()

	for {
		r, ok := e.queue.TryDequeue()
		if ok {
			e.process(r)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the request queue. Run returns once queued requests are done.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) rejectQueued() {
	for _, r := range e.queue.Drain() {
		r.reply <- response{err: ErrStopped}
	}
}

// process handles one request. Called only from the Run goroutine.
func (e *Engine) process(r request) {
	log := e.logger.With(
		zap.String("request_id", r.ID),
		zap.Int64("seq", r.Seq),
		zap.Stringer("type", r.Type),
	)
	log.Debug("processing request")

	var resp response
	if err := r.ctx.Err(); err != nil {
		resp.err = err
	} else {
		resp = e.handle(r)
	}
	if resp.err != nil {
		log.Warn("request failed", zap.Error(resp.err))
	}
	r.reply <- resp
}

func (e *Engine) handle(r request) response {
	switch r.Type {
	case RequestAccess:
		if r.Fn == nil {
			return response{err: errors.New("access request missing function")}
		}
		return response{err: r.Fn(e.entities)}

	case RequestFlush:
		if e.store == nil {
			return response{err: ErrNoStore}
		}
		pass, err := e.store.PersistPending(r.ctx)
		if err != nil {
			return response{pass: pass, err: fmt.Errorf("flush: %w", err)}
		}
		return response{pass: pass}

	case RequestLoad:
		if e.store == nil {
			return response{err: ErrNoStore}
		}
		loaded, err := e.store.LoadAll(r.ctx, r.Units...)
		if err != nil {
			return response{err: fmt.Errorf("load: %w", err)}
		}
		return response{loaded: len(loaded)}

	case RequestQuery:
		if e.store == nil {
			return response{err: ErrNoStore}
		}
		if _, err := e.store.LoadUnits(r.ctx); err != nil {
			return response{err: fmt.Errorf("query: %w", err)}
		}
		loaded, err := e.store.LoadWhere(r.ctx, r.Query)
		if err != nil {
			return response{err: fmt.Errorf("query: %w", err)}
		}
		gids := make([]entity.GlobalID, len(loaded))
		for i, ent := range loaded {
			gids[i] = ent.GlobalID()
		}
		return response{loaded: len(loaded), gids: gids}

	default:
		return response{err: fmt.Errorf("unknown request type: %d", r.Type)}
	}
}
