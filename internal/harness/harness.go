package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"go.uber.org/zap"

	"github.com/roach88/dust/internal/codec"
	"github.com/roach88/dust/internal/compiler"
	"github.com/roach88/dust/internal/engine"
	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
	"github.com/roach88/dust/internal/store"
)

// TypeLoader reads the type declarations in one file.
type TypeLoader func(path string) ([]entity.TypeDecl, error)

// Option configures a run.
type Option func(*runner)

// WithLogger sets the logger handed to the entity store, the persistence
// store and the engine. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *runner) { r.logger = l }
}

// WithTypeLoader replaces LoadTypes for reading scenario type files.
func WithTypeLoader(fn TypeLoader) Option {
	return func(r *runner) { r.loadTypes = fn }
}

// LoadTypes reads a YAML or CUE declaration file.
func LoadTypes(path string) ([]entity.TypeDecl, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return compiler.LoadYAML(path)
	case ".cue":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		v := cuecontext.New().CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("build %s: %w", path, err)
		}
		return compiler.CompileTypes(v)
	default:
		return nil, fmt.Errorf("unsupported types file %s", path)
	}
}

// runner holds the state of one scenario run. Entity pointers never leave
// the engine goroutine; steps and assertions address entities through the
// global ids recorded in aliases.
type runner struct {
	logger    *zap.Logger
	loadTypes TypeLoader

	decls   []entity.TypeDecl
	dbPath  string
	seq     int64
	passes  int
	aliases map[string]entity.GlobalID
	notes   *notes

	entities *entity.Store
	store    *store.Store
	engine   *engine.Engine
	done     chan error
}

// Run executes a scenario and returns its result.
//
// Each run gets a fresh SQLite database in a temporary directory, removed
// when Run returns. Setup failures and infrastructure errors are returned
// as errors; failed expectations are reported in the result.
//
// Execution flow:
//  1. Load the type files and register them in a fresh entity store
//  2. Create the tables of every registered type
//  3. Execute setup steps, each of which must succeed
//  4. Execute flow steps, checking their expect clauses
//  5. Evaluate assertions and capture the final state of every alias
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		logger:    zap.NewNop(),
		loadTypes: LoadTypes,
		aliases:   make(map[string]entity.GlobalID),
		notes:     newNotes(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, path := range sc.Types {
		decls, err := r.loadTypes(path)
		if err != nil {
			return nil, fmt.Errorf("load types: %w", err)
		}
		r.decls = append(r.decls, decls...)
	}

	dir, err := os.MkdirTemp("", "dust-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	defer os.RemoveAll(dir)
	r.dbPath = filepath.Join(dir, "scenario.db")

	if err := r.open(ctx); err != nil {
		return nil, err
	}
	defer r.close()
	if _, err := r.store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	result := NewResult()
	for i, step := range sc.Setup {
		ev, _, err := r.step(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		if ev.Error != "" {
			return nil, fmt.Errorf("setup[%d] %s %s: %s", i, step.Op, ev.Path, ev.Error)
		}
		result.Trace = append(result.Trace, ev)
	}

	for i, step := range sc.Steps {
		ev, f, err := r.step(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, ev)
		for _, msg := range check(step, f, ev) {
			result.AddError(fmt.Sprintf("steps[%d] %s %s: %s", i, step.Op, ev.Path, msg))
		}
		r.logger.Debug("scenario step",
			zap.String("scenario", sc.Name),
			zap.Int("step", i),
			zap.String("op", step.Op),
			zap.String("path", ev.Path))
	}

	errs, err := r.evaluate(ctx, sc.Assertions)
	if err != nil {
		return nil, fmt.Errorf("assertions: %w", err)
	}
	for _, e := range errs {
		result.AddError(e.Error())
	}

	if result.State, err = r.snapshot(ctx); err != nil {
		return nil, fmt.Errorf("capture state: %w", err)
	}
	return result, nil
}

// open builds an entity store over the scenario database and starts an
// engine owning it.
func (r *runner) open(ctx context.Context) error {
	es := entity.NewStore(entity.WithNotifier(r.notes), entity.WithLogger(r.logger))
	if err := es.RegisterTypes(r.decls...); err != nil {
		es.Close()
		return fmt.Errorf("register types: %w", err)
	}
	st, err := store.Open(ctx, store.SQLite{}, r.dbPath, es,
		store.WithLogger(r.logger),
		store.WithPassIDs(r.nextPassID))
	if err != nil {
		es.Close()
		return err
	}

	r.entities, r.store = es, st
	r.engine = engine.New(es, st, engine.WithLogger(r.logger))
	r.done = make(chan error, 1)
	go func(e *engine.Engine, done chan<- error) {
		done <- e.Run(context.Background())
	}(r.engine, r.done)
	return nil
}

func (r *runner) close() {
	if r.engine == nil {
		return
	}
	r.engine.Stop()
	<-r.done
	r.store.Close()
	r.entities.Close()
	r.engine = nil
}

// reload discards the entity store, unsaved changes included, and loads
// everything back from the database. Loading does not count as a change.
func (r *runner) reload(ctx context.Context) error {
	r.close()
	r.notes.mute(true)
	defer r.notes.mute(false)
	if err := r.open(ctx); err != nil {
		return err
	}
	_, err := r.engine.Load(ctx)
	return err
}

// nextPassID names persistence passes in order. Called from the engine
// goroutine only.
func (r *runner) nextPassID() string {
	r.passes++
	return fmt.Sprintf("pass-%d", r.passes)
}

func (r *runner) tick() int64 {
	r.seq++
	return r.seq
}

// step executes one step. The returned error is an infrastructure failure;
// operation errors are recorded on the event. The field descriptor of the
// addressed field, if any, is returned for checking expectations.
func (r *runner) step(ctx context.Context, step Step) (TraceEvent, *entity.Field, error) {
	ev := TraceEvent{Seq: r.tick(), Op: step.Op}

	switch step.Op {
	case OpFlush:
		pass, err := r.engine.Flush(ctx)
		if err != nil {
			ev.Error = err.Error()
		} else {
			ev.Result = ir.IRString(pass.ID)
		}
		return ev, nil, nil
	case OpReload:
		return ev, nil, r.reload(ctx)
	}

	var f *entity.Field
	err := r.engine.Do(ctx, func(es *entity.Store) error {
		f = r.apply(es, step, &ev)
		return nil
	})
	return ev, f, err
}

var entityOps = map[string]entity.Op{
	OpSet:    entity.OpSet,
	OpAdd:    entity.OpAdd,
	OpGet:    entity.OpGet,
	OpPeek:   entity.OpPeek,
	OpVisit:  entity.OpVisit,
	OpChange: entity.OpChange,
	OpDel:    entity.OpDel,
	OpWalk:   entity.OpWalk,
}

// apply runs a create or access step on es and fills ev.
func (r *runner) apply(es *entity.Store, step Step, ev *TraceEvent) *entity.Field {
	if step.Op == OpCreate {
		e, err := es.GetEntity(entity.Create(step.Unit, step.Type))
		if err != nil {
			ev.Error = err.Error()
			return nil
		}
		r.aliases[step.As] = e.GlobalID()
		ev.Path = string(e.GlobalID())
		ev.Result = e.Ref()
		return nil
	}

	p, f, err := r.path(es, step.Entity, step.Scope, step.Field, step.Index, step.Key)
	if err != nil {
		ev.Error = err.Error()
		return nil
	}
	ev.Path = p.String()

	op := entityOps[step.Op]
	req := entity.Request{Op: op, Path: p}
	if step.Value != nil {
		v, err := operand(f, nested(step.Index, step.Key), step.Value)
		if err != nil {
			ev.Error = err.Error()
			return f
		}
		ev.Value, req.Value = v, v
	}
	switch op {
	case entity.OpVisit:
		req.Visit = func(_, _ ir.IRValue) error {
			ev.Visited++
			return nil
		}
	case entity.OpWalk:
		req.Walk = func(entity.Path, ir.IRValue) error {
			ev.Visited++
			return nil
		}
	}

	res, err := es.Access(req)
	if err != nil {
		ev.Error = err.Error()
		return f
	}
	ev.Result = res.Value
	if ev.Result == nil && res.Entity != nil && step.Field == "" {
		ev.Result = res.Entity.Ref()
	}
	if op == entity.OpSet || op == entity.OpAdd || op == entity.OpChange || op == entity.OpDel {
		changed := res.Changed
		ev.Changed = &changed
	}
	return f
}

// path builds the access path of an alias or scope and returns the
// descriptor of the named field when it is declared on the entity's type.
func (r *runner) path(es *entity.Store, alias, scope, field string, index *int, key string) (entity.Path, *entity.Field, error) {
	if scope != "" {
		unit, typeName, err := splitScope(scope)
		if err != nil {
			return nil, nil, err
		}
		return entity.Scope(unit, typeName), nil, nil
	}

	gid, ok := r.aliases[alias]
	if !ok {
		return nil, nil, fmt.Errorf("entity %q was not created", alias)
	}
	p := entity.At(gid)
	var f *entity.Field
	if field != "" {
		p = p.F(field)
		if unit, _, typeName, err := entity.ParseGlobalID(string(gid)); err == nil {
			f, _ = es.Field(entity.QualifiedName(unit, typeName, field))
		}
	}
	if index != nil {
		p = p.I(*index)
	}
	if key != "" {
		p = p.K(key)
	}
	return p, f, nil
}

func nested(index *int, key string) bool {
	return index != nil || key != ""
}

// operand converts a YAML value to the shape field f stores. Values below
// an index or key are single members; MAP contents are kept as decoded.
func operand(f *entity.Field, nested bool, raw any) (ir.IRValue, error) {
	v, err := ir.From(raw)
	if err != nil || f == nil {
		return v, err
	}
	if nested {
		if f.Cardinality == entity.CardMap {
			return v, nil
		}
		return entity.Coerce(f.Datatype, v), nil
	}
	return entity.CoerceField(f, v), nil
}

// check compares a step's outcome with its expect clause.
func check(step Step, f *entity.Field, ev TraceEvent) []string {
	x := step.Expect
	if x == nil || x.Error == "" {
		if ev.Error != "" {
			return []string{"unexpected error: " + ev.Error}
		}
	}
	if x == nil {
		return nil
	}
	if x.Error != "" {
		switch {
		case ev.Error == "":
			return []string{fmt.Sprintf("expected error containing %q, got none", x.Error)}
		case !strings.Contains(ev.Error, x.Error):
			return []string{fmt.Sprintf("expected error containing %q, got %q", x.Error, ev.Error)}
		}
		return nil
	}

	var msgs []string
	if x.Changed != nil && (ev.Changed == nil || *ev.Changed != *x.Changed) {
		msgs = append(msgs, fmt.Sprintf("expected changed=%t", *x.Changed))
	}
	if x.Found != nil && (ev.Result != nil) != *x.Found {
		msgs = append(msgs, fmt.Sprintf("expected found=%t, got %s", *x.Found, show(ev.Result)))
	}
	if x.Visited != nil && ev.Visited != *x.Visited {
		msgs = append(msgs, fmt.Sprintf("expected %d visited, got %d", *x.Visited, ev.Visited))
	}
	if x.Value != nil {
		want, err := operand(f, nested(step.Index, step.Key), x.Value)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("expected value: %v", err))
		} else if !ir.Equal(want, ev.Result) {
			msgs = append(msgs, fmt.Sprintf("expected value %s, got %s", show(want), show(ev.Result)))
		}
	}
	return msgs
}

// show renders v as canonical JSON for messages.
func show(v ir.IRValue) string {
	if v == nil {
		return "<unset>"
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// snapshot encodes the entity behind every alias, keyed by alias.
func (r *runner) snapshot(ctx context.Context) (ir.IRMap, error) {
	names := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	state := ir.IRMap{}
	err := r.engine.Do(ctx, func(es *entity.Store) error {
		c := codec.New(es)
		for _, name := range names {
			if e, ok := es.Lookup(r.aliases[name]); ok {
				state[name] = c.Encode(e)
			}
		}
		return nil
	})
	return state, err
}

// notes counts change notifications per entity.
type notes struct {
	mu     sync.Mutex
	muted  bool
	counts map[entity.GlobalID]int
}

func newNotes() *notes {
	return &notes{counts: make(map[entity.GlobalID]int)}
}

// Notify implements entity.Notifier.
func (n *notes) Notify(c entity.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.muted {
		return
	}
	for _, gid := range c.GlobalIDs {
		n.counts[gid]++
	}
}

func (n *notes) mute(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.muted = on
}

func (n *notes) count(gid entity.GlobalID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[gid]
}
