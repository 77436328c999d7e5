package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dust/internal/compiler"
	"github.com/roach88/dust/internal/engine"
	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/store"
)

// session is an entity store with the declared types registered, opened
// over the configured database.
type session struct {
	logger   *zap.Logger
	types    *LoadResult
	entities *entity.Store
	store    *store.Store
}

// openSession loads the declarations at typesPath, registers them and opens
// the database.
func openSession(ctx context.Context, opts *RootOptions, typesPath string) (*session, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, withCode(ErrCodeConfig, fmt.Errorf("load config: %w", err))
	}
	logger := opts.logger()

	entities, types, err := registerTypes(logger, typesPath)
	if err != nil {
		return nil, err
	}

	d, err := store.DialectFor(cfg.Dialect)
	if err != nil {
		entities.Close()
		return nil, withCode(ErrCodeConfig, err)
	}
	st, err := store.Open(ctx, d, cfg.DSN, entities, store.WithLogger(logger))
	if err != nil {
		entities.Close()
		return nil, withCode(ErrCodeDatabase, err)
	}
	logger.Debug("session opened",
		zap.String("dialect", d.Name()),
		zap.Int("types", len(types.Types)),
		zap.Strings("files", types.Files),
	)
	return &session{logger: logger, types: types, entities: entities, store: st}, nil
}

// registerTypes loads, validates and registers the declarations at path in a
// fresh entity store.
func registerTypes(logger *zap.Logger, path string) (*entity.Store, *LoadResult, error) {
	types, err := LoadTypes(path)
	if err != nil {
		return nil, nil, err
	}
	if errs := compiler.Validate(types.Types); len(errs) > 0 {
		return nil, nil, withCode(errs[0].Code, fmt.Errorf("invalid type declarations: %w", errs[0]))
	}
	entities := entity.NewStore(entity.WithLogger(logger))
	if err := entities.RegisterTypes(types.Types...); err != nil {
		entities.Close()
		return nil, nil, withCode(ErrCodeInvalidDeclaration, fmt.Errorf("register types: %w", err))
	}
	return entities, types, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close database", zap.Error(err))
	}
	s.entities.Close()
}

// startEngine runs an engine over the session until the returned stop
// function is called.
func (s *session) startEngine(ctx context.Context) (*engine.Engine, func()) {
	e := engine.New(s.entities, s.store, engine.WithLogger(s.logger))
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return e, func() {
		e.Stop()
		<-done
	}
}
