// Package repostore exposes a go-repository-bun repository as a store.Store,
// so existing bun models can sit behind the caching decorators.
package repostore

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-store-cache/store"
)

// Store adapts a repository.Repository[T] to store.Store[T].
type Store[T store.Identifiable] struct {
	repo     repository.Repository[T]
	idColumn string
	handler  store.ErrorHandler
}

var _ store.Store[store.Identifiable] = (*Store[store.Identifiable])(nil)

// Option configures a Store.
type Option func(*settings)

type settings struct {
	idColumn string
	handler  store.ErrorHandler
}

// WithIDColumn sets the column GetMany filters on. Default: "id".
func WithIDColumn(column string) Option {
	return func(s *settings) {
		if column != "" {
			s.idColumn = column
		}
	}
}

// WithErrorHandler sets the policy applied to read and write outcomes.
func WithErrorHandler(h store.ErrorHandler) Option {
	return func(s *settings) {
		if h != nil {
			s.handler = h
		}
	}
}

// New wraps repo.
func New[T store.Identifiable](repo repository.Repository[T], opts ...Option) *Store[T] {
	s := settings{idColumn: "id", handler: store.DefaultErrorHandler{}}
	for _, opt := range opts {
		opt(&s)
	}
	return &Store[T]{repo: repo, idColumn: s.idColumn, handler: s.handler}
}

// Create fails with a constraint violation when a record with the same id
// exists.
func (s *Store[T]) Create(ctx context.Context, item T) error {
	id := item.GetID()
	_, found, err := s.find(ctx, id)
	if err != nil {
		return s.handler.OnReadError("create", id, err)
	}
	if found {
		return store.NewConstraintViolation("item already created", id)
	}

	if _, err := s.repo.Create(ctx, item); err != nil {
		return s.handler.OnWriteError("create", id, err)
	}
	return nil
}

func (s *Store[T]) Update(ctx context.Context, item T) error {
	id := item.GetID()
	_, found, err := s.find(ctx, id)
	if err != nil {
		return s.handler.OnReadError("update", id, err)
	}
	if !found {
		return store.NewConstraintViolation("update cannot be done on unknown item", id)
	}

	if _, err := s.repo.Update(ctx, item); err != nil {
		return s.handler.OnWriteError("update", id, err)
	}
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	record, found, err := s.find(ctx, id)
	if err != nil {
		return s.handler.OnReadError("delete", id, err)
	}
	if !found {
		return s.handler.OnDeleteMissing(id)
	}

	if err := s.repo.Delete(ctx, record); err != nil {
		return s.handler.OnWriteError("delete", id, err)
	}
	return nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, bool, error) {
	record, found, err := s.find(ctx, id)
	if err != nil {
		var zero T
		return zero, false, s.handler.OnReadError("get", id, err)
	}
	if !found {
		var zero T
		return zero, false, s.handler.OnNotFound(id)
	}
	return record, true, nil
}

func (s *Store[T]) GetMany(ctx context.Context, ids []string) (map[string]T, error) {
	ids = store.Dedupe(ids)
	out := make(map[string]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	records, _, err := s.repo.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? IN (?)", bun.Ident(s.idColumn), bun.In(ids))
	})
	if err != nil {
		return nil, s.handler.OnReadError("get_many", "", err)
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	for _, record := range records {
		if _, ok := wanted[record.GetID()]; ok {
			out[record.GetID()] = record
		}
	}
	return out, nil
}

func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	records, _, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.handler.OnReadError("list", "", err)
	}
	return records, nil
}

func (s *Store[T]) find(ctx context.Context, id string) (T, bool, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		var zero T
		if isNotFound(err) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return record, true, nil
}

func isNotFound(err error) bool {
	return goerrors.IsNotFound(err) || errors.Is(err, sql.ErrNoRows)
}
