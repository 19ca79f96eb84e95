// Package bunstore implements store.ReferenceExtendedStore over SQL databases
// through github.com/uptrace/bun. Items are persisted as encoded payloads in
// store_items and reference associations in store_item_refs, both scoped by
// namespace so several stores can share the tables.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-store-cache/store"
	"github.com/goliatone/go-store-cache/store/codec"
)

// Store persists items of type T in a SQL database.
type Store[T store.Identifiable] struct {
	db         bun.IDB
	namespace  string
	codec      codec.Codec
	handler    store.ErrorHandler
	logger     *slog.Logger
	failOnDup  bool
	expiration store.ExpirationFunc
	validator  store.ValidatorFunc
	noRefs     bool
	now        func() time.Time
}

var _ store.ReferenceExtendedStore[store.Identifiable] = (*Store[store.Identifiable])(nil)

// Option configures a Store.
type Option func(*settings)

type settings struct {
	namespace  string
	codec      codec.Codec
	handler    store.ErrorHandler
	logger     *slog.Logger
	failOnDup  bool
	expiration store.ExpirationFunc
	validator  store.ValidatorFunc
	noRefs     bool
}

// WithNamespace scopes every row to namespace. Default: "default".
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		if namespace != "" {
			s.namespace = namespace
		}
	}
}

// WithCodec sets the payload codec. Default: codec.Msgpack.
func WithCodec(c codec.Codec) Option {
	return func(s *settings) {
		if c != nil {
			s.codec = c
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

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFailOnCreateIfExists controls whether Create on an existing id fails
// with a constraint violation (true, the default) or replaces the item.
func WithFailOnCreateIfExists(fail bool) Option {
	return func(s *settings) { s.failOnDup = fail }
}

// WithExpiration sets the per item time to live applied on every write.
// Expired rows are invisible to reads and are replaced by a later Create.
func WithExpiration(fn store.ExpirationFunc) Option {
	return func(s *settings) { s.expiration = fn }
}

// WithValidator filters decoded items. Items failing fn are logged and
// treated as absent.
func WithValidator(fn store.ValidatorFunc) Option {
	return func(s *settings) { s.validator = fn }
}

// WithReferencesDisabled turns the reference index off. CreateWithRefs
// stores the item alone and GetByRefID fails with a capability error.
func WithReferencesDisabled() Option {
	return func(s *settings) { s.noRefs = true }
}

// New returns a Store over db. Call EnsureSchema once before use.
func New[T store.Identifiable](db bun.IDB, opts ...Option) *Store[T] {
	s := settings{
		namespace: "default",
		codec:     codec.Msgpack{},
		handler:   store.DefaultErrorHandler{},
		logger:    slog.Default(),
		failOnDup: true,
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &Store[T]{
		db:         db,
		namespace:  s.namespace,
		codec:      s.codec,
		handler:    s.handler,
		logger:     s.logger.With("store", "bun", "namespace", s.namespace),
		failOnDup:  s.failOnDup,
		expiration: s.expiration,
		validator:  s.validator,
		noRefs:     s.noRefs,
		now:        time.Now,
	}
}

func (s *Store[T]) Create(ctx context.Context, item T) error {
	if s.expiration == nil {
		return s.create(ctx, s.db, item)
	}

	var createErr error
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		createErr = s.create(ctx, tx, item)
		return createErr
	})
	if createErr != nil {
		return createErr
	}
	if err != nil {
		return s.handler.OnWriteError("create", item.GetID(), err)
	}
	return nil
}

func (s *Store[T]) create(ctx context.Context, db bun.IDB, item T) error {
	id := item.GetID()
	row, err := s.encode(item)
	if err != nil {
		return s.handler.OnWriteError("create", id, err)
	}

	if s.expiration != nil {
		if err := s.purgeExpired(ctx, db, id); err != nil {
			return s.handler.OnWriteError("create", id, err)
		}
	}

	q := db.NewInsert().Model(row)
	if s.failOnDup {
		q = q.Ignore()
	} else {
		q = q.On("CONFLICT (namespace, id) DO UPDATE").
			Set("data = EXCLUDED.data").
			Set("updated_at = EXCLUDED.updated_at").
			Set("expires_at = EXCLUDED.expires_at")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return s.handler.OnWriteError("create", id, err)
	}
	if s.failOnDup && affected(res) == 0 {
		return store.NewConstraintViolation("item already created", id)
	}
	return nil
}

func (s *Store[T]) Update(ctx context.Context, item T) error {
	id := item.GetID()
	row, err := s.encode(item)
	if err != nil {
		return s.handler.OnWriteError("update", id, err)
	}

	res, err := s.db.NewUpdate().
		Model(row).
		Column("data", "updated_at", "expires_at").
		WherePK().
		Where("(expires_at IS NULL OR expires_at > ?)", row.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return s.handler.OnWriteError("update", id, err)
	}
	if affected(res) == 0 {
		return store.NewConstraintViolation("update cannot be done on unknown item", id)
	}
	return nil
}

// Delete removes the item and its reference associations. An expired item
// counts as missing.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	var missing bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.purgeExpired(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.NewDelete().
			Model((*itemRow)(nil)).
			Where("namespace = ?", s.namespace).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected(res) == 0 {
			missing = true
			return nil
		}
		_, err = tx.NewDelete().
			Model((*refRow)(nil)).
			Where("namespace = ?", s.namespace).
			Where("item_id = ?", id).
			Exec(ctx)
		return err
	})
	if err != nil {
		return s.handler.OnWriteError("delete", id, err)
	}
	if missing {
		return s.handler.OnDeleteMissing(id)
	}
	return nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	row := new(itemRow)
	err := s.db.NewSelect().
		Model(row).
		Where("i.namespace = ?", s.namespace).
		Where("i.id = ?", id).
		Apply(s.live).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, s.handler.OnNotFound(id)
	}
	if err != nil {
		return zero, false, s.handler.OnReadError("get", id, err)
	}

	item, ok, err := s.decode(row)
	if err != nil || !ok {
		return zero, false, err
	}
	return item, true, nil
}

func (s *Store[T]) GetMany(ctx context.Context, ids []string) (map[string]T, error) {
	ids = store.Dedupe(ids)
	out := make(map[string]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []itemRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("i.namespace = ?", s.namespace).
		Where("i.id IN (?)", bun.In(ids)).
		Apply(s.live).
		Scan(ctx)
	if err != nil {
		return nil, s.handler.OnReadError("get_many", "", err)
	}

	for i := range rows {
		item, ok, err := s.decode(&rows[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out[rows[i].ID] = item
		}
	}
	return out, nil
}

// List returns every item of the namespace ordered by id.
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	var rows []itemRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("i.namespace = ?", s.namespace).
		Apply(s.live).
		Order("i.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, s.handler.OnReadError("list", "", err)
	}
	return s.decodeAll(rows)
}

// CreateWithRefs inserts the item and its associations in one transaction.
// With references disabled the ref ids are ignored.
func (s *Store[T]) CreateWithRefs(ctx context.Context, item T, refIDs []string) error {
	if s.noRefs {
		return s.Create(ctx, item)
	}
	id := item.GetID()
	refIDs = store.Dedupe(refIDs)

	var createErr error
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if createErr = s.create(ctx, tx, item); createErr != nil {
			return createErr
		}
		if len(refIDs) == 0 {
			return nil
		}

		refs := make([]refRow, 0, len(refIDs))
		for _, refID := range refIDs {
			refs = append(refs, refRow{Namespace: s.namespace, RefID: refID, ItemID: id})
		}
		_, err := tx.NewInsert().Model(&refs).Ignore().Exec(ctx)
		return err
	})
	if createErr != nil {
		return createErr
	}
	if err != nil {
		return s.handler.OnWriteError("create_with_refs", id, err)
	}
	return nil
}

// GetByRefID returns the items associated with refID, ordered by id.
func (s *Store[T]) GetByRefID(ctx context.Context, refID string) ([]T, error) {
	if s.noRefs {
		return nil, store.NewCapabilityUnsupported("get_by_ref_id")
	}
	var rows []itemRow
	err := s.db.NewSelect().
		Model(&rows).
		Join("JOIN store_item_refs AS r").
		JoinOn("r.namespace = i.namespace").
		JoinOn("r.item_id = i.id").
		Where("r.namespace = ?", s.namespace).
		Where("r.ref_id = ?", refID).
		Apply(s.live).
		Order("i.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, s.handler.OnReadError("get_by_ref_id", refID, err)
	}
	return s.decodeAll(rows)
}

func (s *Store[T]) encode(item T) (*itemRow, error) {
	data, err := s.codec.Marshal(item)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	row := &itemRow{
		Namespace: s.namespace,
		ID:        item.GetID(),
		Data:      data,
		UpdatedAt: now,
	}
	if ttl := s.expiration.TTL(item); ttl > 0 {
		row.ExpiresAt = now.Add(ttl)
	}
	return row, nil
}

// live hides expired rows.
func (s *Store[T]) live(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Where("(i.expires_at IS NULL OR i.expires_at > ?)", s.now().UTC())
}

// purgeExpired removes id and its associations when the row has expired.
func (s *Store[T]) purgeExpired(ctx context.Context, db bun.IDB, id string) error {
	res, err := db.NewDelete().
		Model((*itemRow)(nil)).
		Where("namespace = ?", s.namespace).
		Where("id = ?", id).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Exec(ctx)
	if err != nil || affected(res) == 0 {
		return err
	}
	_, err = db.NewDelete().
		Model((*refRow)(nil)).
		Where("namespace = ?", s.namespace).
		Where("item_id = ?", id).
		Exec(ctx)
	return err
}

// decode reports ok=false when the error handler turned a decode failure
// into absence.
func (s *Store[T]) decode(row *itemRow) (T, bool, error) {
	var item T
	if err := s.codec.Unmarshal(row.Data, &item); err != nil {
		var zero T
		if herr := s.handler.OnDecodeError(row.ID, err); herr != nil {
			return zero, false, herr
		}
		s.logger.Debug("skipping undecodable row", "id", row.ID)
		return zero, false, nil
	}
	if !s.validator.Valid(item) {
		s.logger.Warn("invalid item found", "id", row.ID)
		var zero T
		return zero, false, nil
	}
	return item, true, nil
}

func (s *Store[T]) decodeAll(rows []itemRow) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i := range rows {
		item, ok, err := s.decode(&rows[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}
