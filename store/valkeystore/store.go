// Package valkeystore implements store.ReferenceExtendedStore on Valkey or
// Redis. Items are stored as encoded strings under <ns>::item::<id> and each
// reference id owns a set of item ids under <ns>::ref::<refID>.
package valkeystore

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/valkey-io/valkey-go"

	"github.com/goliatone/go-store-cache/internal/keys"
	"github.com/goliatone/go-store-cache/store"
	"github.com/goliatone/go-store-cache/store/codec"
)

const scanCount = 100

// KEYS[1] is the item key, KEYS[2..n] the ref sets.
// ARGV[1] payload, ARGV[2] item id, ARGV[3] "1" to fail on an existing item,
// ARGV[4] time to live in milliseconds, "0" for none.
var createWithRefsScript = valkey.NewLuaScript(`
local args = {'SET', KEYS[1], ARGV[1]}
if ARGV[3] == "1" then
  table.insert(args, 'NX')
end
if ARGV[4] ~= "0" then
  table.insert(args, 'PX')
  table.insert(args, ARGV[4])
end
if not redis.call(unpack(args)) then
  return 0
end
for i = 2, #KEYS do
  redis.call('SADD', KEYS[i], ARGV[2])
end
return 1
`)

// Store persists items of type T in Valkey.
type Store[T store.Identifiable] struct {
	client     valkey.Client
	keys       keys.Builder
	codec      codec.Codec
	handler    store.ErrorHandler
	logger     *slog.Logger
	failOnDup  bool
	expiration store.ExpirationFunc
	validator  store.ValidatorFunc
	noRefs     bool
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

// WithNamespace prefixes every key with namespace.
func WithNamespace(namespace string) Option {
	return func(s *settings) { s.namespace = namespace }
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
// (true, the default) or replaces the item.
func WithFailOnCreateIfExists(fail bool) Option {
	return func(s *settings) { s.failOnDup = fail }
}

// WithExpiration sets the per item time to live applied on every write.
// Expiry is delegated to the server.
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

// New returns a Store using client. The caller owns the client.
func New[T store.Identifiable](client valkey.Client, opts ...Option) *Store[T] {
	s := settings{
		codec:     codec.Msgpack{},
		handler:   store.DefaultErrorHandler{},
		logger:    slog.Default(),
		failOnDup: true,
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &Store[T]{
		client:     client,
		keys:       keys.New(s.namespace),
		codec:      s.codec,
		handler:    s.handler,
		logger:     s.logger.With("store", "valkey", "namespace", s.namespace),
		failOnDup:  s.failOnDup,
		expiration: s.expiration,
		validator:  s.validator,
		noRefs:     s.noRefs,
	}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string) (valkey.Client, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "valkeystore: create client").
			WithMetadata(map[string]any{"addr": addr})
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "valkeystore: ping failed").
			WithMetadata(map[string]any{"addr": addr})
	}
	return client, nil
}

func (s *Store[T]) Create(ctx context.Context, item T) error {
	id := item.GetID()
	data, err := s.codec.Marshal(item)
	if err != nil {
		return s.handler.OnWriteError("create", id, err)
	}

	if !s.failOnDup {
		cmd := s.set(s.keys.Item(id), data, s.expiration.TTL(item), setAlways)
		return s.write("create", id, s.client.Do(ctx, cmd).Error())
	}

	cmd := s.set(s.keys.Item(id), data, s.expiration.TTL(item), setIfAbsent)
	err = s.client.Do(ctx, cmd).Error()
	if valkey.IsValkeyNil(err) {
		return store.NewConstraintViolation("item already created", id)
	}
	return s.write("create", id, err)
}

func (s *Store[T]) Update(ctx context.Context, item T) error {
	id := item.GetID()
	data, err := s.codec.Marshal(item)
	if err != nil {
		return s.handler.OnWriteError("update", id, err)
	}

	cmd := s.set(s.keys.Item(id), data, s.expiration.TTL(item), setIfPresent)
	err = s.client.Do(ctx, cmd).Error()
	if valkey.IsValkeyNil(err) {
		return store.NewConstraintViolation("update cannot be done on unknown item", id)
	}
	return s.write("update", id, err)
}

// Delete removes the item. Reference sets keep the id; lookups skip ids
// that no longer resolve.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(s.keys.Item(id)).Build()).AsInt64()
	if err != nil {
		return s.handler.OnWriteError("delete", id, err)
	}
	if n == 0 {
		return s.handler.OnDeleteMissing(id)
	}
	return nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.keys.Item(id)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return zero, false, s.handler.OnNotFound(id)
	}
	if err != nil {
		return zero, false, s.handler.OnReadError("get", id, err)
	}
	return s.decode(id, data)
}

func (s *Store[T]) GetMany(ctx context.Context, ids []string) (map[string]T, error) {
	ids = store.Dedupe(ids)
	items, err := s.mget(ctx, "get_many", ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(items))
	for _, item := range items {
		out[item.GetID()] = item
	}
	return out, nil
}

// List scans every item key of the namespace. Items are returned ordered by
// id.
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	var ids []string
	var cursor uint64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cmd := s.client.B().Scan().Cursor(cursor).Match(s.keys.ItemPattern()).Count(scanCount).Build()
		scan, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, s.handler.OnReadError("list", "", err)
		}
		for _, key := range scan.Elements {
			if id, ok := s.keys.ItemID(key); ok {
				ids = append(ids, id)
			}
		}

		cursor = scan.Cursor
		if cursor == 0 {
			break
		}
	}

	slices.Sort(ids)
	return s.mget(ctx, "list", slices.Compact(ids))
}

// CreateWithRefs writes the item and its associations atomically. With
// references disabled the ref ids are ignored.
func (s *Store[T]) CreateWithRefs(ctx context.Context, item T, refIDs []string) error {
	if s.noRefs {
		return s.Create(ctx, item)
	}
	id := item.GetID()
	data, err := s.codec.Marshal(item)
	if err != nil {
		return s.handler.OnWriteError("create_with_refs", id, err)
	}

	refIDs = store.Dedupe(refIDs)
	scriptKeys := make([]string, 0, len(refIDs)+1)
	scriptKeys = append(scriptKeys, s.keys.Item(id))
	for _, refID := range refIDs {
		scriptKeys = append(scriptKeys, s.keys.Ref(refID))
	}

	failFlag := "0"
	if s.failOnDup {
		failFlag = "1"
	}

	ttl := strconv.FormatInt(s.expiration.TTL(item).Milliseconds(), 10)
	created, err := createWithRefsScript.Exec(ctx, s.client, scriptKeys, []string{string(data), id, failFlag, ttl}).AsInt64()
	if err != nil {
		return s.handler.OnWriteError("create_with_refs", id, err)
	}
	if created == 0 {
		return store.NewConstraintViolation("item already created", id)
	}
	return nil
}

// GetByRefID returns the items associated with refID, ordered by id.
func (s *Store[T]) GetByRefID(ctx context.Context, refID string) ([]T, error) {
	if s.noRefs {
		return nil, store.NewCapabilityUnsupported("get_by_ref_id")
	}
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.keys.Ref(refID)).Build()).AsStrSlice()
	if err != nil {
		return nil, s.handler.OnReadError("get_by_ref_id", refID, err)
	}

	slices.Sort(ids)
	return s.mget(ctx, "get_by_ref_id", ids)
}

// mget resolves ids in order, skipping the ones that do not exist.
func (s *Store[T]) mget(ctx context.Context, op string, ids []string) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}

	itemKeys := make([]string, len(ids))
	for i, id := range ids {
		itemKeys[i] = s.keys.Item(id)
	}

	values, err := s.client.Do(ctx, s.client.B().Mget().Key(itemKeys...).Build()).ToArray()
	if err != nil {
		return nil, s.handler.OnReadError(op, "", err)
	}

	out := make([]T, 0, len(values))
	for i, v := range values {
		data, err := v.ToString()
		if valkey.IsValkeyNil(err) {
			if herr := s.handler.OnNotFound(ids[i]); herr != nil {
				return nil, herr
			}
			continue
		}
		if err != nil {
			return nil, s.handler.OnReadError(op, ids[i], err)
		}

		item, ok, err := s.decode(ids[i], data)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store[T]) decode(id, data string) (T, bool, error) {
	var item T
	if err := s.codec.Unmarshal([]byte(data), &item); err != nil {
		var zero T
		if herr := s.handler.OnDecodeError(id, err); herr != nil {
			return zero, false, herr
		}
		s.logger.Debug("skipping undecodable value", "id", id)
		return zero, false, nil
	}
	if !s.validator.Valid(item) {
		s.logger.Warn("invalid item found", "id", id)
		var zero T
		return zero, false, nil
	}
	return item, true, nil
}

type setCondition int

const (
	setAlways setCondition = iota
	setIfAbsent
	setIfPresent
)

// set builds SET key data with the write condition and an optional PX.
func (s *Store[T]) set(key string, data []byte, ttl time.Duration, cond setCondition) valkey.Completed {
	value := s.client.B().Set().Key(key).Value(string(data))
	ms := ttl.Milliseconds()

	switch cond {
	case setIfAbsent:
		if ms > 0 {
			return value.Nx().PxMilliseconds(ms).Build()
		}
		return value.Nx().Build()
	case setIfPresent:
		if ms > 0 {
			return value.Xx().PxMilliseconds(ms).Build()
		}
		return value.Xx().Build()
	default:
		if ms > 0 {
			return value.PxMilliseconds(ms).Build()
		}
		return value.Build()
	}
}

func (s *Store[T]) write(op, id string, err error) error {
	if err != nil {
		return s.handler.OnWriteError(op, id, err)
	}
	return nil
}
