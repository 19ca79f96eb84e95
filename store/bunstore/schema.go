package bunstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type itemRow struct {
	bun.BaseModel `bun:"table:store_items,alias:i"`

	Namespace string    `bun:"namespace,pk"`
	ID        string    `bun:"id,pk"`
	Data      []byte    `bun:"data,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,nullzero"`
}

type refRow struct {
	bun.BaseModel `bun:"table:store_item_refs,alias:r"`

	Namespace string `bun:"namespace,pk"`
	RefID     string `bun:"ref_id,pk"`
	ItemID    string `bun:"item_id,pk"`
}

// Open connects to driver at dsn and wraps the connection in a bun.DB with
// the matching dialect. In-memory sqlite databases are pinned to a single
// connection so every query sees the same database.
func Open(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverSQLite, "sqlite":
		sqldb, err := sql.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "bunstore: open sqlite")
		}
		if strings.Contains(dsn, ":memory:") {
			sqldb.SetMaxOpenConns(1)
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres, "pg":
		sqldb, err := sql.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "bunstore: open postgres")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, goerrors.New("bunstore: unsupported driver", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"driver": driver})
	}
}

// EnsureSchema creates the item and reference tables and the reference lookup
// index when they do not exist.
func EnsureSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().Model((*itemRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return schemaError(err, "create table", "store_items")
	}
	if _, err := db.NewCreateTable().Model((*refRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return schemaError(err, "create table", "store_item_refs")
	}
	_, err := db.NewCreateIndex().
		Model((*refRow)(nil)).
		Index("store_item_refs_item_idx").
		Column("namespace", "item_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return schemaError(err, "create index", "store_item_refs_item_idx")
	}
	return nil
}

func schemaError(err error, op, object string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "bunstore: "+op+" "+object).
		WithMetadata(map[string]any{"op": op, "object": object})
}
