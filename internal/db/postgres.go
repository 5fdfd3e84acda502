package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"cio-dashboard/internal/db/migrations"
	"cio-dashboard/internal/logger"
)

// PostgresDialer opens a PostgreSQL pool whose tables hold one JSONB
// document per row.
type PostgresDialer struct {
	DSN string
}

// PostgresDatabase is a connected PostgreSQL pool.
type PostgresDatabase struct {
	db *sql.DB
}

func (d *PostgresDialer) Dial(ctx context.Context) (Database, error) {
	db, err := OpenPostgres(ctx, d.DSN)
	if err != nil {
		return nil, &ConnectionError{Driver: DriverPostgres, Err: err}
	}
	return &PostgresDatabase{db: db}, nil
}

// OpenPostgres opens a connection pool and verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("connection string is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// RunMigrations applies the embedded schema. It opens its own connection
// because the migrate driver closes the pool it is given.
func RunMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return &ConnectionError{Driver: DriverPostgres, Err: err}
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("schema up to date")
	case err != nil:
		return fmt.Errorf("migration failed: %w", err)
	default:
		logger.Info("migrations applied")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		logger.Warn("schema is dirty, manual intervention required", zap.Uint("version", version))
	}
	return nil
}

func (p *PostgresDatabase) Driver() string { return DriverPostgres }

func (p *PostgresDatabase) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresDatabase) Close(context.Context) error { return p.db.Close() }

type pgCollection[T any] struct {
	db    *sql.DB
	table string
}

func (c *pgCollection[T]) FindAll(ctx context.Context, sortField string) ([]T, error) {
	q := fmt.Sprintf(`SELECT doc FROM %s ORDER BY (doc->>$1)::timestamptz DESC NULLS LAST, id DESC`, c.table)
	rows, err := c.db.QueryContext(ctx, q, sortField)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.table, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.table, err)
		}
		var doc T
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.table, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", c.table, err)
	}
	return out, nil
}

func (c *pgCollection[T]) scanOne(row *sql.Row, op string, id bson.ObjectID) (T, error) {
	var (
		doc T
		raw []byte
	)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, ErrNotFound
		}
		return doc, fmt.Errorf("%s %s %s: %w", op, c.table, id.Hex(), err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode %s %s: %w", c.table, id.Hex(), err)
	}
	return doc, nil
}

func (c *pgCollection[T]) FindByID(ctx context.Context, id bson.ObjectID) (T, error) {
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, c.table)
	return c.scanOne(c.db.QueryRowContext(ctx, q, id.Hex()), "find", id)
}

func (c *pgCollection[T]) Insert(ctx context.Context, id bson.ObjectID, doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.table, err)
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)`, c.table)
	if _, err := c.db.ExecContext(ctx, q, id.Hex(), raw); err != nil {
		return fmt.Errorf("insert %s: %w", c.table, err)
	}
	return nil
}

// UpdateByID merges set into the stored document. Keys must match the
// document's JSON field names.
func (c *pgCollection[T]) UpdateByID(ctx context.Context, id bson.ObjectID, set bson.D) error {
	patch := make(map[string]any, len(set))
	for _, e := range set {
		patch[e.Key] = e.Value
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode %s patch: %w", c.table, err)
	}

	q := fmt.Sprintf(`UPDATE %s SET doc = doc || $2::jsonb WHERE id = $1`, c.table)
	res, err := c.db.ExecContext(ctx, q, id.Hex(), raw)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", c.table, id.Hex(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %s: %w", c.table, id.Hex(), err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollection[T]) FindOneAndDelete(ctx context.Context, id bson.ObjectID) (T, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING doc`, c.table)
	return c.scanOne(c.db.QueryRowContext(ctx, q, id.Hex()), "delete", id)
}

func (c *pgCollection[T]) DeleteAll(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, c.table))
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", c.table, err)
	}
	return res.RowsAffected()
}
