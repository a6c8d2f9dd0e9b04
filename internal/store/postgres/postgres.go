// Package postgres implements partition connections on PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maloquacious/shameless/internal/store"
)

// Driver opens PostgreSQL partitions.
//
// Connection options: max_connections, min_connections, application_name.
type Driver struct{}

// Connect creates a pool for url and pings it.
func (Driver) Connect(ctx context.Context, url string, opts store.Options) (store.Conn, error) {
	cfg, err := poolConfig(url, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Conn{pool: pool}, nil
}

func poolConfig(url string, opts store.Options) (*pgxpool.Config, error) {
	if unknown := opts.Unknown("max_connections", "min_connections", "application_name"); len(unknown) > 0 {
		return nil, fmt.Errorf("postgres: unsupported connection options %v", unknown)
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid url: %w", err)
	}
	if n, ok, err := opts.Int("max_connections"); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	} else if ok {
		cfg.MaxConns = int32(n)
	}
	if n, ok, err := opts.Int("min_connections"); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	} else if ok {
		cfg.MinConns = int32(n)
	}
	name, err := opts.String("application_name")
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if name != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = name
	}
	return cfg, nil
}

// Conn is a pooled PostgreSQL partition.
type Conn struct {
	pool *pgxpool.Pool
}

func (c *Conn) Close() error {
	c.pool.Close()
	return nil
}

// Extension runs CREATE EXTENSION IF NOT EXISTS.
func (c *Conn) Extension(ctx context.Context, name string) error {
	if _, err := c.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS "+store.Quote(name)); err != nil {
		return fmt.Errorf("failed to load extension %s: %w", name, err)
	}
	return nil
}

// CreateTable supports the temp and unlogged options. Temp tables are only
// visible to the pool connection that created them, so temp needs
// max_connections 1.
func (c *Conn) CreateTable(ctx context.Context, name string, columns []store.Column, opts store.Options) error {
	stmt, err := createTableSQL(name, columns, opts)
	if err != nil {
		return err
	}
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

func createTableSQL(name string, columns []store.Column, opts store.Options) (string, error) {
	if unknown := opts.Unknown("temp", "unlogged"); len(unknown) > 0 {
		return "", fmt.Errorf("postgres: unsupported create table options %v", unknown)
	}
	temp, err := opts.Bool("temp")
	if err != nil {
		return "", fmt.Errorf("postgres: %w", err)
	}
	unlogged, err := opts.Bool("unlogged")
	if err != nil {
		return "", fmt.Errorf("postgres: %w", err)
	}
	kind := "TABLE"
	switch {
	case temp && unlogged:
		return "", fmt.Errorf("postgres: temp and unlogged are exclusive")
	case temp:
		kind = "TEMP TABLE"
	case unlogged:
		kind = "UNLOGGED TABLE"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s (%s)", kind, store.Quote(name), store.ColumnsSQL(columns, typeName)), nil
}

func typeName(t store.ColumnType) string {
	switch t {
	case store.TypeInteger:
		return "BIGINT"
	case store.TypeFloat:
		return "DOUBLE PRECISION"
	case store.TypeBoolean:
		return "BOOLEAN"
	case store.TypeBlob:
		return "BYTEA"
	case store.TypeTime:
		return "TIMESTAMPTZ"
	}
	return "TEXT"
}

// Tables lists the tables visible on the search path.
func (c *Conn) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = ANY (current_schemas(true)) AND table_type IN ('BASE TABLE', 'LOCAL TEMPORARY')
	ORDER BY table_name;
	`)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning table names: %w", err)
	}
	return names, nil
}

// sequenceName is the ref_key sequence backing table.
func sequenceName(table string) string {
	return table + store.RefKeySuffix
}

// NextRefKey draws from a per-table sequence starting at 0.
func (c *Conn) NextRefKey(ctx context.Context, table string) (uint64, error) {
	seq := store.Quote(sequenceName(table))
	if _, err := c.pool.Exec(ctx, "CREATE SEQUENCE IF NOT EXISTS "+seq+" MINVALUE 0 START 0"); err != nil {
		return 0, fmt.Errorf("failed to create sequence for %s: %w", table, err)
	}
	var value int64
	if err := c.pool.QueryRow(ctx, "SELECT nextval($1::regclass)", seq).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to allocate ref_key for %s: %w", table, err)
	}
	return uint64(value), nil
}

func (c *Conn) Table(name string) store.Table {
	return &Table{name: name, pool: c.pool}
}

// Table is a PostgreSQL table handle.
type Table struct {
	name string
	pool *pgxpool.Pool
}

func (t *Table) Name() string { return t.name }

func (t *Table) Insert(ctx context.Context, row store.Row) error {
	stmt, args := store.InsertSQL(t.name, row, store.Dollar)
	if _, err := t.pool.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}
	return nil
}

func (t *Table) Where(ctx context.Context, preds store.Row) ([]store.Row, error) {
	stmt, args := store.SelectSQL(t.name, preds, store.Dollar)
	rows, err := t.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows of %s: %w", t.name, err)
	}
	out := make([]store.Row, len(maps))
	for i, m := range maps {
		out[i] = store.Row(m)
	}
	return out, nil
}

func (t *Table) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+store.Quote(t.name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.name, err)
	}
	return n, nil
}

