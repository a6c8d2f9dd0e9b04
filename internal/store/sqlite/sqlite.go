package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/maloquacious/shameless/internal/store"
	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// Driver opens SQLite partitions using modernc.org/sqlite.
//
// Accepted urls are sqlite:<path>, sqlite://<path> and file:<path>.
// Connection options: max_connections (default 1), busy_timeout in ms.
// Temp tables live on a single connection, so they need max_connections 1.
type Driver struct{}

// Connect opens the database and checks that it is usable.
func (Driver) Connect(ctx context.Context, url string, opts store.Options) (store.Conn, error) {
	if unknown := opts.Unknown("max_connections", "busy_timeout"); len(unknown) > 0 {
		return nil, fmt.Errorf("sqlite: unsupported connection options %v", unknown)
	}
	path, err := Path(url)
	if err != nil {
		return nil, err
	}
	busy, ok, err := opts.Int("busy_timeout")
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if !ok {
		busy = defaultBusyTimeout
	}
	maxConns, ok, err := opts.Int("max_connections")
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if !ok || path == ":memory:" {
		// In-memory databases are per connection.
		maxConns = 1
	}

	db, err := sql.Open("sqlite", dsn(path, busy))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, refKeysSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create %s: %w", refKeysTable, err)
	}

	return &Conn{path: path, db: db}, nil
}

// Path extracts the database path from a partition url.
func Path(url string) (string, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		url = strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "sqlite:"):
		url = strings.TrimPrefix(url, "sqlite:")
	case strings.HasPrefix(url, "file:"):
		url = strings.TrimPrefix(url, "file:")
	default:
		return "", fmt.Errorf("sqlite: not a sqlite url: %q", url)
	}
	if url == "" {
		return "", fmt.Errorf("sqlite: empty database path")
	}
	return url, nil
}

func dsn(path string, busyTimeout int) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_time_format=sqlite", path, sep, busyTimeout)
}

// Conn is a live SQLite partition.
type Conn struct {
	path string
	db   *sql.DB
}

// Close closes the database connection.
func (c *Conn) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Extension applies a named pragma bundle.
func (c *Conn) Extension(ctx context.Context, name string) error {
	pragmas, ok := extensions[name]
	if !ok {
		return fmt.Errorf("sqlite: unknown extension %q", name)
	}
	for _, pragma := range pragmas {
		if _, err := c.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// CreateTable creates the table if it does not exist. The only supported
// option is temp.
func (c *Conn) CreateTable(ctx context.Context, name string, columns []store.Column, opts store.Options) error {
	if unknown := opts.Unknown("temp"); len(unknown) > 0 {
		return fmt.Errorf("sqlite: unsupported create table options %v", unknown)
	}
	temp, err := opts.Bool("temp")
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	stmt := createTableSQL(name, columns, temp)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

func createTableSQL(name string, columns []store.Column, temp bool) string {
	kind := "TABLE"
	if temp {
		kind = "TEMP TABLE"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s (%s)", kind, store.Quote(name), store.ColumnsSQL(columns, typeName))
}

func typeName(t store.ColumnType) string {
	switch t {
	case store.TypeInteger, store.TypeBoolean:
		return "INTEGER"
	case store.TypeFloat:
		return "REAL"
	case store.TypeBlob:
		return "BLOB"
	case store.TypeTime:
		return "TIMESTAMP"
	}
	return "TEXT"
}

// Tables lists regular and temporary tables.
func (c *Conn) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, listTables)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// NextRefKey allocates with a single UPSERT, which SQLite serializes.
func (c *Conn) NextRefKey(ctx context.Context, table string) (uint64, error) {
	var value int64
	if err := c.db.QueryRowContext(ctx, nextRefKey, table).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to allocate ref_key for %s: %w", table, err)
	}
	return uint64(value), nil
}

// Table returns a handle on name.
func (c *Conn) Table(name string) store.Table {
	return &Table{name: name, db: c.db}
}

// Table is a SQLite table handle.
type Table struct {
	name string
	db   *sql.DB
}

func (t *Table) Name() string { return t.name }

func (t *Table) Insert(ctx context.Context, row store.Row) error {
	stmt, args := store.InsertSQL(t.name, row, store.QuestionMark)
	if _, err := t.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}
	return nil
}

func (t *Table) Where(ctx context.Context, preds store.Row) ([]store.Row, error) {
	stmt, args := store.SelectSQL(t.name, preds, store.QuestionMark)
	rows, err := t.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", t.name, err)
	}
	var out []store.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", t.name, err)
		}
		row := make(store.Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", t.name, err)
	}
	return out, nil
}

func (t *Table) Count(ctx context.Context) (int64, error) {
	var n int64
	stmt := "SELECT COUNT(*) FROM " + store.Quote(t.name)
	if err := t.db.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.name, err)
	}
	return n, nil
}
