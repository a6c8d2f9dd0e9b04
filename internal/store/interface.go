package store

import "context"

// Driver opens connections to one kind of partition database.
type Driver interface {
	// Connect opens a connection to url, applying the driver-specific options.
	// An invalid or unreachable url fails immediately.
	Connect(ctx context.Context, url string, opts Options) (Conn, error)
}

// Conn is a live connection to one partition.
// Implementations must be safe for concurrent use.
type Conn interface {
	// Extension loads a named database extension.
	Extension(ctx context.Context, name string) error

	// CreateTable creates the table unless it already exists.
	// opts are passed through verbatim from the configuration.
	CreateTable(ctx context.Context, name string, columns []Column, opts Options) error

	// Table returns a handle on a table by name. It does not check existence.
	Table(name string) Table

	// Tables lists the tables present in the partition, sorted by name.
	Tables(ctx context.Context) ([]string, error)

	// NextRefKey atomically allocates the next ref_key for table.
	// The first call for a table returns 0 and values are never reused.
	NextRefKey(ctx context.Context, table string) (uint64, error)

	// Close closes the connection
	Close() error
}

// Table is a handle on one physical table.
type Table interface {
	Name() string

	// Insert appends one row.
	Insert(ctx context.Context, row Row) error

	// Where returns rows whose columns equal every predicate, ordered by ref_key.
	Where(ctx context.Context, preds Row) ([]Row, error)

	// Count returns the number of rows in the table.
	Count(ctx context.Context) (int64, error)
}
