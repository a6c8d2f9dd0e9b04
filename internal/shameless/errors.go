package shameless

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned by New and Attach for an invalid topology or
	// model declaration. It is never returned by Put or Where.
	ErrConfiguration = errors.New("shameless: configuration error")

	// ErrConnection is returned when a partition cannot be connected.
	ErrConnection = errors.New("shameless: connection error")

	// ErrRouting is returned when a record or query cannot be routed to exactly one shard.
	ErrRouting = errors.New("shameless: routing error")

	// ErrStorage is returned when the database rejects a table creation, read or write.
	ErrStorage = errors.New("shameless: storage error")
)

// OpError records which operation failed, where.
type OpError struct {
	Op        string // "connect", "extension", "create table", "put", "where", ...
	Partition int
	Table     string // empty for partition-level operations
	Kind      error  // one of the sentinel errors above
	Err       error
}

func (e *OpError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%v: %s on partition %d: %v", e.Kind, e.Op, e.Partition, e.Err)
	}
	return fmt.Sprintf("%v: %s %s on partition %d: %v", e.Kind, e.Op, e.Table, e.Partition, e.Err)
}

// Unwrap exposes both the sentinel kind and the underlying driver error.
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

func routingErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrRouting}, args...)...)
}
