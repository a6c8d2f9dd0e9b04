package shameless

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/maloquacious/shameless/internal/store"
)

// ErrNotFound is returned by Result.First when nothing matches.
var ErrNotFound = errors.New("shameless: record not found")

// Result is a routed query. It holds no rows: every read runs the query again,
// so a Result can be read any number of times and sees new writes.
type Result struct {
	model     *Model
	index     *Index
	shard     int
	partition int
	table     string
	preds     store.Row
}

// Index returns the name of the index the query was routed by.
func (r *Result) Index() string { return r.index.name }

// Shard returns the shard the query targets.
func (r *Result) Shard() int { return r.shard }

// Partition returns the partition the query targets.
func (r *Result) Partition() int { return r.partition }

// Table returns the physical table the query reads.
func (r *Result) Table() string { return r.table }

// All returns every matching record in ref_key order.
func (r *Result) All(ctx context.Context) ([]*Record, error) {
	var out []*Record
	for rec, err := range r.Records(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// First returns the matching record with the lowest ref_key.
func (r *Result) First(ctx context.Context) (*Record, error) {
	for rec, err := range r.Records(ctx) {
		return rec, err
	}
	return nil, ErrNotFound
}

// Count returns the number of matching rows.
func (r *Result) Count(ctx context.Context) (int, error) {
	rows, err := r.rows(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Each calls fn for every matching record, stopping at the first error.
func (r *Result) Each(ctx context.Context, fn func(*Record) error) error {
	for rec, err := range r.Records(ctx) {
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Records iterates the matching records. Hits on a secondary index are
// completed from the main table of the shard recorded with the index row.
func (r *Result) Records(ctx context.Context) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		rows, err := r.rows(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, row := range rows {
			rec, err := r.record(ctx, row)
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

func (r *Result) rows(ctx context.Context) ([]store.Row, error) {
	p := r.model.store.partitions[r.partition]
	conn, err := p.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Table(r.table).Where(ctx, r.preds)
	if err != nil {
		return nil, &OpError{Op: "where", Partition: r.partition, Table: r.table, Kind: ErrStorage, Err: err}
	}
	return rows, nil
}

func (r *Result) record(ctx context.Context, row store.Row) (*Record, error) {
	m := r.model
	if r.index == m.primary {
		rec, err := m.recordFromMain(row)
		if err != nil {
			return nil, &OpError{Op: "decode", Partition: r.partition, Table: r.table, Kind: ErrStorage, Err: err}
		}
		return rec, nil
	}

	n, err := decodeInt(row[colShard])
	if err != nil {
		return nil, &OpError{Op: "decode", Partition: r.partition, Table: r.table, Kind: ErrStorage, Err: fmt.Errorf("shard: %w", err)}
	}
	mainShard := int(n)
	p := m.store.partitions[m.store.partitionOf(mainShard)]
	table := m.MainTable(mainShard)
	conn, err := p.Conn(ctx)
	if err != nil {
		return nil, err
	}
	mains, err := conn.Table(table).Where(ctx, store.Row{colUUID: row[colUUID]})
	if err != nil {
		return nil, &OpError{Op: "where", Partition: p.index, Table: table, Kind: ErrStorage, Err: err}
	}
	if len(mains) == 0 {
		// No main row: return what the index row carries.
		rec, err := m.recordFromIndex(r.index, row)
		if err != nil {
			return nil, &OpError{Op: "decode", Partition: r.partition, Table: r.table, Kind: ErrStorage, Err: err}
		}
		return rec, nil
	}
	rec, err := m.recordFromMain(mains[0])
	if err != nil {
		return nil, &OpError{Op: "decode", Partition: p.index, Table: table, Kind: ErrStorage, Err: err}
	}
	return rec, nil
}
