package shameless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maloquacious/shameless/internal/shard"
	"github.com/maloquacious/shameless/internal/store"
)

// ErrInvalidRecord is returned by Put when a field value does not match its
// declared type or the body cannot be serialized.
var ErrInvalidRecord = errors.New("shameless: invalid record")

// Model is a record type attached to a Store. It is immutable.
type Model struct {
	store     *Store
	name      string
	primary   *Index
	secondary []*Index
}

// Name returns the model's base name as used in table names.
func (m *Model) Name() string { return m.name }

// Primary returns the primary index.
func (m *Model) Primary() *Index { return m.primary }

// Indexes returns the primary index followed by the secondary indexes in
// declaration order.
func (m *Model) Indexes() []*Index {
	return append([]*Index{m.primary}, m.secondary...)
}

// Index returns an index by name.
func (m *Model) Index(name string) (*Index, bool) {
	for _, ix := range m.Indexes() {
		if ix.name == name {
			return ix, true
		}
	}
	return nil, false
}

// MainTable returns the name of the main table for shard.
func (m *Model) MainTable(n int) string {
	return shard.TableName{Prefix: m.store.name, Base: m.name, Shard: n}.String()
}

// IndexTable returns the name of ix's table for shard.
func (m *Model) IndexTable(ix *Index, n int) string {
	return shard.TableName{Prefix: m.store.name, Base: m.name, Index: ix.name, Shard: n}.String()
}

// stems returns every table stem the model owns.
func (m *Model) stems() []string {
	stems := []string{m.name}
	for _, ix := range m.Indexes() {
		stems = append(stems, shard.TableName{Base: m.name, Index: ix.name}.Stem())
	}
	return stems
}

func (m *Model) mainColumns() []store.Column {
	createdAt := store.TypeTime
	if m.store.cfg.LegacyCreatedAtIsBigint {
		createdAt = store.TypeInteger
	}
	cols := []store.Column{
		{Name: colUUID, Type: store.TypeString, NotNull: true, Unique: true},
		{Name: colRefKey, Type: store.TypeInteger, NotNull: true, Unique: true},
		{Name: colCreatedAt, Type: createdAt, NotNull: true},
	}
	for _, f := range m.primary.fields {
		cols = append(cols, store.Column{Name: f.Name, Type: f.Type.column()})
	}
	return append(cols, store.Column{Name: colBody, Type: store.TypeBlob})
}

func (m *Model) indexColumns(ix *Index) []store.Column {
	cols := []store.Column{
		{Name: colUUID, Type: store.TypeString, NotNull: true, Unique: true},
		{Name: colRefKey, Type: store.TypeInteger, NotNull: true},
	}
	if ix != m.primary {
		cols = append(cols, store.Column{Name: colShard, Type: store.TypeInteger, NotNull: true})
	}
	for _, f := range ix.fields {
		cols = append(cols, store.Column{Name: f.Name, Type: f.Type.column()})
	}
	return cols
}

// Route locates the shard, partition and table an index key belongs to.
type Route struct {
	Index     string
	Shard     int
	Partition int
	Table     string
}

// Route returns where records with the given primary shard key live.
func (m *Model) Route(value any) (Route, error) {
	return m.RouteIndex(PrimaryIndex, value)
}

// RouteIndex returns where rows of the named index with the given shard key
// live. For the primary index the main table is returned.
func (m *Model) RouteIndex(name string, value any) (Route, error) {
	ix, ok := m.Index(name)
	if !ok {
		return Route{}, routingErrorf("model %s has no index %q", m.name, name)
	}
	f, _ := ix.field(ix.shardOn)
	v, err := coerce(f.Type, value)
	if err != nil {
		return Route{}, routingErrorf("shard key %s: %v", ix.shardOn, err)
	}
	n, err := m.store.shardFor(v)
	if err != nil {
		return Route{}, routingErrorf("shard key %s: %v", ix.shardOn, err)
	}
	r := Route{Index: ix.name, Shard: n, Partition: m.store.partitionOf(n)}
	if ix == m.primary {
		r.Table = m.MainTable(n)
	} else {
		r.Table = m.IndexTable(ix, n)
	}
	return r, nil
}

// split validates fields against every index and separates the main-table
// columns from the body.
func (m *Model) split(fields map[string]any) (values map[string]any, body map[string]any, err error) {
	values = make(map[string]any)
	for _, ix := range m.Indexes() {
		for _, f := range ix.fields {
			if _, done := values[f.Name]; done {
				continue
			}
			v, err := coerce(f.Type, fields[f.Name])
			if err != nil {
				return nil, nil, fmt.Errorf("%w: field %s: %v", ErrInvalidRecord, f.Name, err)
			}
			values[f.Name] = v
		}
	}
	body = make(map[string]any)
	for k, v := range fields {
		if reserved[k] {
			return nil, nil, fmt.Errorf("%w: field name %q is reserved", ErrInvalidRecord, k)
		}
		if _, ok := m.primary.field(k); ok {
			continue
		}
		if cv, ok := values[k]; ok {
			v = cv
		}
		body[k] = v
	}
	return values, body, nil
}

// write is one row headed for one table.
type write struct {
	shard int
	table string
	row   store.Row
}

// Put stores a new record: one row in the main table of its shard, and one row
// in the table of every index. It returns the record with its generated uuid
// and ref_key. Nothing is rolled back if a later write fails.
func (m *Model) Put(ctx context.Context, fields map[string]any) (*Record, error) {
	values, body, err := m.split(fields)
	if err != nil {
		return nil, err
	}

	// Route everything before touching any partition.
	mainShard, err := m.shardOf(m.primary, values)
	if err != nil {
		return nil, err
	}
	secondary := make([]int, len(m.secondary))
	for i, ix := range m.secondary {
		if secondary[i], err = m.shardOf(ix, values); err != nil {
			return nil, err
		}
	}

	data, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrInvalidRecord, err)
	}
	if body, err = decodeBody(data); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrInvalidRecord, err)
	}

	main := m.store.partitions[m.store.partitionOf(mainShard)]
	conn, err := main.Conn(ctx)
	if err != nil {
		return nil, err
	}
	mainTable := m.MainTable(mainShard)
	ref, err := conn.NextRefKey(ctx, mainTable)
	if err != nil {
		return nil, &OpError{Op: "allocate ref_key", Partition: main.index, Table: mainTable, Kind: ErrStorage, Err: err}
	}

	rec := &Record{
		UUID:      uuid.New(),
		RefKey:    ref,
		CreatedAt: m.createdAt(time.Now()),
		Fields:    make(map[string]any, len(m.primary.fields)),
		Body:      body,
	}
	for _, f := range m.primary.fields {
		rec.Fields[f.Name] = values[f.Name]
	}

	mainRow := m.baseRow(rec, m.primary, values)
	mainRow[colCreatedAt] = m.createdAtValue(rec.CreatedAt)
	mainRow[colBody] = data
	writes := []write{
		{shard: mainShard, table: mainTable, row: mainRow},
		{shard: mainShard, table: m.IndexTable(m.primary, mainShard), row: m.baseRow(rec, m.primary, values)},
	}
	for i, ix := range m.secondary {
		row := m.baseRow(rec, ix, values)
		row[colShard] = int64(mainShard)
		writes = append(writes, write{shard: secondary[i], table: m.IndexTable(ix, secondary[i]), row: row})
	}

	for _, w := range writes {
		p := m.store.partitions[m.store.partitionOf(w.shard)]
		conn, err := p.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err := conn.Table(w.table).Insert(ctx, w.row); err != nil {
			return nil, &OpError{Op: "put", Partition: p.index, Table: w.table, Kind: ErrStorage, Err: err}
		}
	}
	m.store.log.Debug("put %s uuid=%s ref_key=%d shard=%d", m.name, rec.UUID, rec.RefKey, mainShard)
	return rec, nil
}

func (m *Model) baseRow(rec *Record, ix *Index, values map[string]any) store.Row {
	row := store.Row{
		colUUID:   rec.UUID.String(),
		colRefKey: int64(rec.RefKey),
	}
	for _, f := range ix.fields {
		row[f.Name] = values[f.Name]
	}
	return row
}

func (m *Model) shardOf(ix *Index, values map[string]any) (int, error) {
	v := values[ix.shardOn]
	if v == nil {
		return 0, routingErrorf("model %s: index %s: missing shard key %s", m.name, ix.name, ix.shardOn)
	}
	n, err := m.store.shardFor(v)
	if err != nil {
		return 0, routingErrorf("model %s: index %s: shard key %s: %v", m.name, ix.name, ix.shardOn, err)
	}
	return n, nil
}

func (m *Model) createdAt(now time.Time) time.Time {
	if m.store.cfg.LegacyCreatedAtIsBigint {
		return now.UTC().Truncate(time.Second)
	}
	return now.UTC().Truncate(time.Microsecond)
}

func (m *Model) createdAtValue(t time.Time) any {
	if m.store.cfg.LegacyCreatedAtIsBigint {
		return t.Unix()
	}
	return t
}

// Where routes an equality query to the single table that can answer it. The
// primary index is used when its shard key is among the predicates, otherwise
// the first secondary index whose shard key is. Every predicate must name a
// field of that index, or uuid or ref_key.
//
// The returned Result runs no query until it is read.
func (m *Model) Where(preds map[string]any) (*Result, error) {
	ix := m.routingIndex(preds)
	if ix == nil {
		return nil, routingErrorf("model %s: no index shard key among predicates %v", m.name, predicateNames(preds))
	}
	row := make(store.Row, len(preds))
	for k, v := range preds {
		var (
			cv  any
			err error
		)
		switch k {
		case colUUID:
			cv, err = coerce(String, v)
		case colRefKey:
			cv, err = coerce(Integer, v)
		default:
			f, ok := ix.field(k)
			if !ok {
				return nil, routingErrorf("model %s: field %s is not part of index %s", m.name, k, ix.name)
			}
			cv, err = coerce(f.Type, v)
		}
		if err != nil {
			return nil, routingErrorf("model %s: predicate %s: %v", m.name, k, err)
		}
		row[k] = cv
	}
	n, err := m.shardOf(ix, row)
	if err != nil {
		return nil, err
	}
	res := &Result{model: m, index: ix, shard: n, partition: m.store.partitionOf(n), preds: row}
	if ix == m.primary {
		res.table = m.MainTable(n)
	} else {
		res.table = m.IndexTable(ix, n)
	}
	return res, nil
}

func (m *Model) routingIndex(preds map[string]any) *Index {
	for _, ix := range m.Indexes() {
		if _, ok := preds[ix.shardOn]; ok {
			return ix
		}
	}
	return nil
}

func predicateNames(preds map[string]any) []string {
	names := make([]string, 0, len(preds))
	for k := range preds {
		names = append(names, k)
	}
	return names
}

// recordFromMain rebuilds a record from a main table row.
func (m *Model) recordFromMain(row store.Row) (*Record, error) {
	rec, err := m.recordFromIndex(m.primary, row)
	if err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = decodeTime(row[colCreatedAt]); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	var data []byte
	switch b := row[colBody].(type) {
	case []byte:
		data = b
	case string:
		data = []byte(b)
	}
	if rec.Body, err = decodeBody(data); err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	return rec, nil
}

// recordFromIndex rebuilds the indexed part of a record from an index row.
func (m *Model) recordFromIndex(ix *Index, row store.Row) (*Record, error) {
	id, err := decodeUUID(row[colUUID])
	if err != nil {
		return nil, fmt.Errorf("uuid: %w", err)
	}
	ref, err := decodeInt(row[colRefKey])
	if err != nil {
		return nil, fmt.Errorf("ref_key: %w", err)
	}
	rec := &Record{UUID: id, RefKey: uint64(ref), Fields: make(map[string]any, len(ix.fields))}
	for _, f := range ix.fields {
		v, err := decode(f.Type, row[f.Name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		rec.Fields[f.Name] = v
	}
	return rec, nil
}
