package shameless

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/maloquacious/shameless/internal/config"
	"github.com/maloquacious/shameless/internal/logger"
	"github.com/maloquacious/shameless/internal/shard"
	"github.com/maloquacious/shameless/internal/store"
	"github.com/maloquacious/shameless/internal/store/postgres"
	"github.com/maloquacious/shameless/internal/store/sqlite"
)

// DefaultName is the table prefix of a Store created without WithName.
const DefaultName = "store"

// DefaultDrivers dispatches partition urls by scheme.
var DefaultDrivers = store.Schemes{
	"sqlite":     sqlite.Driver{},
	"file":       sqlite.Driver{},
	"postgres":   postgres.Driver{},
	"postgresql": postgres.Driver{},
}

// Store routes the records of its attached models across partitions.
type Store struct {
	name     string
	cfg      config.Config
	connOpts store.Options
	driver   store.Driver
	log      logger.Logger

	partitions []*Partition

	mu     sync.RWMutex
	models []*Model
	stems  map[string]*Model
	gen    atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithName sets the table name prefix.
func WithName(name string) Option {
	return func(s *Store) { s.name = name }
}

// WithDriver replaces the scheme-based driver dispatch.
func WithDriver(d store.Driver) Option {
	return func(s *Store) { s.driver = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New validates cfg and creates a Store. No partition is contacted until it is
// first used.
func New(cfg config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	s := &Store{
		name:   DefaultName,
		cfg:    cfg,
		driver: DefaultDrivers,
		log:    logger.Discard,
		stems:  make(map[string]*Model),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !store.ValidIdentifier(s.name) {
		return nil, configErrorf("invalid store name %q", s.name)
	}
	connOpts, err := connectionOptions(cfg)
	if err != nil {
		return nil, configErrorf("%v", err)
	}
	s.connOpts = connOpts
	s.partitions = make([]*Partition, cfg.PartitionsCount())
	for i, url := range cfg.PartitionURLs {
		s.partitions[i] = newPartition(s, i, url)
	}
	return s, nil
}

// connectionOptions returns the options forwarded to every partition connect.
// Temp tables only exist on the session that created them, so a store creating
// temp tables gets max_connections 1 unless it asked for more, which is an error.
func connectionOptions(cfg config.Config) (store.Options, error) {
	opts := store.Options(cfg.ConnectionOptions)
	temp, err := store.Options(cfg.CreateTableOptions).Bool("temp")
	if err != nil {
		return nil, fmt.Errorf("create_table_options: %w", err)
	}
	if !temp {
		return opts, nil
	}
	n, ok, err := opts.Int("max_connections")
	switch {
	case err != nil:
		return nil, fmt.Errorf("connection_options: %w", err)
	case ok && n != 1:
		return nil, fmt.Errorf("temp tables need max_connections 1, got %d", n)
	case ok:
		return opts, nil
	}
	pinned := make(store.Options, len(opts)+1)
	for k, v := range opts {
		pinned[k] = v
	}
	pinned["max_connections"] = 1
	return pinned, nil
}

// Name returns the table name prefix.
func (s *Store) Name() string { return s.name }

// Config returns the configuration the Store was created with.
func (s *Store) Config() config.Config { return s.cfg }

// PaddedShard renders n mod shards_count as six zero-padded digits.
func (s *Store) PaddedShard(n int) string {
	return shard.Pad(n, s.cfg.ShardsCount)
}

func (s *Store) shardFor(value any) (int, error) {
	return shard.For(value, s.cfg.ShardsCount)
}

func (s *Store) partitionOf(n int) int {
	return shard.PartitionOf(n, s.cfg.ShardsPerPartitionCount())
}

func (s *Store) generation() int64 {
	return s.gen.Load()
}

// Attach registers a model. Its base name is the lowercased type name of
// model, or model itself when it is a string. declare must declare the primary
// index with Schema.Index and may add secondary indexes with Schema.NamedIndex.
func (s *Store) Attach(model any, declare func(*Schema)) (*Model, error) {
	name, err := baseName(model)
	if err != nil {
		return nil, configErrorf("%v", err)
	}
	if !store.ValidIdentifier(name) {
		return nil, configErrorf("invalid model name %q", name)
	}

	schema := &Schema{}
	if declare != nil {
		declare(schema)
	}
	schema.sealed = true

	m := &Model{store: s, name: name}
	seen := make(map[string]bool)
	fieldTypes := make(map[string]FieldType)
	for _, b := range schema.indexes {
		ix, err := b.build()
		if err != nil {
			return nil, configErrorf("model %s: %v", name, err)
		}
		if seen[ix.name] {
			return nil, configErrorf("model %s: duplicate index name %q", name, ix.name)
		}
		seen[ix.name] = true
		for _, f := range ix.fields {
			if t, ok := fieldTypes[f.Name]; ok && t != f.Type {
				return nil, configErrorf("model %s: field %s declared as %s and %s", name, f.Name, t, f.Type)
			}
			fieldTypes[f.Name] = f.Type
		}
		if ix.name == PrimaryIndex {
			m.primary = ix
		} else {
			m.secondary = append(m.secondary, ix)
		}
	}
	if m.primary == nil {
		return nil, configErrorf("model %s: no primary index declared", name)
	}
	if err := m.checkNameLengths(); err != nil {
		return nil, configErrorf("model %s: %v", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stem := range m.stems() {
		if other, ok := s.stems[stem]; ok {
			return nil, configErrorf("model %s: tables named %s_%s_* already belong to model %s", name, s.name, stem, other.name)
		}
	}
	for _, stem := range m.stems() {
		s.stems[stem] = m
	}
	s.models = append(s.models, m)
	s.gen.Add(1)
	s.log.Debug("attached model %s with %d indexes", name, len(m.Indexes()))
	return m, nil
}

// checkNameLengths rejects models whose longest table or sequence name would
// not survive as a single identifier.
func (m *Model) checkNameLengths() error {
	last := m.store.cfg.ShardsCount - 1
	names := []string{m.MainTable(last) + store.RefKeySuffix}
	for _, ix := range m.Indexes() {
		names = append(names, m.IndexTable(ix, last))
	}
	for _, name := range names {
		if len(name) > store.MaxIdentifierLen {
			return fmt.Errorf("%s is longer than %d characters", name, store.MaxIdentifierLen)
		}
	}
	return nil
}

func baseName(model any) (string, error) {
	if name, ok := model.(string); ok {
		return strings.ToLower(name), nil
	}
	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "", fmt.Errorf("cannot derive a model name from %T", model)
	}
	return strings.ToLower(t.Name()), nil
}

// Model returns an attached model by base name.
func (s *Store) Model(name string) (*Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.models {
		if m.name == name {
			return m, true
		}
	}
	return nil, false
}

// Models returns the attached models in attach order.
func (s *Store) Models() []*Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Model(nil), s.models...)
}

// Partitions returns the partition handles in partition order.
func (s *Store) Partitions() []*Partition {
	return append([]*Partition(nil), s.partitions...)
}

type tableDef struct {
	name    string
	columns []store.Column
}

// tablesOn lists the tables owned by partition: per model, the main tables in
// shard order, then each index's tables in shard order.
func (s *Store) tablesOn(partition int) []tableDef {
	shards := shard.Range(partition, s.cfg.ShardsPerPartitionCount())
	var defs []tableDef
	for _, m := range s.Models() {
		cols := m.mainColumns()
		for _, n := range shards {
			defs = append(defs, tableDef{name: m.MainTable(n), columns: cols})
		}
		for _, ix := range m.Indexes() {
			cols := m.indexColumns(ix)
			for _, n := range shards {
				defs = append(defs, tableDef{name: m.IndexTable(ix, n), columns: cols})
			}
		}
	}
	return defs
}

// EachPartition calls fn once per partition, in partition order, with the
// partition handle and the names of the tables it owns. It stops at the first
// error. No connection is opened.
func (s *Store) EachPartition(fn func(p *Partition, tables []string) error) error {
	for _, p := range s.partitions {
		if err := fn(p, p.TableNames()); err != nil {
			return err
		}
	}
	return nil
}

// Provision connects every partition, which creates all missing tables.
func (s *Store) Provision(ctx context.Context) error {
	for _, p := range s.partitions {
		if _, err := p.Conn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect closes every live partition connection. Models, partition handles
// and topology stay valid; the next operation reconnects. Callers must drain
// in-flight operations first.
func (s *Store) Disconnect() error {
	var errs []error
	for _, p := range s.partitions {
		if err := p.disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Location is where a physical table sits in the topology.
type Location struct {
	Model     string
	Index     string // empty for a main table
	Shard     int
	Partition int
}

// Locate reverses a physical table name produced by this Store.
func (s *Store) Locate(table string) (Location, error) {
	stem, n, err := shard.Split(s.name, table)
	if err != nil {
		return Location{}, routingErrorf("%v", err)
	}
	if n >= s.cfg.ShardsCount {
		return Location{}, routingErrorf("table %s: shard %d out of range", table, n)
	}
	s.mu.RLock()
	m, ok := s.stems[stem]
	s.mu.RUnlock()
	if !ok {
		return Location{}, routingErrorf("table %s belongs to no attached model", table)
	}
	loc := Location{Model: m.name, Shard: n, Partition: s.partitionOf(n)}
	if stem != m.name {
		for _, ix := range m.Indexes() {
			if (shard.TableName{Base: m.name, Index: ix.name}).Stem() == stem {
				loc.Index = ix.name
				break
			}
		}
	}
	return loc, nil
}
