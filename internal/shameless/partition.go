package shameless

import (
	"context"
	"sync"

	"github.com/maloquacious/shameless/internal/store"
)

// Partition is a stable handle on one partition database. The live connection
// behind it is opened on first use and may be closed by Store.Disconnect; the
// handle itself stays valid and reconnects on the next operation.
type Partition struct {
	store *Store
	index int
	url   string

	mu   sync.Mutex
	live store.Conn
	// generation of the store's model set whose tables exist here; -1 when
	// nothing has been provisioned on the current connection.
	provisioned int64
}

func newPartition(s *Store, index int, url string) *Partition {
	return &Partition{store: s, index: index, url: url, provisioned: -1}
}

// Index returns the partition number.
func (p *Partition) Index() int { return p.index }

// URL returns the partition's connection string.
func (p *Partition) URL() string { return p.url }

// Connected reports whether a live connection is currently open.
func (p *Partition) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live != nil
}

// TableNames returns the physical tables this partition owns: every main
// table in shard order, then every index table, index by index.
func (p *Partition) TableNames() []string {
	defs := p.store.tablesOn(p.index)
	names := make([]string, len(defs))
	for i, t := range defs {
		names[i] = t.name
	}
	return names
}

// Conn returns the live connection, connecting, loading extensions and
// creating missing tables first if needed.
func (p *Partition) Conn(ctx context.Context) (store.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live == nil {
		if err := p.connect(ctx); err != nil {
			return nil, err
		}
	}
	if gen := p.store.generation(); gen != p.provisioned {
		if err := p.provision(ctx); err != nil {
			return nil, err
		}
		p.provisioned = gen
	}
	return p.live, nil
}

// Table returns a handle on a table of this partition by name.
func (p *Partition) Table(ctx context.Context, name string) (store.Table, error) {
	conn, err := p.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Table(name), nil
}

func (p *Partition) connect(ctx context.Context) error {
	s := p.store
	conn, err := s.driver.Connect(ctx, p.url, s.connOpts)
	if err != nil {
		return &OpError{Op: "connect", Partition: p.index, Kind: ErrConnection, Err: err}
	}
	for _, ext := range s.cfg.DatabaseExtensions {
		if err := conn.Extension(ctx, ext); err != nil {
			conn.Close()
			return &OpError{Op: "extension " + ext, Partition: p.index, Kind: ErrConnection, Err: err}
		}
	}
	s.log.Info("partition %d connected", p.index)
	p.live = conn
	p.provisioned = -1
	return nil
}

// provision creates every table of the current topology. Creation is
// create-if-not-exists, so concurrent first writers in other processes are safe.
func (p *Partition) provision(ctx context.Context) error {
	s := p.store
	opts := store.Options(s.cfg.CreateTableOptions)
	defs := s.tablesOn(p.index)
	for _, t := range defs {
		if err := p.live.CreateTable(ctx, t.name, t.columns, opts); err != nil {
			return &OpError{Op: "create table", Partition: p.index, Table: t.name, Kind: ErrStorage, Err: err}
		}
	}
	s.log.Debug("partition %d: %d tables provisioned", p.index, len(defs))
	return nil
}

// disconnect closes the live connection, if any.
func (p *Partition) disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live == nil {
		return nil
	}
	err := p.live.Close()
	p.live = nil
	p.provisioned = -1
	if err != nil {
		return &OpError{Op: "disconnect", Partition: p.index, Kind: ErrConnection, Err: err}
	}
	p.store.log.Info("partition %d disconnected", p.index)
	return nil
}
