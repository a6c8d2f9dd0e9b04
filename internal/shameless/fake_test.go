package shameless

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/maloquacious/shameless/internal/store"
)

// memDriver is an in-memory driver that records every call made to it.
// Databases outlive connections, like real partitions do.
type memDriver struct {
	mu       sync.Mutex
	connects []connectCall
	dbs      map[string]*memDB
	failURL  string
}

type connectCall struct {
	url  string
	opts store.Options
}

func newMemDriver() *memDriver {
	return &memDriver{dbs: make(map[string]*memDB)}
}

func (d *memDriver) Connect(ctx context.Context, url string, opts store.Options) (store.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects = append(d.connects, connectCall{url: url, opts: opts})
	if url == d.failURL {
		return nil, errors.New("connection refused")
	}
	db, ok := d.dbs[url]
	if !ok {
		db = &memDB{tables: make(map[string][]store.Row), seq: make(map[string]uint64)}
		d.dbs[url] = db
	}
	return &memConn{db: db}, nil
}

func (d *memDriver) db(url string) *memDB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dbs[url]
}

func (d *memDriver) connectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.connects)
}

type createCall struct {
	name string
	opts store.Options
}

type memDB struct {
	mu         sync.Mutex
	tables     map[string][]store.Row
	created    []createCall
	extensions []string
	seq        map[string]uint64
	failInsert error
}

func (db *memDB) createCalls() []createCall {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]createCall(nil), db.created...)
}

type memConn struct {
	db     *memDB
	closed bool
}

var errClosed = errors.New("connection closed")

func (c *memConn) Extension(ctx context.Context, name string) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.extensions = append(c.db.extensions, name)
	return nil
}

func (c *memConn) CreateTable(ctx context.Context, name string, columns []store.Column, opts store.Options) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.db.created = append(c.db.created, createCall{name: name, opts: opts})
	if _, ok := c.db.tables[name]; !ok {
		c.db.tables[name] = nil
	}
	return nil
}

func (c *memConn) Table(name string) store.Table {
	return &memTable{conn: c, name: name}
}

func (c *memConn) Tables(ctx context.Context) ([]string, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	var names []string
	for name := range c.db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *memConn) NextRefKey(ctx context.Context, table string) (uint64, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.closed {
		return 0, errClosed
	}
	n, ok := c.db.seq[table]
	if ok {
		n++
	}
	c.db.seq[table] = n
	return n, nil
}

func (c *memConn) Close() error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.closed = true
	return nil
}

type memTable struct {
	conn *memConn
	name string
}

func (t *memTable) Name() string { return t.name }

func (t *memTable) Insert(ctx context.Context, row store.Row) error {
	db := t.conn.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if t.conn.closed {
		return errClosed
	}
	if db.failInsert != nil {
		return db.failInsert
	}
	if _, ok := db.tables[t.name]; !ok {
		return errors.New("no such table: " + t.name)
	}
	cp := make(store.Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	db.tables[t.name] = append(db.tables[t.name], cp)
	return nil
}

func (t *memTable) Where(ctx context.Context, preds store.Row) ([]store.Row, error) {
	db := t.conn.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if t.conn.closed {
		return nil, errClosed
	}
	var out []store.Row
	for _, row := range db.tables[t.name] {
		match := true
		for k, v := range preds {
			if row[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i][colRefKey].(int64) < out[j][colRefKey].(int64)
	})
	return out, nil
}

func (t *memTable) Count(ctx context.Context) (int64, error) {
	db := t.conn.db
	db.mu.Lock()
	defer db.mu.Unlock()
	return int64(len(db.tables[t.name])), nil
}
