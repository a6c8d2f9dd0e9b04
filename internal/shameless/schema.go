package shameless

import (
	"fmt"

	"github.com/maloquacious/shameless/internal/store"
)

// PrimaryIndex is the name of the index declared without a name.
const PrimaryIndex = "primary"

// FieldType is the declared type of an indexed field.
type FieldType int

const (
	Integer FieldType = iota
	String
	Float
	Boolean
)

func (t FieldType) String() string {
	switch t {
	case Integer:
		return "integer"
	case String:
		return "string"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType maps a type name as written in configuration files.
func ParseFieldType(name string) (FieldType, error) {
	switch name {
	case "integer", "int":
		return Integer, nil
	case "string":
		return String, nil
	case "float":
		return Float, nil
	case "boolean", "bool":
		return Boolean, nil
	}
	return 0, fmt.Errorf("unknown field type %q", name)
}

func (t FieldType) column() store.ColumnType {
	switch t {
	case String:
		return store.TypeString
	case Float:
		return store.TypeFloat
	case Boolean:
		return store.TypeBoolean
	}
	return store.TypeInteger
}

// Field is a typed index field.
type Field struct {
	Name string
	Type FieldType
}

// Index is an immutable index declaration.
type Index struct {
	name    string
	fields  []Field
	shardOn string
}

// Name returns the index name; "primary" for the default index.
func (i *Index) Name() string { return i.name }

// ShardOn returns the name of the shard key field.
func (i *Index) ShardOn() string { return i.shardOn }

// Fields returns a copy of the declared fields, in declaration order.
func (i *Index) Fields() []Field {
	return append([]Field(nil), i.fields...)
}

func (i *Index) field(name string) (Field, bool) {
	for _, f := range i.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns that every table carries and that user fields may not shadow.
const (
	colUUID      = "uuid"
	colRefKey    = "ref_key"
	colCreatedAt = "created_at"
	colBody      = "body"
	colShard     = "shard"
)

var reserved = map[string]bool{
	colUUID: true, colRefKey: true, colCreatedAt: true, colBody: true, colShard: true,
}

// Schema collects the index declarations of one model during Attach.
type Schema struct {
	indexes []*IndexBuilder
	sealed  bool
}

// Index declares the primary index.
func (s *Schema) Index(declare func(*IndexBuilder)) {
	s.NamedIndex(PrimaryIndex, declare)
}

// NamedIndex declares an index with its own tables, named verbatim.
func (s *Schema) NamedIndex(name string, declare func(*IndexBuilder)) {
	if s.sealed {
		panic("shameless: schema used after Attach returned")
	}
	b := &IndexBuilder{name: name}
	s.indexes = append(s.indexes, b)
	if declare != nil {
		declare(b)
	}
	b.sealed = true
}

// IndexBuilder collects the fields and shard key of one index.
type IndexBuilder struct {
	name    string
	fields  []Field
	shardOn string
	errs    []error
	sealed  bool
}

func (b *IndexBuilder) add(name string, t FieldType) {
	if b.sealed {
		panic("shameless: index builder used after its declaration returned")
	}
	b.fields = append(b.fields, Field{Name: name, Type: t})
}

// Integer declares an integer field.
func (b *IndexBuilder) Integer(name string) { b.add(name, Integer) }

// String declares a string field.
func (b *IndexBuilder) String(name string) { b.add(name, String) }

// Float declares a float field.
func (b *IndexBuilder) Float(name string) { b.add(name, Float) }

// Boolean declares a boolean field.
func (b *IndexBuilder) Boolean(name string) { b.add(name, Boolean) }

// Field declares a field of type t.
func (b *IndexBuilder) Field(name string, t FieldType) { b.add(name, t) }

// ShardOn designates the shard key. The field must be declared on this index.
func (b *IndexBuilder) ShardOn(name string) {
	if b.sealed {
		panic("shameless: index builder used after its declaration returned")
	}
	if b.shardOn != "" {
		b.errs = append(b.errs, fmt.Errorf("index %q: shard key declared twice", b.name))
	}
	b.shardOn = name
}

// build validates the declaration and freezes it.
func (b *IndexBuilder) build() (*Index, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if !store.ValidIdentifier(b.name) {
		return nil, fmt.Errorf("invalid index name %q", b.name)
	}
	if len(b.fields) == 0 {
		return nil, fmt.Errorf("index %q declares no fields", b.name)
	}
	seen := make(map[string]bool, len(b.fields))
	for _, f := range b.fields {
		switch {
		case !store.ValidIdentifier(f.Name):
			return nil, fmt.Errorf("index %q: invalid field name %q", b.name, f.Name)
		case reserved[f.Name]:
			return nil, fmt.Errorf("index %q: field name %q is reserved", b.name, f.Name)
		case seen[f.Name]:
			return nil, fmt.Errorf("index %q: field %q declared twice", b.name, f.Name)
		}
		seen[f.Name] = true
	}
	if b.shardOn == "" {
		return nil, fmt.Errorf("index %q has no shard key", b.name)
	}
	if !seen[b.shardOn] {
		return nil, fmt.Errorf("index %q: shard key %q is not a declared field", b.name, b.shardOn)
	}
	return &Index{
		name:    b.name,
		fields:  append([]Field(nil), b.fields...),
		shardOn: b.shardOn,
	}, nil
}
