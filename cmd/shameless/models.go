package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/maloquacious/shameless/internal/config"
	"github.com/maloquacious/shameless/internal/shameless"
)

// attachModels attaches the models declared in the config file. An index with
// no name, or named "primary", is the primary index.
func attachModels(st *shameless.Store, models []config.Model) error {
	for _, m := range models {
		type decl struct {
			name    string
			fields  []shameless.Field
			shardOn string
		}
		var decls []decl
		for _, ix := range m.Indexes {
			d := decl{name: ix.Name, shardOn: ix.ShardOn}
			if d.name == "" {
				d.name = shameless.PrimaryIndex
			}
			for _, f := range ix.Fields {
				t, err := shameless.ParseFieldType(f.Type)
				if err != nil {
					return fmt.Errorf("model %s: index %s: field %s: %w", m.Name, d.name, f.Name, err)
				}
				d.fields = append(d.fields, shameless.Field{Name: f.Name, Type: t})
			}
			decls = append(decls, d)
		}

		_, err := st.Attach(m.Name, func(s *shameless.Schema) {
			for _, d := range decls {
				s.NamedIndex(d.name, func(ix *shameless.IndexBuilder) {
					for _, f := range d.fields {
						ix.Field(f.Name, f.Type)
					}
					if d.shardOn != "" {
						ix.ShardOn(d.shardOn)
					}
				})
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// route resolves a shard key given on the command line.
func route(st *shameless.Store, model, index, key string) (shameless.Route, error) {
	m, ok := st.Model(model)
	if !ok {
		return shameless.Route{}, fmt.Errorf("%w: no model %q in config", shameless.ErrRouting, model)
	}
	ix, ok := m.Index(index)
	if !ok {
		return shameless.Route{}, fmt.Errorf("%w: model %s has no index %q", shameless.ErrRouting, model, index)
	}
	var t shameless.FieldType
	for _, f := range ix.Fields() {
		if f.Name == ix.ShardOn() {
			t = f.Type
		}
	}
	v, err := parseKey(t, key)
	if err != nil {
		return shameless.Route{}, fmt.Errorf("%w: shard key %s: %v", shameless.ErrRouting, ix.ShardOn(), err)
	}
	return m.RouteIndex(index, v)
}

func parseKey(t shameless.FieldType, s string) (any, error) {
	switch t {
	case shameless.Integer:
		return strconv.ParseInt(s, 10, 64)
	case shameless.Float:
		return strconv.ParseFloat(s, 64)
	case shameless.Boolean:
		return strconv.ParseBool(s)
	}
	return s, nil
}

// redact hides the password of a partition url.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
