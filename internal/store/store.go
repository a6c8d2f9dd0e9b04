package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// ColumnType is the portable type of a column; drivers map it to SQL.
type ColumnType int

const (
	TypeInteger ColumnType = iota
	TypeString
	TypeFloat
	TypeBoolean
	TypeBlob
	TypeTime
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeString:
		return "string"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	case TypeBlob:
		return "blob"
	case TypeTime:
		return "time"
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// Column describes one column of a table to create.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
	Unique  bool
}

// Row maps column names to values.
type Row map[string]any

// Options is a driver-specific key/value map, e.g. connection or table options.
type Options map[string]any

// Int reads an integer option. ok is false when the key is absent.
func (o Options) Int(key string) (n int, ok bool, err error) {
	v, found := o[key]
	if !found {
		return 0, false, nil
	}
	switch x := v.(type) {
	case int:
		return x, true, nil
	case int32:
		return int(x), true, nil
	case int64:
		return int(x), true, nil
	case uint:
		return int(x), true, nil
	case uint32:
		return int(x), true, nil
	case uint64:
		return int(x), true, nil
	case float64:
		if x == math.Trunc(x) {
			return int(x), true, nil
		}
	}
	return 0, true, fmt.Errorf("option %q: expected an integer, got %T", key, v)
}

// Bool reads a boolean option. A missing key is false.
func (o Options) Bool(key string) (bool, error) {
	v, found := o[key]
	if !found {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %q: expected a boolean, got %T", key, v)
	}
	return b, nil
}

// String reads a string option. A missing key is "".
func (o Options) String(key string) (string, error) {
	v, found := o[key]
	if !found {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %q: expected a string, got %T", key, v)
	}
	return s, nil
}

// Unknown returns the keys of o not listed in known, sorted.
func (o Options) Unknown(known ...string) []string {
	var out []string
	for k := range o {
		found := false
		for _, kk := range known {
			if k == kk {
				found = true
				break
			}
		}
		if !found {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

var identRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// MaxIdentifierLen is the longest identifier every driver keeps intact.
// PostgreSQL silently truncates longer ones.
const MaxIdentifierLen = 63

// RefKeySuffix is appended to a main table name to name its ref_key sequence,
// for drivers that keep one.
const RefKeySuffix = "_ref_key_seq"

// ValidIdentifier reports whether name is usable as a table or column name by
// every driver.
func ValidIdentifier(name string) bool {
	return len(name) <= MaxIdentifierLen && identRE.MatchString(name)
}

// Quote double-quotes an identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ErrUnknownScheme is returned when no driver handles a URL scheme.
var ErrUnknownScheme = errors.New("no driver for url scheme")

// Schemes dispatches Connect to a driver chosen by the URL scheme.
type Schemes map[string]Driver

// Connect implements Driver.
func (s Schemes) Connect(ctx context.Context, url string, opts Options) (Conn, error) {
	scheme, _, ok := strings.Cut(url, ":")
	if !ok || scheme == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, url)
	}
	d, ok := s[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return d.Connect(ctx, url, opts)
}
