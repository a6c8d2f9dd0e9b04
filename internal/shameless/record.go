package shameless

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one logical row of a model.
//
// Fields holds the primary index fields, which are columns of the main table.
// Body holds every other field; it is stored as JSON on the main table only.
// Body values come back as JSON kinds: string, bool, nil, map[string]any and
// []any. Integers come back as int64, or uint64 above math.MaxInt64, and
// floats as float64 even when whole. Other Go types come back in their JSON
// form.
type Record struct {
	UUID      uuid.UUID
	RefKey    uint64
	CreatedAt time.Time
	Fields    map[string]any
	Body      map[string]any
}

// Get returns a field by name, including the reserved uuid, ref_key and
// created_at identifiers.
func (r *Record) Get(name string) (any, bool) {
	switch name {
	case colUUID:
		return r.UUID, true
	case colRefKey:
		return r.RefKey, true
	case colCreatedAt:
		return r.CreatedAt, true
	}
	if v, ok := r.Fields[name]; ok {
		return v, true
	}
	v, ok := r.Body[name]
	return v, ok
}

// Value is Get without the presence flag.
func (r *Record) Value(name string) any {
	v, _ := r.Get(name)
	return v
}

// encodeBody serializes the non-column fields of a record. Floats are written
// with a fraction or exponent so they decode as floats.
func encodeBody(body map[string]any) ([]byte, error) {
	if len(body) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(markFloats(body))
}

// markFloats copies v, replacing finite floats with numbers that keep a
// decimal point. Non-finite floats are left for json.Marshal to reject.
func markFloats(v any) any {
	switch x := v.(type) {
	case float64:
		return floatNumber(x)
	case float32:
		return floatNumber(float64(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = markFloats(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = markFloats(vv)
		}
		return out
	}
	return v
}

func floatNumber(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}

// decodeBody restores a body; see Record for the kinds it produces.
func decodeBody(data []byte) (map[string]any, error) {
	body := map[string]any{}
	if len(data) == 0 {
		return body, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	for k, v := range body {
		body[k] = normalizeNumbers(v)
	}
	return body, nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		s := x.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			if n, err := strconv.ParseUint(s, 10, 64); err == nil {
				return n
			}
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return s
	case map[string]any:
		for k, vv := range x {
			x[k] = normalizeNumbers(vv)
		}
	case []any:
		for i, vv := range x {
			x[i] = normalizeNumbers(vv)
		}
	}
	return v
}

// coerce converts a caller-supplied value to the stored representation of t.
// nil passes through as NULL.
func coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Integer:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint:
			return uintToInt(uint64(x))
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint64:
			return uintToInt(x)
		case float64:
			if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
				return int64(x), nil
			}
		}
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case uuid.UUID:
			return x.String(), nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case Float:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot store %T as %s", v, t)
}

func uintToInt(x uint64) (any, error) {
	if x > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d overflows int64", x)
	}
	return int64(x), nil
}

// decode converts a value read back from a driver to the Go type of t.
func decode(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Integer:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case int:
			return int64(x), nil
		case float64:
			return int64(x), nil
		case string:
			return strconv.ParseInt(x, 10, 64)
		case []byte:
			return strconv.ParseInt(string(x), 10, 64)
		}
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case Float:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s column", v, t)
}

func decodeInt(v any) (int64, error) {
	n, err := decode(Integer, v)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, fmt.Errorf("unexpected NULL")
	}
	return n.(int64), nil
}

func decodeUUID(v any) (uuid.UUID, error) {
	switch x := v.(type) {
	case string:
		return uuid.Parse(x)
	case []byte:
		return uuid.ParseBytes(x)
	case [16]byte:
		return uuid.UUID(x), nil
	}
	return uuid.Nil, fmt.Errorf("unexpected %T for uuid column", v)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func decodeTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", x)
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("unexpected %T for time column", v)
}
