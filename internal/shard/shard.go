// Package shard maps shard key values to shards, shards to partitions, and
// (model, index, shard) triples to physical table names and back.
package shard

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// PadWidth is the number of digits in the shard suffix of every table name.
const PadWidth = 6

// ErrUnsupportedKey is returned when a shard key has no canonical form.
var ErrUnsupportedKey = errors.New("unsupported shard key type")

// Canonical returns the string a shard key is hashed from.
// The mapping must never change: existing rows are placed by it.
func Canonical(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case []byte:
		return string(v), nil
	case uuid.UUID:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	case nil:
		return "", fmt.Errorf("%w: nil", ErrUnsupportedKey)
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedKey, value)
}

// For returns the shard in [0, shardsCount) that owns value.
// The hash is CRC-32 (IEEE) of the canonical form.
func For(value any, shardsCount int) (int, error) {
	if shardsCount < 1 {
		return 0, fmt.Errorf("invalid shards count %d", shardsCount)
	}
	key, err := Canonical(value)
	if err != nil {
		return 0, err
	}
	return int(crc32.ChecksumIEEE([]byte(key)) % uint32(shardsCount)), nil
}

// Pad renders n mod shardsCount as a zero-padded six digit string.
func Pad(n, shardsCount int) string {
	if shardsCount > 0 {
		n %= shardsCount
		if n < 0 {
			n += shardsCount
		}
	}
	return fmt.Sprintf("%0*d", PadWidth, n)
}

// PartitionOf returns the partition owning shard. Shards are assigned in
// contiguous blocks of perPartition.
func PartitionOf(shard, perPartition int) int {
	if perPartition < 1 {
		return 0
	}
	return shard / perPartition
}

// Range returns the shards owned by partition, ascending.
func Range(partition, perPartition int) []int {
	shards := make([]int, 0, perPartition)
	for i := 0; i < perPartition; i++ {
		shards = append(shards, partition*perPartition+i)
	}
	return shards
}

// TableName identifies one physical table. An empty Index names the main table
// of a model; any other index, "primary" included, gets its own table.
type TableName struct {
	Prefix string
	Base   string
	Index  string
	Shard  int
}

// String returns the physical table name. The shard is written as-is, so the
// caller is responsible for keeping it in range.
func (t TableName) String() string {
	var b strings.Builder
	b.WriteString(t.Prefix)
	b.WriteByte('_')
	b.WriteString(t.Base)
	if t.Index != "" {
		b.WriteByte('_')
		b.WriteString(t.Index)
		b.WriteString("_index")
	}
	b.WriteByte('_')
	b.WriteString(fmt.Sprintf("%0*d", PadWidth, t.Shard))
	return b.String()
}

// Stem returns the part of the name between the prefix and the shard suffix.
func (t TableName) Stem() string {
	if t.Index == "" {
		return t.Base
	}
	return t.Base + "_" + t.Index + "_index"
}

// Split breaks a table name into its stem and shard number. It does not know
// which models exist, so the stem is left for the caller to resolve.
func Split(prefix, name string) (stem string, shard int, err error) {
	rest, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return "", 0, fmt.Errorf("table %q does not start with %q", name, prefix+"_")
	}
	cut := len(rest) - PadWidth - 1
	if cut < 1 || rest[cut] != '_' {
		return "", 0, fmt.Errorf("table %q has no shard suffix", name)
	}
	digits := rest[cut+1:]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return "", 0, fmt.Errorf("table %q has no shard suffix", name)
		}
	}
	shard, err = strconv.Atoi(digits)
	if err != nil {
		return "", 0, fmt.Errorf("table %q: %w", name, err)
	}
	return rest[:cut], shard, nil
}
