package sqlite

// refKeysTable holds one counter per physical table. Rows are never deleted,
// so a ref_key is never handed out twice.
const refKeysTable = "shameless_ref_keys"

const refKeysSchema = `
CREATE TABLE IF NOT EXISTS shameless_ref_keys (
    name TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);
`

const nextRefKey = `
INSERT INTO shameless_ref_keys (name, value) VALUES (?, 0)
ON CONFLICT (name) DO UPDATE SET value = value + 1
RETURNING value
`

const listTables = `
SELECT name FROM sqlite_schema WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
UNION
SELECT name FROM sqlite_temp_schema WHERE type = 'table'
ORDER BY name
`

// extensions are named pragma bundles, since modernc.org/sqlite cannot load
// native extension libraries.
var extensions = map[string][]string{
	"wal":                {"PRAGMA journal_mode=WAL"},
	"foreign_keys":       {"PRAGMA foreign_keys=ON"},
	"synchronous_normal": {"PRAGMA synchronous=NORMAL"},
	"memory_temp_store":  {"PRAGMA temp_store=MEMORY"},
}
