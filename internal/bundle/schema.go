// Package bundle reads and writes resource bundles.
//
// A resource bundle is a single SQLite file holding every file of a source
// directory tree, keyed by its path relative to that tree's root. Consumers
// look resources up by exact name, so the table names, column layout and
// index name below are a compatibility contract and must not change.
package bundle

const (
	// ResourcesTable holds one row per packed file.
	ResourcesTable = "resources"
	// MetadataTable holds bundle-level key/value pairs.
	MetadataTable = "metadata"
	// ResourcesIndex is dropped before population and rebuilt afterwards.
	ResourcesIndex = "resources_name"

	// CreatedAtKey is the only metadata key written by Pack.
	CreatedAtKey = "created_at"
	// CreatedAtLayout formats CreatedAtKey as YYYY-MM-DD HH:MM:SS in local time.
	CreatedAtLayout = "2006-01-02 15:04:05"
)

const (
	createResourcesSQL = `CREATE TABLE IF NOT EXISTS resources (name TEXT NOT NULL UNIQUE PRIMARY KEY, content BLOB)`
	dropIndexSQL       = `DROP INDEX IF EXISTS resources_name`
	createMetadataSQL  = `CREATE TABLE IF NOT EXISTS metadata (name TEXT NOT NULL UNIQUE PRIMARY KEY, value TEXT)`
	createIndexSQL     = `CREATE INDEX resources_name ON resources (name)`
	vacuumSQL          = `VACUUM`

	upsertResourceSQL = `INSERT INTO resources (name, content) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET content=excluded.content`
	upsertMetadataSQL = `INSERT INTO metadata (name, value) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET value=excluded.value`

	selectResourceSQL = `SELECT content IS NULL, content FROM resources WHERE name = ? LIMIT 1`
	listResourcesSQL  = `SELECT name, length(content) FROM resources ORDER BY name`
	selectMetadataSQL = `SELECT name, value FROM metadata ORDER BY name`
)
