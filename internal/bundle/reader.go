package bundle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrResourceNotFound is returned when no resource has the requested name
	ErrResourceNotFound = errors.New("resource not found")
	// ErrNullContent is returned for a resource row whose content is NULL
	ErrNullContent = errors.New("resource content is NULL")
)

// Entry describes one stored resource without its content.
type Entry struct {
	Name string
	Size int64
}

// Reader gives read-only access to a bundle, the way the game loads it.
type Reader struct {
	db   *sql.DB
	path string
}

// OpenReader opens an existing bundle read-only. It never creates a file.
func OpenReader(ctx context.Context, path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}

	db, err := sql.Open("sqlite3", storeDSN(path, true))
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	return NewReader(db, path), nil
}

// NewReader wraps an open store.
func NewReader(db *sql.DB, path string) *Reader {
	return &Reader{db: db, path: path}
}

// Path returns the bundle path the reader was opened with.
func (r *Reader) Path() string {
	return r.path
}

// Close releases the store handle.
func (r *Reader) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Get returns the content of the named resource. Names have no leading slash.
// A zero-length resource yields an empty, non-nil slice.
func (r *Reader) Get(ctx context.Context, name string) ([]byte, error) {
	var isNull bool
	var content []byte
	err := r.db.QueryRowContext(ctx, selectResourceSQL, name).Scan(&isNull, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %q: %w", name, err)
	}
	if isNull {
		return nil, fmt.Errorf("%w: %s", ErrNullContent, name)
	}
	if content == nil {
		content = []byte{}
	}
	return content, nil
}

// List returns every resource name with its size, ordered by name.
func (r *Reader) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, listResourcesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var size sql.NullInt64
		if err := rows.Scan(&e.Name, &size); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		e.Size = size.Int64
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return entries, nil
}

// Names returns the resource names, ordered.
func (r *Reader) Names(ctx context.Context) ([]string, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// Metadata returns all metadata rows.
func (r *Reader) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, selectMetadataSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta[name] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	return meta, nil
}

// CreatedAt returns the created_at stamp, or "" if the bundle has none.
func (r *Reader) CreatedAt(ctx context.Context) (string, error) {
	meta, err := r.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return meta[CreatedAtKey], nil
}
