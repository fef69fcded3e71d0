package bundle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of upserts committed per transaction.
const DefaultBatchSize = 256

var (
	// ErrWriterClosed is returned when a Writer is used after Finish or Abort
	ErrWriterClosed = errors.New("bundle writer already finished")
)

// Writer applies bundle mutations to an open store. Upserts are grouped into
// transactions of batchSize rows; every committed batch stays committed even
// if a later step fails.
type Writer struct {
	db        *sql.DB
	tx        *sql.Tx
	pending   int
	batchSize int
	done      bool
	logger    *zap.Logger
}

// OpenStore opens (creating if absent) the SQLite file at path for writing.
// The file is touched immediately so that an unwritable path fails here rather
// than halfway through a pack.
func OpenStore(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", storeDSN(path, false))
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	// A single connection keeps VACUUM on the same handle that committed.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	return db, nil
}

// storeDSN turns a bundle path into a file: URI the driver takes literally.
// Without escaping, the driver would read '?' as the start of its options and
// SQLite would end the file name at '#'.
func storeDSN(path string, readOnly bool) string {
	p := filepath.ToSlash(path)
	if filepath.IsAbs(path) && !strings.HasPrefix(p, "/") {
		// drive letter
		p = "/" + p
	}
	escaped := (&url.URL{Path: p}).EscapedPath()

	dsn := "file:" + escaped
	if strings.HasPrefix(escaped, "/") {
		dsn = "file://" + escaped
	}
	if readOnly {
		dsn += "?mode=ro"
	}
	return dsn
}

// NewWriter creates a writer on db. A batchSize of zero or less selects
// DefaultBatchSize and a nil logger discards log output.
func NewWriter(db *sql.DB, batchSize int, logger *zap.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{db: db, batchSize: batchSize, logger: logger}
}

// Prepare ensures both tables exist and drops the name index left by a
// previous run.
func (w *Writer) Prepare(ctx context.Context) error {
	for _, stmt := range []string{createResourcesSQL, dropIndexSQL, createMetadataSQL} {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare schema: %w", err)
		}
	}
	return nil
}

// PutResource inserts a resource or replaces the content of an existing one.
func (w *Writer) PutResource(ctx context.Context, name string, content []byte) error {
	// nil would be stored as NULL, which readers reject
	if content == nil {
		content = []byte{}
	}
	if err := w.exec(ctx, upsertResourceSQL, name, content); err != nil {
		return fmt.Errorf("failed to store resource %q: %w", name, err)
	}
	w.logger.Debug("stored resource", zap.String("name", name), zap.Int("bytes", len(content)))
	return w.maybeFlush(ctx)
}

// PutMetadata inserts a metadata value or replaces an existing one.
func (w *Writer) PutMetadata(ctx context.Context, name, value string) error {
	if err := w.exec(ctx, upsertMetadataSQL, name, value); err != nil {
		return fmt.Errorf("failed to store metadata %q: %w", name, err)
	}
	return w.maybeFlush(ctx)
}

// Flush commits the open batch, if any.
func (w *Writer) Flush(ctx context.Context) error {
	if w.tx == nil {
		return nil
	}
	tx, n := w.tx, w.pending
	w.tx, w.pending = nil, 0
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	w.logger.Debug("committed batch", zap.Int("rows", n))
	return nil
}

// Finish rebuilds the name index and commits everything still pending.
func (w *Writer) Finish(ctx context.Context) error {
	if err := w.exec(ctx, createIndexSQL); err != nil {
		return fmt.Errorf("failed to create index %s: %w", ResourcesIndex, err)
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}
	w.done = true
	return nil
}

// Abort rolls back the open batch. Batches committed earlier are kept.
func (w *Writer) Abort() error {
	w.done = true
	if w.tx == nil {
		return nil
	}
	tx := w.tx
	w.tx, w.pending = nil, 0
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back batch: %w", err)
	}
	return nil
}

// Vacuum compacts the store file. It must run outside a transaction.
func (w *Writer) Vacuum(ctx context.Context) error {
	if w.tx != nil {
		return errors.New("cannot vacuum with an open batch")
	}
	if _, err := w.db.ExecContext(ctx, vacuumSQL); err != nil {
		return fmt.Errorf("failed to compact bundle: %w", err)
	}
	return nil
}

func (w *Writer) exec(ctx context.Context, query string, args ...any) error {
	if w.done {
		return ErrWriterClosed
	}
	if w.tx == nil {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin batch: %w", err)
		}
		w.tx = tx
	}
	if _, err := w.tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	w.pending++
	return nil
}

func (w *Writer) maybeFlush(ctx context.Context) error {
	if w.pending < w.batchSize {
		return nil
	}
	return w.Flush(ctx)
}
