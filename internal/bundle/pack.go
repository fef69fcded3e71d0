package bundle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Options tunes a Pack run. The zero value is usable.
type Options struct {
	// Progress receives one line per packed file: its name in the bundle.
	Progress io.Writer
	Logger   *zap.Logger
	// Now stamps created_at; defaults to time.Now.
	Now       func() time.Time
	BatchSize int
}

// Result summarizes a successful Pack.
type Result struct {
	Resources int
	Bytes     int64
	CreatedAt string
}

func (o Options) withDefaults() Options {
	if o.Progress == nil {
		o.Progress = io.Discard
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Pack stores every non-directory entry under inputDir in the bundle at
// bundlePath, creating the bundle if needed. Existing resources with the same
// name are overwritten; resources whose source file is gone are left alone.
//
// Any failure aborts the run. Batches committed before the failure stay in the
// bundle.
func Pack(ctx context.Context, inputDir, bundlePath string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	db, err := OpenStore(ctx, bundlePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return PackInto(ctx, db, inputDir, opts)
}

// PackInto runs the pack steps against an already open store.
func PackInto(ctx context.Context, db *sql.DB, inputDir string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With(zap.String("input", inputDir))

	w := NewWriter(db, opts.BatchSize, opts.Logger)
	if err := w.Prepare(ctx); err != nil {
		return nil, err
	}

	res := &Result{}
	if err := walkInto(ctx, w, inputDir, opts, res); err != nil {
		return nil, err
	}

	res.CreatedAt = opts.Now().Format(CreatedAtLayout)
	if err := w.PutMetadata(ctx, CreatedAtKey, res.CreatedAt); err != nil {
		return nil, abortWith(w, err)
	}
	if err := w.Finish(ctx); err != nil {
		return nil, abortWith(w, err)
	}
	if err := w.Vacuum(ctx); err != nil {
		return nil, err
	}

	logger.Info("bundle written",
		zap.Int("resources", res.Resources),
		zap.Int64("bytes", res.Bytes),
		zap.String("created_at", res.CreatedAt),
	)
	return res, nil
}

// storeError marks a walk failure that came from the store rather than the
// filesystem.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func walkInto(ctx context.Context, w *Writer, inputDir string, opts Options, res *Result) error {
	root, err := resolveRoot(inputDir)
	if err != nil {
		return err
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("failed to resolve link %s: %w", path, err)
			}
			if target.IsDir() {
				opts.Logger.Debug("skipping directory link", zap.String("path", path))
				return nil
			}
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(opts.Progress, name); err != nil {
			return fmt.Errorf("failed to report %s: %w", name, err)
		}

		if err := w.PutResource(ctx, name, content); err != nil {
			return &storeError{err: err}
		}
		res.Resources++
		res.Bytes += int64(len(content))
		return nil
	})
	if walkErr == nil {
		return nil
	}

	var se *storeError
	if errors.As(walkErr, &se) {
		return abortWith(w, se.err)
	}
	// Keep what was written before the filesystem failure.
	if err := w.Flush(ctx); err != nil {
		return abortWith(w, fmt.Errorf("%w (and %v)", walkErr, err))
	}
	return abortWith(w, walkErr)
}

// abortWith closes w after a failure and reports a failed rollback alongside
// err.
func abortWith(w *Writer, err error) error {
	if abortErr := w.Abort(); abortErr != nil {
		return fmt.Errorf("%w (and %v)", err, abortErr)
	}
	return err
}

// resolveRoot checks that inputDir is a directory and follows it if it is a
// link, so that WalkDir descends into it.
func resolveRoot(inputDir string) (string, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", inputDir)
	}
	root, err := filepath.EvalSymlinks(inputDir)
	if err != nil {
		return "", err
	}
	return root, nil
}
