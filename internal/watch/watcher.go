// Package watch re-triggers work when files under a directory tree change.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 250 * time.Millisecond

// Options configures a TreeWatcher
type Options struct {
	Debounce time.Duration
	// Ignore holds glob patterns matched against base names.
	Ignore []string
	// IgnorePaths holds exact paths that never trigger a change, such as the
	// bundle being written and its journal files.
	IgnorePaths []string
	Logger      *zap.Logger
}

// TreeWatcher monitors every directory under a root, including directories
// created after Start, and reports debounced batches of changed paths.
type TreeWatcher struct {
	root        string
	watcher     *fsnotify.Watcher
	debouncer   *Debouncer
	ignore      []string
	ignorePaths map[string]struct{}
	logger      *zap.Logger
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewTreeWatcher creates a watcher for root. onChange receives the changed
// paths of each debounced batch; its errors are logged, not returned.
func NewTreeWatcher(root string, opts Options, onChange func([]string) error) (*TreeWatcher, error) {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	tw := &TreeWatcher{
		root:        root,
		watcher:     watcher,
		debouncer:   NewDebouncer(debounce),
		ignore:      opts.Ignore,
		ignorePaths: make(map[string]struct{}, len(opts.IgnorePaths)),
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
	for _, p := range opts.IgnorePaths {
		tw.ignorePaths[absPath(p)] = struct{}{}
	}

	tw.debouncer.SetCallback(func(files []string) {
		if err := onChange(files); err != nil {
			tw.logger.Warn("change handler failed", zap.Error(err))
		}
	})

	return tw, nil
}

// Start adds the root and all of its subdirectories and begins watching.
func (tw *TreeWatcher) Start() error {
	if err := tw.addTree(tw.root); err != nil {
		return err
	}

	tw.wg.Add(1)
	go tw.watch()
	return nil
}

// Stop stops the watcher. Calling it more than once is safe.
func (tw *TreeWatcher) Stop() error {
	var err error
	tw.stopOnce.Do(func() {
		close(tw.stopChan)
		tw.wg.Wait()
		tw.debouncer.Stop()
		err = tw.watcher.Close()
	})
	return err
}

func (tw *TreeWatcher) watch() {
	defer tw.wg.Done()

	for {
		select {
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			tw.handle(event)

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.logger.Warn("watch error", zap.Error(err))

		case <-tw.stopChan:
			return
		}
	}
}

func (tw *TreeWatcher) handle(event fsnotify.Event) {
	if tw.shouldIgnore(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := tw.addTree(event.Name); err != nil {
				tw.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
	}

	tw.logger.Debug("file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	tw.debouncer.Add(event.Name)
}

// addTree watches dir and every directory below it.
func (tw *TreeWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory removed while walking is not an error for the watcher.
			if errors.Is(err, fs.ErrNotExist) && path != dir {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := tw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		tw.logger.Debug("watching directory", zap.String("path", path))
		return nil
	})
}

// shouldIgnore checks if a changed path should be ignored
func (tw *TreeWatcher) shouldIgnore(path string) bool {
	if _, ok := tw.ignorePaths[absPath(path)]; ok {
		return true
	}

	base := filepath.Base(path)
	for _, pattern := range tw.ignore {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// Debouncer collects changed paths and hands them to a callback once no new
// path has arrived for the configured duration.
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	files    map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
	stopped  bool
}

// NewDebouncer creates a new debouncer instance
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		files:    make(map[string]struct{}),
	}
}

// Add records a changed path and restarts the quiet period.
func (d *Debouncer) Add(file string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}
	d.files[file] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

// flush triggers the callback with accumulated files. The callback runs
// without the lock held so Add never waits on a slow handler.
func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.files) == 0 || d.stopped {
		d.mutex.Unlock()
		return
	}
	files := make([]string, 0, len(d.files))
	for file := range d.files {
		files = append(files, file)
	}
	d.files = make(map[string]struct{})
	callback := d.callback
	d.mutex.Unlock()

	if callback != nil {
		callback(files)
	}
}

// SetCallback sets the callback function
func (d *Debouncer) SetCallback(callback func([]string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop cancels a pending flush. Paths added afterwards are dropped.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.stopped = true
}
