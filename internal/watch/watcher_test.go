package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeRecorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *changeRecorder) record(files []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, files)
	return nil
}

func (r *changeRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func TestTreeWatcher_DetectsWrites(t *testing.T) {
	root := t.TempDir()
	testFile := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("initial"), 0644))

	rec := &changeRecorder{}
	watcher, err := NewTreeWatcher(root, Options{Debounce: 50 * time.Millisecond}, rec.record)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.Start())

	require.NoError(t, os.WriteFile(testFile, []byte("modified"), 0644))

	assert.Eventually(t, func() bool { return contains(rec.all(), testFile) },
		2*time.Second, 20*time.Millisecond)
}

func TestTreeWatcher_WatchesNestedAndNewDirectories(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "sub", "deeper")
	require.NoError(t, os.MkdirAll(nested, 0755))

	rec := &changeRecorder{}
	watcher, err := NewTreeWatcher(root, Options{Debounce: 50 * time.Millisecond}, rec.record)
	require.NoError(t, err)
	defer watcher.Stop()
	require.NoError(t, watcher.Start())

	existing := filepath.Join(nested, "b.bin")
	require.NoError(t, os.WriteFile(existing, []byte{1, 2, 3}, 0644))
	assert.Eventually(t, func() bool { return contains(rec.all(), existing) },
		2*time.Second, 20*time.Millisecond)

	fresh := filepath.Join(root, "fresh")
	require.NoError(t, os.Mkdir(fresh, 0755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	inFresh := filepath.Join(fresh, "c.txt")
	require.NoError(t, os.WriteFile(inFresh, []byte("c"), 0644))
	assert.Eventually(t, func() bool { return contains(rec.all(), inFresh) },
		2*time.Second, 20*time.Millisecond)
}

func TestTreeWatcher_ShouldIgnore(t *testing.T) {
	root := t.TempDir()
	bundle := filepath.Join(root, "out.rsrc")

	watcher, err := NewTreeWatcher(root, Options{
		Ignore:      []string{"*.swp", ".DS_Store"},
		IgnorePaths: []string{bundle, bundle + "-journal"},
	}, func([]string) error { return nil })
	require.NoError(t, err)
	defer watcher.Stop()

	tests := []struct {
		path     string
		expected bool
	}{
		{filepath.Join(root, "a.txt"), false},
		{filepath.Join(root, ".hidden"), false},
		{filepath.Join(root, "sub", "x.swp"), true},
		{filepath.Join(root, ".DS_Store"), true},
		{bundle, true},
		{bundle + "-journal", true},
		{filepath.Join(root, "sub", "out.rsrc"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, watcher.shouldIgnore(tt.path), "shouldIgnore(%q)", tt.path)
	}
}

func TestTreeWatcher_StartMissingRoot(t *testing.T) {
	watcher, err := NewTreeWatcher(filepath.Join(t.TempDir(), "missing"), Options{}, func([]string) error { return nil })
	require.NoError(t, err)
	defer watcher.Stop()

	assert.Error(t, watcher.Start())
}

func TestTreeWatcher_StopTwice(t *testing.T) {
	watcher, err := NewTreeWatcher(t.TempDir(), Options{}, func([]string) error { return nil })
	require.NoError(t, err)
	require.NoError(t, watcher.Start())

	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}

func TestDebouncer_Add(t *testing.T) {
	var mu sync.Mutex
	var calls int
	var files []string

	debouncer := NewDebouncer(30 * time.Millisecond)
	debouncer.SetCallback(func(f []string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		files = f
	})

	debouncer.Add("a.txt")
	debouncer.Add("b.txt")
	debouncer.Add("a.txt") // Duplicate

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, files)
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	var mu sync.Mutex
	called := false

	debouncer := NewDebouncer(30 * time.Millisecond)
	debouncer.SetCallback(func([]string) {
		mu.Lock()
		defer mu.Unlock()
		called = true
	})

	debouncer.Add("a.txt")
	debouncer.Stop()
	debouncer.Add("b.txt")
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, called)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
