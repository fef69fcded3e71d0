package bundle

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// writeTree creates files under root; keys use forward slashes.
func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, content, 0644))
	}
}

func readResources(t *testing.T, bundlePath string) map[string][]byte {
	t.Helper()
	db, err := sql.Open("sqlite3", bundlePath)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query("SELECT name, content FROM resources")
	require.NoError(t, err)
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var name string
		var content []byte
		require.NoError(t, rows.Scan(&name, &content))
		out[name] = content
	}
	require.NoError(t, rows.Err())
	return out
}

func readMetadata(t *testing.T, bundlePath string) map[string]string {
	t.Helper()
	db, err := sql.Open("sqlite3", bundlePath)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query("SELECT name, value FROM metadata")
	require.NoError(t, err)
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		require.NoError(t, rows.Scan(&name, &value))
		out[name] = value
	}
	require.NoError(t, rows.Err())
	return out
}

func progressLines(buf *bytes.Buffer) []string {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	sort.Strings(lines)
	return lines
}

func fixedClock(ts string) func() time.Time {
	return func() time.Time {
		t, err := time.ParseInLocation(CreatedAtLayout, ts, time.Local)
		if err != nil {
			panic(err)
		}
		return t
	}
}

func TestPack_ExampleTree(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{
		"a.txt":     []byte("hello"),
		"sub/b.bin": {0x01, 0x02, 0x03},
	})
	bundlePath := filepath.Join(t.TempDir(), "default.rsrc")

	var progress bytes.Buffer
	res, err := Pack(context.Background(), input, bundlePath, Options{
		Progress: &progress,
		Now:      fixedClock("2026-10-15 09:30:00"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Resources)
	assert.Equal(t, int64(8), res.Bytes)
	assert.Equal(t, "2026-10-15 09:30:00", res.CreatedAt)

	resources := readResources(t, bundlePath)
	assert.Equal(t, map[string][]byte{
		"a.txt":                         []byte("hello"),
		filepath.Join("sub", "b.bin"): {0x01, 0x02, 0x03},
	}, resources)

	meta := readMetadata(t, bundlePath)
	assert.Equal(t, map[string]string{CreatedAtKey: "2026-10-15 09:30:00"}, meta)

	assert.Equal(t, []string{"a.txt", filepath.Join("sub", "b.bin")}, progressLines(&progress))
}

func TestPack_SchemaAndIndex(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{"x": []byte("1")})
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	_, err := Pack(context.Background(), input, bundlePath, Options{})
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", bundlePath)
	require.NoError(t, err)
	defer db.Close()

	var tableSQL string
	require.NoError(t, db.QueryRow(
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'resources'").Scan(&tableSQL))
	assert.Contains(t, tableSQL, "name TEXT NOT NULL UNIQUE PRIMARY KEY, content BLOB")

	require.NoError(t, db.QueryRow(
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'metadata'").Scan(&tableSQL))
	assert.Contains(t, tableSQL, "value TEXT")

	var indexTable string
	require.NoError(t, db.QueryRow(
		"SELECT tbl_name FROM sqlite_master WHERE type = 'index' AND name = ?", ResourcesIndex).Scan(&indexTable))
	assert.Equal(t, ResourcesTable, indexTable)
}

func TestPack_HiddenAndNestedEntries(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{
		".hidden":             []byte("h"),
		".dir/inner.txt":      []byte("i"),
		"deep/er/still/f.dat": []byte("f"),
	})
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	res, err := Pack(context.Background(), input, bundlePath, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Resources)

	resources := readResources(t, bundlePath)
	assert.Contains(t, resources, ".hidden")
	assert.Contains(t, resources, filepath.Join(".dir", "inner.txt"))
	assert.Contains(t, resources, filepath.Join("deep", "er", "still", "f.dat"))
}

func TestPack_ZeroByteFile(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{"empty": {}})
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	_, err := Pack(context.Background(), input, bundlePath, Options{})
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", bundlePath)
	require.NoError(t, err)
	defer db.Close()

	var isNull bool
	var length int
	require.NoError(t, db.QueryRow(
		"SELECT content IS NULL, length(content) FROM resources WHERE name = 'empty'").Scan(&isNull, &length))
	assert.False(t, isNull)
	assert.Equal(t, 0, length)
}

func TestPack_EmptyDirectory(t *testing.T) {
	input := t.TempDir()
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	var progress bytes.Buffer
	res, err := Pack(context.Background(), input, bundlePath, Options{Progress: &progress})
	require.NoError(t, err)

	assert.Zero(t, res.Resources)
	assert.Empty(t, readResources(t, bundlePath))
	assert.Contains(t, readMetadata(t, bundlePath), CreatedAtKey)
	assert.Empty(t, progress.String())
}

func TestPack_RerunIsIdempotent(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{
		"a.txt":     []byte("hello"),
		"sub/b.bin": {0x01, 0x02, 0x03},
	})
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")
	ctx := context.Background()

	_, err := Pack(ctx, input, bundlePath, Options{Now: fixedClock("2026-10-15 09:00:00")})
	require.NoError(t, err)
	first := readResources(t, bundlePath)

	_, err = Pack(ctx, input, bundlePath, Options{Now: fixedClock("2026-10-15 10:00:00")})
	require.NoError(t, err)
	second := readResources(t, bundlePath)

	assert.Equal(t, first, second)

	meta := readMetadata(t, bundlePath)
	assert.Len(t, meta, 1)
	assert.Equal(t, "2026-10-15 10:00:00", meta[CreatedAtKey])
}

func TestPack_ModifiedFileUpdatesOnlyItsRecord(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{
		"a.txt": []byte("hello"),
		"b.txt": []byte("world"),
	})
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")
	ctx := context.Background()

	_, err := Pack(ctx, input, bundlePath, Options{})
	require.NoError(t, err)

	writeTree(t, input, map[string][]byte{"a.txt": []byte("goodbye")})
	_, err = Pack(ctx, input, bundlePath, Options{})
	require.NoError(t, err)

	resources := readResources(t, bundlePath)
	assert.Equal(t, []byte("goodbye"), resources["a.txt"])
	assert.Equal(t, []byte("world"), resources["b.txt"])
	assert.Len(t, resources, 2)
}

func TestPack_RemovedFileRecordPersists(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{
		"keep.txt": []byte("keep"),
		"gone.txt": []byte("gone"),
	})
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")
	ctx := context.Background()

	_, err := Pack(ctx, input, bundlePath, Options{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(input, "gone.txt")))

	var progress bytes.Buffer
	res, err := Pack(ctx, input, bundlePath, Options{Progress: &progress})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resources)
	assert.Equal(t, []string{"keep.txt"}, progressLines(&progress))

	// Stale records are never deleted.
	resources := readResources(t, bundlePath)
	assert.Equal(t, []byte("gone"), resources["gone.txt"])
	assert.Equal(t, []byte("keep"), resources["keep.txt"])
}

func TestPack_SmallBatches(t *testing.T) {
	input := t.TempDir()
	files := make(map[string][]byte)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		files[name] = []byte(name + name)
	}
	writeTree(t, input, files)
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	res, err := Pack(context.Background(), input, bundlePath, Options{BatchSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Resources)
	assert.Equal(t, files, readResources(t, bundlePath))
}

func TestPack_MissingInputDirectory(t *testing.T) {
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	_, err := Pack(context.Background(), filepath.Join(t.TempDir(), "nope"), bundlePath, Options{})
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err), "expected not-exist error, got %v", err)
}

func TestPack_InputIsAFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"file.txt": []byte("x")})

	_, err := Pack(context.Background(), filepath.Join(dir, "file.txt"),
		filepath.Join(t.TempDir(), "out.rsrc"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestPack_UnwritableBundlePath(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{"a.txt": []byte("hello")})
	bundlePath := filepath.Join(t.TempDir(), "missing-dir", "out.rsrc")

	var progress bytes.Buffer
	_, err := Pack(context.Background(), input, bundlePath, Options{Progress: &progress})
	require.Error(t, err)
	assert.Empty(t, progress.String(), "no file should be processed before the store opens")
}

func TestPack_FailureMidWalkKeepsEarlierRecords(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{"a.txt": []byte("hello")})
	// WalkDir visits entries in lexical order, so the dangling link comes last.
	require.NoError(t, os.Symlink(filepath.Join(input, "no-such-target"), filepath.Join(input, "z-broken")))
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	_, err := Pack(context.Background(), input, bundlePath, Options{})
	require.Error(t, err)

	resources := readResources(t, bundlePath)
	assert.Equal(t, map[string][]byte{"a.txt": []byte("hello")}, resources)
	assert.Empty(t, readMetadata(t, bundlePath), "created_at is only stamped after a full walk")
}

func TestPack_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{"real/file.txt": []byte("target")})
	require.NoError(t, os.Symlink(filepath.Join(input, "real", "file.txt"), filepath.Join(input, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(input, "real"), filepath.Join(input, "linkdir")))
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	res, err := Pack(context.Background(), input, bundlePath, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Resources)

	resources := readResources(t, bundlePath)
	assert.Equal(t, []byte("target"), resources["link.txt"])
	assert.Equal(t, []byte("target"), resources[filepath.Join("real", "file.txt")])
	assert.NotContains(t, resources, "linkdir")
}

func TestPack_InputRootIsALink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	real := t.TempDir()
	writeTree(t, real, map[string][]byte{"a.txt": []byte("hello")})
	link := filepath.Join(t.TempDir(), "assets")
	require.NoError(t, os.Symlink(real, link))
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	_, err := Pack(context.Background(), link, bundlePath, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a.txt": []byte("hello")}, readResources(t, bundlePath))
}

func TestPack_CancelledContext(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{"a.txt": []byte("hello")})
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Pack(ctx, input, bundlePath, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPack_BundlePathIsTakenLiterally(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("'?' is not allowed in windows file names")
	}
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{"a.txt": []byte("hello")})

	for _, name := range []string{"res?v=2.rsrc", "build#1.rsrc", "50%41.rsrc", "a b?c#d.rsrc"} {
		t.Run(name, func(t *testing.T) {
			out := t.TempDir()
			bundlePath := filepath.Join(out, name)

			_, err := Pack(context.Background(), input, bundlePath, Options{})
			require.NoError(t, err)
			assert.FileExists(t, bundlePath)

			r, err := OpenReader(context.Background(), bundlePath)
			require.NoError(t, err)
			content, err := r.Get(context.Background(), "a.txt")
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), content)
			require.NoError(t, r.Close())

			entries, err := os.ReadDir(out)
			require.NoError(t, err)
			require.Len(t, entries, 1, "no other file may appear next to the bundle")
			assert.Equal(t, name, entries[0].Name())
		})
	}
}

func TestStoreDSN(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	tests := []struct {
		path     string
		readOnly bool
		want     string
	}{
		{"out.rsrc", false, "file:out.rsrc"},
		{"build/default.rsrc", true, "file:build/default.rsrc?mode=ro"},
		{"/tmp/res?v=2.rsrc", false, "file:///tmp/res%3Fv=2.rsrc"},
		{"/tmp/build#1.rsrc", true, "file:///tmp/build%231.rsrc?mode=ro"},
		{"50%.rsrc", false, "file:50%25.rsrc"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, storeDSN(tt.path, tt.readOnly))
		})
	}
}

type closedPipe struct{}

func (closedPipe) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestPack_ProgressWriteFailureStopsTheRun(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{
		"a.txt": []byte("hello"),
		"b.txt": []byte("world"),
	})
	bundlePath := filepath.Join(t.TempDir(), "out.rsrc")

	_, err := Pack(context.Background(), input, bundlePath, Options{Progress: closedPipe{}})
	require.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Empty(t, readResources(t, bundlePath), "a file that could not be reported is not stored")
	assert.Empty(t, readMetadata(t, bundlePath))
}

func TestPack_LogsEachResourceOnce(t *testing.T) {
	input := t.TempDir()
	writeTree(t, input, map[string][]byte{
		"a.txt":     []byte("hello"),
		"sub/b.bin": {0x01},
	})
	core, logs := observer.New(zapcore.DebugLevel)

	_, err := Pack(context.Background(), input, filepath.Join(t.TempDir(), "out.rsrc"), Options{Logger: zap.New(core)})
	require.NoError(t, err)

	stored := logs.FilterMessage("stored resource").All()
	require.Len(t, stored, 2)
	assert.Equal(t, "a.txt", stored[0].ContextMap()["name"])
	assert.Equal(t, 1, logs.FilterMessage("bundle written").Len())
}
