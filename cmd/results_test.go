package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/portfolioopt/internal/opt"
	"github.com/cwbudde/portfolioopt/internal/store"
)

func saveTestRecord(t *testing.T, s store.Store, runID string, age time.Duration) {
	t.Helper()
	rec := store.NewRecord(runID, store.RunConfig{Problem: "l1-2d", Dim: 2, Engine: "compass", Params: opt.DefaultParams()},
		[]float64{2, 8}, 0, 5, 100, 3, "x=2 y=8")
	rec.Timestamp = time.Now().Add(-age)
	require.NoError(t, s.SaveRecord(runID, rec))
}

func ids(infos []store.RecordInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.RunID
	}
	return out
}

func TestSelectRecordsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRecordsForDeletion(infos, 0, 7, now)

	assert.Equal(t, []string{"run4", "run1"}, ids(toDelete))
}

func TestSelectRecordsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRecordsForDeletion(infos, 2, 0, now)

	assert.Equal(t, []string{"run4", "run1"}, ids(toDelete))
}

func TestSelectRecordsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
		{RunID: "run5", Timestamp: now.AddDate(0, 0, -2)},
	}

	toDelete := selectRecordsForDeletion(infos, 2, 7, now)

	// Age removes run4 and run1; keeping two removes run2 as well.
	assert.Equal(t, []string{"run4", "run1", "run2"}, ids(toDelete))
}

func TestSelectRecordsForDeletion_NothingToDo(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{{RunID: "run1", Timestamp: now}}

	assert.Empty(t, selectRecordsForDeletion(infos, 5, 7, now))
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()
	content := []byte("Hello, World!")
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test.txt"), content, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "sub", "more.txt"), content, 0644))

	size, err := getDirSize(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, int64(2*len(content)), size)

	_, err = getDirSize(filepath.Join(tmpDir, "missing"))
	assert.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatBytes(tt.bytes), "formatBytes(%d)", tt.bytes)
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "0123456789ab...", shortID("0123456789abcdef"))
}

func TestResultsList_Empty(t *testing.T) {
	out, err := execute(newResultsCmd(), "list", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No stored runs found.")
}

func TestResultsList_WithRecords(t *testing.T) {
	dataDir := t.TempDir()
	fsStore, err := store.NewFSStore(dataDir)
	require.NoError(t, err)
	saveTestRecord(t, fsStore, "run-a", time.Hour)
	saveTestRecord(t, fsStore, "run-b", time.Minute)

	out, err := execute(newResultsCmd(), "list", "--data-dir", dataDir)
	require.NoError(t, err)

	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, "Total runs: 2")
	assert.Less(t, strings.Index(out, "run-b"), strings.Index(out, "run-a"), "newest first")
}

func TestResultsShow(t *testing.T) {
	dataDir := t.TempDir()
	fsStore, err := store.NewFSStore(dataDir)
	require.NoError(t, err)
	saveTestRecord(t, fsStore, "run-a", 0)

	sink, err := fsStore.OpenTrace("run-a")
	require.NoError(t, err)
	require.NoError(t, sink.Write(store.TraceEntry{Seq: 1, Score: 0.5}))
	require.NoError(t, sink.Close())

	out, err := execute(newResultsCmd(), "show", "run-a", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, `"runId": "run-a"`)
	assert.NotContains(t, out, `"trace"`)

	out, err = execute(newResultsCmd(), "show", "run-a", "--trace", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, `"trace"`)

	_, err = execute(newResultsCmd(), "show", "missing", "--data-dir", dataDir)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResultsClean_NoFlags(t *testing.T) {
	_, err := execute(newResultsCmd(), "clean", "--data-dir", t.TempDir())
	assert.ErrorContains(t, err, "must specify either --keep-last or --older-than")
}

func TestResultsClean_WithForce(t *testing.T) {
	dataDir := t.TempDir()
	fsStore, err := store.NewFSStore(dataDir)
	require.NoError(t, err)
	saveTestRecord(t, fsStore, "old-run", 30*24*time.Hour)
	saveTestRecord(t, fsStore, "new-run", time.Minute)

	out, err := execute(newResultsCmd(), "clean", "--older-than", "7", "--force", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 run(s), 0 failed.")

	_, err = fsStore.LoadRecord("old-run")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = fsStore.LoadRecord("new-run")
	assert.NoError(t, err)
}

func TestResultsClean_Aborted(t *testing.T) {
	dataDir := t.TempDir()
	fsStore, err := store.NewFSStore(dataDir)
	require.NoError(t, err)
	saveTestRecord(t, fsStore, "old-run", 30*24*time.Hour)

	cmd := newResultsCmd()
	cmd.SetIn(strings.NewReader("n\n"))
	out, err := execute(cmd, "clean", "--keep-last", "0", "--older-than", "7", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	_, err = fsStore.LoadRecord("old-run")
	assert.NoError(t, err)
}
