package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/portfolioopt/internal/opt"
)

func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	require.NoError(t, err)

	return store, tempDir
}

func createTestRecord(runID string) *Record {
	params := opt.DefaultParams()
	params.LowerBound, params.UpperBound = -10, 10
	params.PortfolioCopies = 4

	return &Record{
		RunID:          runID,
		BestParams:     []float64{2.0001, 7.9998},
		BestScore:      0.0003,
		ArchetypeScore: 5,
		Evaluations:    4200,
		Improvements:   17,
		Summary:        "(2.0001, 7.9998)",
		Timestamp:      time.Now(),
		Config: RunConfig{
			Problem: "l1-2d",
			Dim:     2,
			Engine:  "compass",
			Seed:    42,
			Params:  params,
		},
	}
}

func TestNewFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.BaseDir())
	assert.DirExists(t, dir)
}

func TestSaveRecord(t *testing.T) {
	store, tempDir := setupTestStore(t)

	require.NoError(t, store.SaveRecord("run-1", createTestRecord("run-1")))

	path := filepath.Join(tempDir, "runs", "run-1", "record.json")
	assert.FileExists(t, path)
	assert.NoFileExists(t, path+".tmp")
}

func TestSaveRecord_InvalidArguments(t *testing.T) {
	store, _ := setupTestStore(t)

	assert.Error(t, store.SaveRecord("", createTestRecord("x")))
	assert.Error(t, store.SaveRecord("run-1", nil))
}

func TestSaveRecord_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	first := createTestRecord("run-1")
	first.BestScore = 0.5
	second := createTestRecord("run-1")
	second.BestScore = 0.1

	require.NoError(t, store.SaveRecord("run-1", first))
	require.NoError(t, store.SaveRecord("run-1", second))

	loaded, err := store.LoadRecord("run-1")
	require.NoError(t, err)
	assert.Equal(t, 0.1, loaded.BestScore)
}

func TestLoadRecord_RoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	original := createTestRecord("run-1")

	require.NoError(t, store.SaveRecord("run-1", original))

	loaded, err := store.LoadRecord("run-1")
	require.NoError(t, err)

	assert.Equal(t, original.RunID, loaded.RunID)
	assert.Equal(t, original.BestParams, loaded.BestParams)
	assert.Equal(t, original.BestScore, loaded.BestScore)
	assert.Equal(t, original.ArchetypeScore, loaded.ArchetypeScore)
	assert.Equal(t, original.Config, loaded.Config)
	assert.True(t, original.Timestamp.Equal(loaded.Timestamp))
	assert.NoError(t, loaded.Validate())
}

func TestLoadRecord_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadRecord("missing")
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.RunID)
}

func TestLoadRecord_Corrupted(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, os.MkdirAll(store.RunDir("bad"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(store.RunDir("bad"), "record.json"), []byte("{not json"), 0644))

	_, err := store.LoadRecord("bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestListRecords_Empty(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListRecords()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestListRecords_NewestFirst(t *testing.T) {
	store, _ := setupTestStore(t)

	base := time.Now()
	for i := 0; i < 3; i++ {
		rec := createTestRecord(fmt.Sprintf("run-%d", i))
		rec.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveRecord(rec.RunID, rec))
	}

	infos, err := store.ListRecords()
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, "run-2", infos[0].RunID)
	assert.Equal(t, "run-1", infos[1].RunID)
	assert.Equal(t, "run-0", infos[2].RunID)

	assert.Equal(t, "l1-2d", infos[0].Problem)
	assert.Equal(t, 2, infos[0].Dim)
	assert.Equal(t, 4, infos[0].Copies)
}

func TestListRecords_SkipsTraceOnlyAndCorrupted(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.SaveRecord("good", createTestRecord("good")))

	sink, err := store.OpenTrace("in-progress")
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	require.NoError(t, os.MkdirAll(store.RunDir("broken"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(store.RunDir("broken"), "record.json"), []byte("garbage"), 0644))

	infos, err := store.ListRecords()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "good", infos[0].RunID)
}

func TestDeleteRecord(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.SaveRecord("run-1", createTestRecord("run-1")))
	sink, err := store.OpenTrace("run-1")
	require.NoError(t, err)
	require.NoError(t, sink.Write(TraceEntry{Seq: 1, Score: 1, Timestamp: time.Now()}))
	require.NoError(t, sink.Close())

	require.NoError(t, store.DeleteRecord("run-1"))

	assert.NoDirExists(t, store.RunDir("run-1"))
	_, err = store.LoadRecord("run-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.LoadTrace("run-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRecord_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	assert.ErrorIs(t, store.DeleteRecord("missing"), ErrNotFound)
	assert.Error(t, store.DeleteRecord(""))
}

func TestOpenTrace_ReplacesPreviousTrace(t *testing.T) {
	store, _ := setupTestStore(t)

	sink, err := store.OpenTrace("run-1")
	require.NoError(t, err)
	require.NoError(t, sink.Write(TraceEntry{Seq: 1, Score: 9}))
	require.NoError(t, sink.Write(TraceEntry{Seq: 2, Score: 8}))
	require.NoError(t, sink.Close())

	sink, err = store.OpenTrace("run-1")
	require.NoError(t, err)
	require.NoError(t, sink.Write(TraceEntry{Seq: 1, Score: 3}))
	require.NoError(t, sink.Close())

	entries, err := store.LoadTrace("run-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3.0, entries[0].Score)
}

func TestConcurrentSaves(t *testing.T) {
	store, _ := setupTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("run-%d", i)
			assert.NoError(t, store.SaveRecord(id, createTestRecord(id)))
		}(i)
	}
	wg.Wait()

	infos, err := store.ListRecords()
	require.NoError(t, err)
	assert.Len(t, infos, 10)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore("fs", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)
	assert.NoError(t, CloseIfSupported(s))

	s, err = NewStore("", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)

	_, err = NewStore("etcd", t.TempDir())
	assert.ErrorContains(t, err, "unsupported store backend")
	assert.ErrorContains(t, err, "fs, sqlite")
}
