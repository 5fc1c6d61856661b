package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTraceFile(t *testing.T, runDir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(runDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, traceFile), []byte(content), 0644))
}

func TestTrace_WriteAndLoad(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")

	tw, err := createTrace(runDir)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	entries := []TraceEntry{
		{Seq: 1, Score: 18, Timestamp: now, Params: []float64{5, 6}},
		{Seq: 2, Score: 4.5, Timestamp: now.Add(time.Millisecond), Params: []float64{3, 7.5}},
		{Seq: 3, Score: 0, Timestamp: now.Add(2 * time.Millisecond)},
	}
	for _, e := range entries {
		require.NoError(t, tw.Write(e))
	}
	require.NoError(t, tw.Close())

	got, err := loadTraceFile(runDir, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, e := range entries {
		assert.Equal(t, e.Seq, got[i].Seq)
		assert.Equal(t, e.Score, got[i].Score)
		assert.True(t, e.Timestamp.Equal(got[i].Timestamp))
		assert.Equal(t, e.Params, got[i].Params)
	}
}

func TestTrace_CreateTruncates(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")

	tw, err := createTrace(runDir)
	require.NoError(t, err)
	require.NoError(t, tw.Write(TraceEntry{Seq: 1, Score: 9}))
	require.NoError(t, tw.Write(TraceEntry{Seq: 2, Score: 8}))
	require.NoError(t, tw.Close())

	tw, err = createTrace(runDir)
	require.NoError(t, err)
	require.NoError(t, tw.Write(TraceEntry{Seq: 1, Score: 20}))
	require.NoError(t, tw.Close())

	got, err := loadTraceFile(runDir, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 20.0, got[0].Score)
}

func TestTrace_RejectsOutOfOrderEntries(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")

	tw, err := createTrace(runDir)
	require.NoError(t, err)
	require.NoError(t, tw.Write(TraceEntry{Seq: 1, Score: 5}))

	tests := []struct {
		name  string
		entry TraceEntry
		want  string
	}{
		{"skipped seq", TraceEntry{Seq: 3, Score: 1}, "does not follow entry 1"},
		{"repeated seq", TraceEntry{Seq: 1, Score: 1}, "does not follow entry 1"},
		{"equal score", TraceEntry{Seq: 2, Score: 5}, "does not improve on 5"},
		{"worse score", TraceEntry{Seq: 2, Score: 6}, "does not improve on 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tw.Write(tt.entry)
			var oerr *OrderError
			require.ErrorAs(t, err, &oerr)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	// A rejected entry does not advance the trace.
	require.NoError(t, tw.Write(TraceEntry{Seq: 2, Score: 4}))
	require.NoError(t, tw.Close())

	got, err := loadTraceFile(runDir, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTrace_WriteAfterClose(t *testing.T) {
	tw, err := createTrace(filepath.Join(t.TempDir(), "run-1"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, tw.Close())

	assert.ErrorContains(t, tw.Write(TraceEntry{Seq: 1, Score: 1}), "closed")
}

func TestTrace_BufferedUntilClose(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")

	tw, err := createTrace(runDir)
	require.NoError(t, err)
	require.NoError(t, tw.Write(TraceEntry{Seq: 1, Score: 1}))

	info, err := os.Stat(filepath.Join(runDir, traceFile))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	require.NoError(t, tw.Close())

	info, err = os.Stat(filepath.Join(runDir, traceFile))
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestTrace_ConcurrentWritersKeepOrder(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")

	tw, err := createTrace(runDir)
	require.NoError(t, err)

	// Writers race for the next slot; only in-order entries are accepted.
	var mu sync.Mutex
	next := 1
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				seq := next
				if seq > 50 {
					mu.Unlock()
					return
				}
				next++
				err := tw.Write(TraceEntry{Seq: seq, Score: float64(100 - seq)})
				mu.Unlock()
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, tw.Close())

	got, err := loadTraceFile(runDir, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 50)
	for i, e := range got {
		assert.Equal(t, i+1, e.Seq)
	}
}

func TestLoadTraceFile_NotFound(t *testing.T) {
	_, err := loadTraceFile(filepath.Join(t.TempDir(), "missing"), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadTraceFile_Empty(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")
	writeTraceFile(t, runDir, "")

	got, err := loadTraceFile(runDir, "run-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadTraceFile_MalformedLine(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")
	writeTraceFile(t, runDir, "{\"seq\":1,\"score\":1}\nnope\n{\"seq\":2,\"score\":0}\n")

	_, err := loadTraceFile(runDir, "run-1")
	assert.ErrorContains(t, err, "malformed trace line 2")
}

func TestLoadTraceFile_DropsTornFinalLine(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")
	writeTraceFile(t, runDir, "{\"seq\":1,\"score\":3}\n{\"seq\":2,\"score\":1}\n{\"seq\":3,\"sc")

	got, err := loadTraceFile(runDir, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].Seq)
}

func TestLoadTraceFile_FinalLineWithoutNewline(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")
	writeTraceFile(t, runDir, "{\"seq\":1,\"score\":3}\n\n{\"seq\":2,\"score\":1}")

	got, err := loadTraceFile(runDir, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLoadTraceFile_LongLines(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")

	params := make([]float64, 100000)
	for i := range params {
		params[i] = float64(i) + 0.123456789
	}

	tw, err := createTrace(runDir)
	require.NoError(t, err)
	require.NoError(t, tw.Write(TraceEntry{Seq: 1, Score: 1, Params: params}))
	require.NoError(t, tw.Close())

	raw, err := os.ReadFile(filepath.Join(runDir, traceFile))
	require.NoError(t, err)
	require.Greater(t, len(raw), 1024*1024)
	assert.Equal(t, 1, strings.Count(string(raw), "\n"))

	got, err := loadTraceFile(runDir, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, params, got[0].Params)
}
