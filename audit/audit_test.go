package audit

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type failingSink struct{}

func (failingSink) Write(Entry) error { return errors.New("disk full") }
func (failingSink) Close() error      { return nil }

func TestRecorderAssignsSequence(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewRecorder(zaptest.NewLogger(t), WithClock(func() time.Time { return fixed }))

	require.NoError(t, r.Append(Entry{Action: "mint", Stage: "query", Message: "querying"}))
	require.NoError(t, r.Append(Entry{Action: "mint", Stage: "encode", Message: "encoded", Level: LevelWarn}))

	got := r.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(2), got[1].Seq)
	assert.Equal(t, fixed, got[0].Timestamp)
	assert.Equal(t, LevelInfo, got[0].Level)
	assert.Equal(t, LevelWarn, got[1].Level)
}

func TestRecorderEntriesAreCopies(t *testing.T) {
	r := NewRecorder(zaptest.NewLogger(t))
	fields := map[string]interface{}{"amount": "10"}
	require.NoError(t, r.Append(Entry{Message: "m", Fields: fields}))

	fields["amount"] = "changed"
	got := r.Entries()
	got[0].Fields["amount"] = "mutated"

	assert.Equal(t, "10", r.Entries()[0].Fields["amount"])
}

func TestRecorderRetention(t *testing.T) {
	r := NewRecorder(zaptest.NewLogger(t), WithRetention(3))
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Append(Entry{Message: fmt.Sprint(i)}))
	}
	got := r.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(5), got[2].Seq)
}

func TestRecorderConcurrentAppends(t *testing.T) {
	r := NewRecorder(zap.NewNop(), WithRetention(10_000))

	const workers, each = 16, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_ = r.Append(Entry{Action: fmt.Sprint(w), Message: fmt.Sprint(i)})
			}
		}(w)
	}
	wg.Wait()

	got := r.Entries()
	require.Len(t, got, workers*each)
	last := make(map[string]int)
	for i, e := range got {
		assert.Equal(t, uint64(i+1), e.Seq)
		var n int
		_, err := fmt.Sscan(e.Message, &n)
		require.NoError(t, err)
		if prev, ok := last[e.Action]; ok {
			assert.Greater(t, n, prev, "entries of one writer stay in order")
		}
		last[e.Action] = n
	}
}

func TestRecorderMirrorsToLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := NewRecorder(zap.New(core))

	require.NoError(t, r.Append(Entry{Level: LevelError, Action: "swap", Message: "swap failed"}))
	entries := logs.FilterMessage("swap failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "audit", entries[0].LoggerName)
}

func TestRecorderSinkFailure(t *testing.T) {
	r := NewRecorder(zaptest.NewLogger(t), WithSink(failingSink{}))
	err := r.Append(Entry{Message: "m"})
	assert.EqualError(t, err, "disk full")
	assert.Len(t, r.Entries(), 1)
}

func TestLevelDBSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit")
	sink, err := OpenLevelDB(path)
	require.NoError(t, err)

	r := NewRecorder(zaptest.NewLogger(t), WithSink(sink))
	for i := 0; i < 300; i++ {
		require.NoError(t, r.Append(Entry{Action: "build", Message: fmt.Sprint(i), Fields: map[string]interface{}{"i": i}}))
	}
	require.NoError(t, r.Close())

	sink, err = OpenLevelDB(path)
	require.NoError(t, err)
	defer sink.Close()

	last, err := sink.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), last)

	var seqs []uint64
	require.NoError(t, sink.Replay(func(e Entry) error {
		seqs = append(seqs, e.Seq)
		assert.Equal(t, fmt.Sprint(e.Seq-1), e.Message)
		return nil
	}))
	require.Len(t, seqs, 300)
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s)
	}

	resumed := NewRecorder(zaptest.NewLogger(t), WithSink(sink), WithStartSeq(last))
	require.NoError(t, resumed.Append(Entry{Message: "next"}))
	assert.Equal(t, uint64(301), resumed.Entries()[0].Seq)
}

func TestLevelDBSinkEmpty(t *testing.T) {
	sink, err := OpenLevelDB(filepath.Join(t.TempDir(), "audit"))
	require.NoError(t, err)
	defer sink.Close()

	last, err := sink.LastSeq()
	require.NoError(t, err)
	assert.Zero(t, last)
}
