// Package audit records what the transaction builders did, in order, for
// later inspection.
package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level of an audit entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one audit record. Seq and Timestamp are assigned on append.
type Entry struct {
	Seq       uint64                 `json:"seq"`
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	RequestID string                 `json:"request_id,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Stage     string                 `json:"stage,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Log is the append-only handle passed to builders.
type Log interface {
	Append(e Entry) error
}

// Sink durably stores entries in sequence order.
type Sink interface {
	Write(e Entry) error
	Close() error
}

// Recorder is a Log safe for concurrent use. Appends are serialized: each
// entry gets the next sequence number and reaches the sink before the next
// append starts. The most recent entries are kept in memory.
type Recorder struct {
	mu      sync.Mutex
	seq     uint64
	recent  []Entry
	maxKeep int
	sink    Sink
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSink stores every entry in s.
func WithSink(s Sink) Option {
	return func(r *Recorder) { r.sink = s }
}

// WithRetention bounds the in-memory history.
func WithRetention(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxKeep = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithStartSeq continues numbering after a replayed history.
func WithStartSeq(seq uint64) Option {
	return func(r *Recorder) { r.seq = seq }
}

// NewRecorder creates a recorder that mirrors entries to logger.
func NewRecorder(logger *zap.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		maxKeep: 1024,
		sink:    NopSink{},
		logger:  logger.Named("audit"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append records e. The entry is kept in memory even when the sink fails;
// the sink error is returned.
func (r *Recorder) Append(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	e.Fields = copyFields(e.Fields)

	r.recent = append(r.recent, e)
	if len(r.recent) > r.maxKeep {
		r.recent = append(r.recent[:0:0], r.recent[len(r.recent)-r.maxKeep:]...)
	}
	r.mirror(e)

	if err := r.sink.Write(e); err != nil {
		r.logger.Error("Failed to write audit entry", zap.Uint64("seq", e.Seq), zap.Error(err))
		return err
	}
	return nil
}

// Entries returns a copy of the retained history, oldest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.recent))
	for i, e := range r.recent {
		e.Fields = copyFields(e.Fields)
		out[i] = e
	}
	return out
}

// Close closes the sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink.Close()
}

func (r *Recorder) mirror(e Entry) {
	fields := []zap.Field{
		zap.Uint64("seq", e.Seq),
		zap.String("request_id", e.RequestID),
		zap.String("action", e.Action),
		zap.String("stage", e.Stage),
	}
	if len(e.Fields) > 0 {
		fields = append(fields, zap.Any("fields", e.Fields))
	}
	switch e.Level {
	case LevelError:
		r.logger.Error(e.Message, fields...)
	case LevelWarn:
		r.logger.Warn(e.Message, fields...)
	default:
		r.logger.Info(e.Message, fields...)
	}
}

func copyFields(f map[string]interface{}) map[string]interface{} {
	if len(f) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// NopSink discards entries.
type NopSink struct{}

func (NopSink) Write(Entry) error { return nil }
func (NopSink) Close() error      { return nil }
