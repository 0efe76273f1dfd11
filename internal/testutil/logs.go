package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// LogRecorder is a slog.Handler that keeps every record.
type LogRecorder struct {
	mu      sync.Mutex
	records []slog.Record
}

// Logger returns a logger writing to r.
func (r *LogRecorder) Logger() *slog.Logger { return slog.New(r) }

func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec.Clone())

	return nil
}

func (r *LogRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *LogRecorder) WithGroup(string) slog.Handler      { return r }

// Records returns a copy of the captured records.
func (r *LogRecorder) Records() []slog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]slog.Record(nil), r.records...)
}

// AtLevel returns the captured records with exactly the given level.
func (r *LogRecorder) AtLevel(level slog.Level) []slog.Record {
	var out []slog.Record
	for _, rec := range r.Records() {
		if rec.Level == level {
			out = append(out, rec)
		}
	}

	return out
}

// Attrs flattens the attributes of rec into a map.
func Attrs(rec slog.Record) map[string]any {
	m := make(map[string]any)
	rec.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})

	return m
}
