// Package history keeps the most recently submitted inputs.
//
// The log holds at most Max distinct strings, newest first. Recording a
// string that is already present moves it to the front. The list is stored
// msgpack-encoded under a single key of a kv.Store; storage failures are
// logged and never returned, and an unreadable list loads as empty.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/explainer/pkg/kv"
)

// DefaultMax is the number of entries kept when Config.Max is zero.
const DefaultMax = 20

// DefaultKey is where the list is stored when Config.Key is nil.
var DefaultKey = kv.Key{"history", "inputs"}

// Config configures a Log.
type Config struct {
	// Store persists the list. Required.
	Store kv.Store

	Key    kv.Key
	Max    int
	Logger *slog.Logger
}

// Log is a bounded most-recently-used list of inputs. It is safe for
// concurrent use.
type Log struct {
	store  kv.Store
	key    kv.Key
	max    int
	logger *slog.Logger

	mu sync.Mutex
}

type record struct {
	Entries []string `msgpack:"entries"`
}

// New returns a Log over cfg.Store.
func New(cfg Config) *Log {
	l := &Log{
		store:  cfg.Store,
		key:    cfg.Key,
		max:    cfg.Max,
		logger: cfg.Logger,
	}
	if l.key == nil {
		l.key = DefaultKey
	}
	if l.max <= 0 {
		l.max = DefaultMax
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Load returns the stored entries, newest first. It returns an empty slice
// when nothing is stored or the stored form cannot be read.
func (l *Log) Load(ctx context.Context) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Record moves entry to the front of the list, drops entries beyond the
// limit, persists the list and returns it.
func (l *Log) Record(ctx context.Context, entry string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := push(l.load(ctx), entry, l.max)
	l.save(ctx, entries)
	return entries
}

// Clear removes every entry.
func (l *Log) Clear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Delete(ctx, l.key); err != nil {
		l.logger.Warn("history: clear failed", "key", l.key.String(), "err", err)
	}
}

func (l *Log) load(ctx context.Context) []string {
	data, err := l.store.Get(ctx, l.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			l.logger.Warn("history: load failed", "key", l.key.String(), "err", err)
		}
		return []string{}
	}
	var r record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		l.logger.Warn("history: stored list is unreadable, starting empty", "key", l.key.String(), "err", err)
		return []string{}
	}
	return normalize(r.Entries, l.max)
}

func (l *Log) save(ctx context.Context, entries []string) {
	data, err := msgpack.Marshal(record{Entries: entries})
	if err != nil {
		l.logger.Warn("history: encode failed", "err", err)
		return
	}
	if err := l.store.Set(ctx, l.key, data); err != nil {
		l.logger.Warn("history: save failed", "key", l.key.String(), "err", err)
	}
}

// push puts entry first, removing its earlier occurrence, and truncates to max.
func push(entries []string, entry string, max int) []string {
	out := make([]string, 0, min(len(entries)+1, max))
	out = append(out, entry)
	for _, e := range entries {
		if len(out) == max {
			break
		}
		if e != entry {
			out = append(out, e)
		}
	}
	return out
}

// normalize drops duplicates (keeping the first) and entries beyond max.
func normalize(entries []string, max int) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, min(len(entries), max))
	for _, e := range entries {
		if len(out) == max {
			break
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
