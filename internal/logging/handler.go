package logging

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
)

const (
	// MaxDetailLength is the longest detail string kept before truncation.
	MaxDetailLength = 512

	// MaxRecent is the number of recent reports kept for the run summary.
	MaxRecent = 100
)

// Occurrence counts reports of one (kind, reason) pair.
type Occurrence struct {
	Kind   string
	Reason string
	Count  int
}

type reportKey struct {
	kind   string
	reason string
}

// OnceReporter logs the first report of each (kind, reason) pair at Warn and
// only counts the repeats, which keep their detail at Debug. Ingesting a day
// of data can produce millions of identical diagnostics.
type OnceReporter struct {
	logger *slog.Logger
	event  string

	mu     sync.Mutex
	counts map[reportKey]int
	recent []string
	next   int
	filled bool
}

// NewOnceReporter returns a reporter that logs under event name event.
func NewOnceReporter(logger *slog.Logger, event string) *OnceReporter {
	return &OnceReporter{
		logger: logger,
		event:  event,
		counts: make(map[reportKey]int),
		recent: make([]string, MaxRecent),
	}
}

// Report records one occurrence. detail is a human-readable description of
// this particular occurrence; attrs are extra slog key/value pairs.
func (r *OnceReporter) Report(kind, reason, detail string, attrs ...any) {
	if len(detail) > MaxDetailLength {
		detail = detail[:MaxDetailLength] + "...(truncated)"
	}

	r.mu.Lock()
	k := reportKey{kind, reason}
	r.counts[k]++
	n := r.counts[k]
	r.recent[r.next] = detail
	r.next = (r.next + 1) % MaxRecent
	if r.next == 0 {
		r.filled = true
	}
	r.mu.Unlock()

	level := slog.LevelDebug
	if n == 1 {
		level = slog.LevelWarn
	}
	args := append([]any{"kind", kind, "reason", reason, "detail", detail, "occurrence", n}, attrs...)
	r.logger.Log(context.Background(), level, r.event, args...)
}

// Count returns the number of reports for (kind, reason).
func (r *OnceReporter) Count(kind, reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[reportKey{kind, reason}]
}

// Total returns the number of reports of any kind.
func (r *OnceReporter) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}

// Occurrences returns all counts ordered by kind, then reason.
func (r *OnceReporter) Occurrences() []Occurrence {
	r.mu.Lock()
	out := make([]Occurrence, 0, len(r.counts))
	for k, c := range r.counts {
		out = append(out, Occurrence{Kind: k.kind, Reason: k.reason, Count: c})
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Occurrence) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Reason, b.Reason))
	})
	return out
}

// Recent returns up to n of the most recent details, oldest first.
func (r *OnceReporter) Recent(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.filled {
		size = MaxRecent
	}
	n = min(n, size)

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - n + i + MaxRecent) % MaxRecent
		lines = append(lines, r.recent[idx])
	}
	return lines
}
