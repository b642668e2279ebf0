// Package ledger implements C2, the Daily Token Ledger: a persistent,
// date-aware token-usage counter shared across process restarts, enforcing
// an optional daily cap with a cancellable blocking wait until local
// midnight reset.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/chronominer/chronominer/pkg/xerrors"
)

// entry is the on-disk shape named in spec §3 ("Daily ledger entry").
type entry struct {
	DateLocal   string `json:"date_local"`
	TokensUsed  int64  `json:"tokens_used"`
	Limit       int64  `json:"limit"`
	LastUpdated string `json:"last_updated"`
}

// Clock abstracts time.Now so tests can exercise midnight resets without
// sleeping, the way cagent's fallback cooldown logic is tested against an
// injected deadline rather than a real timer.
type Clock func() time.Time

// Reservation is returned by Reserve.
type Reservation struct {
	OK        bool
	WaitUntil time.Time
}

// Ledger is the process-wide singleton named in spec §9's design note: a
// single owned object, passed explicitly to the scheduler rather than
// referenced through package-level state. The batch manager does not
// consult it.
type Ledger struct {
	mu       sync.Mutex
	path     string
	limit    int64
	enforce  bool
	clock    Clock
	logger   *slog.Logger
	current  entry
	reserved int64 // tokens reserved but not yet committed, for this process
}

// Option configures a Ledger at construction.
type Option func(*Ledger)

func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New opens (or creates) the ledger file at path. enforce=false makes the
// ledger a no-op stub per spec §4.2 ("Enforcement is optional... when
// disabled the ledger is a no-op stub").
func New(path string, limit int64, enforce bool, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		limit:   limit,
		enforce: enforce,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) today() string {
	return l.clock().Format("2006-01-02")
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.current = entry{DateLocal: l.today(), Limit: l.limit}
		return nil
	}
	if err != nil {
		return xerrors.ConfigInvalid.Wrap(err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		l.logger.Warn("ledger file is corrupt, resetting", "path", l.path, "error", err)
		e = entry{DateLocal: l.today(), Limit: l.limit}
	}
	e.Limit = l.limit
	l.current = e
	return nil
}

// resetIfNewDay implements spec §4.2's reset_if_new_day: called before
// every read/write, zeroing the counter if the persisted date differs from
// today's local calendar day. Caller must hold l.mu.
func (l *Ledger) resetIfNewDay() {
	today := l.today()
	if l.current.DateLocal != today {
		l.logger.Info("daily token ledger rolled over", "previous_date", l.current.DateLocal, "new_date", today)
		l.current = entry{DateLocal: today, Limit: l.limit}
		l.reserved = 0
	}
}

// persist atomically rewrites the ledger file (natefinch/atomic: temp file
// + rename), matching cagent's pkg/userconfig durability pattern.
func (l *Ledger) persist() error {
	l.current.LastUpdated = l.clock().Format(time.RFC3339)
	data, err := json.MarshalIndent(l.current, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(l.path, bytes.NewReader(data))
}

// Enforced reports whether this ledger enforces the daily cap. C10 uses it
// to decide whether files within a run must be processed one at a time
// (spec §5: "when daily-limit enforcement is active in synchronous mode,
// files are processed one at a time; otherwise files may also be
// parallelized").
func (l *Ledger) Enforced() bool { return l.enforce }

// CurrentUsage implements current_usage().
func (l *Ledger) CurrentUsage() (tokensUsed, limit int64, dateLocal string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetIfNewDay()
	return l.current.TokensUsed, l.current.Limit, l.current.DateLocal
}

// nextMidnight returns the first instant of the next local calendar day.
func (l *Ledger) nextMidnight() time.Time {
	now := l.clock()
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// Reserve implements reserve(estimated_tokens). It does not block; callers
// that need to wait use WaitForReset with the returned WaitUntil.
func (l *Ledger) Reserve(estimatedTokens int64) Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enforce {
		return Reservation{OK: true}
	}

	l.resetIfNewDay()

	if l.current.TokensUsed+l.reserved+estimatedTokens > l.current.Limit {
		return Reservation{OK: false, WaitUntil: l.nextMidnight()}
	}

	l.reserved += estimatedTokens
	return Reservation{OK: true}
}

// Commit implements commit(actual_tokens): replaces any outstanding
// reservation for this call with the actual usage and persists.
func (l *Ledger) Commit(estimatedTokens, actualTokens int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enforce {
		return nil
	}

	l.resetIfNewDay()

	l.reserved -= estimatedTokens
	if l.reserved < 0 {
		l.reserved = 0
	}
	l.current.TokensUsed += actualTokens
	if l.current.TokensUsed < 0 {
		l.current.TokensUsed = 0
	}

	return l.persist()
}

// Release gives back a reservation that was never committed (e.g. the
// chunk failed permanently before any usage was recorded).
func (l *Ledger) Release(estimatedTokens int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enforce {
		return
	}
	l.reserved -= estimatedTokens
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// WaitForReset blocks until waitUntil or ctx cancellation, whichever comes
// first, satisfying spec §4.2's "the wait is cancellable."
func WaitForReset(ctx context.Context, waitUntil time.Time, clock Clock) error {
	d := waitUntil.Sub(clock())
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
