// Package scheduler implements C6, the Concurrency Scheduler: a bounded
// worker pool over one file's chunk requests, with per-request retry,
// ledger reservation, and journal writes (spec §4.6). Grounded on cagent's
// pkg/runtime/fallback.go backoff/jitter composition, adapted from a
// per-agent model-fallback chain to a per-chunk same-model retry loop since
// this engine has no model-fallback concept.
package scheduler

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/chronominer/chronominer/pkg/chunk"
	"github.com/chronominer/chronominer/pkg/journal"
	"github.com/chronominer/chronominer/pkg/ledger"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

// Config holds spec §4.6's tunables.
type Config struct {
	ConcurrencyLimit  int
	Attempts          int
	WaitMin           time.Duration
	WaitMax           time.Duration
	JitterMax         time.Duration
	RequestsPerMinute int  // 0 disables pacing
	NoWait            bool // spec §7: abort the file instead of blocking on TokenLimitReached
	EstimatedOutput   int64
}

func DefaultConfig() Config {
	return Config{
		ConcurrencyLimit: 10,
		Attempts:         3,
		WaitMin:          time.Second,
		WaitMax:          30 * time.Second,
		JitterMax:        500 * time.Millisecond,
		EstimatedOutput:  1024,
	}
}

// Request bundles one chunk's provider call, the chunk it belongs to, and
// the input token estimate used for ledger reservation.
type Request struct {
	Chunk           chunk.Chunk
	Prompt          string
	Schema          map[string]any
	SchemaName      string
	Parameters      provider.Parameters
	EstimatedTokens int64
}

// Run dispatches reqs through a bounded worker pool against p, reserving
// tokens from l before each call, retrying TransientError with backoff, and
// appending one record to j per chunk (spec §4.6 steps 1-4). Run returns
// only on context cancellation, an aborted TokenLimitReached wait under
// NoWait, or after every request has produced exactly one journal record.
func Run(ctx context.Context, cfg Config, p provider.Provider, l *ledger.Ledger, j *journal.Journal, reqs []Request) error {
	sem := semaphore.NewWeighted(int64(cfg.ConcurrencyLimit))

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, req := range reqs {
		req := req
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
			}

			return processOne(gctx, cfg, p, l, j, req)
		})
	}

	return g.Wait()
}

// processOne implements the full per-request lifecycle (spec §4.6 steps
// 1-4). It never returns an error for a permanently-failed chunk: failures
// are recorded in the journal and the scheduler moves on (step 4, "do not
// abort sibling chunks"). It only returns an error for context cancellation
// or a NoWait abort.
func processOne(ctx context.Context, cfg Config, p provider.Provider, l *ledger.Ledger, j *journal.Journal, req Request) error {
	estimated := req.EstimatedTokens + cfg.EstimatedOutput

	res := l.Reserve(estimated)
	if !res.OK {
		if cfg.NoWait {
			limitErr := xerrors.TokenLimitReached.New("daily token budget exhausted")
			if err := j.AppendError(req.Chunk.Index, limitErr); err != nil {
				return err
			}
			return limitErr
		}
		if err := ledger.WaitForReset(ctx, res.WaitUntil, time.Now); err != nil {
			return err
		}
		res = l.Reserve(estimated)
		if !res.OK {
			return j.AppendError(req.Chunk.Index, xerrors.TokenLimitReached.New("daily token budget exhausted after reset"))
		}
	}

	resp, err := invokeWithRetry(ctx, cfg, p, req)
	if err != nil {
		l.Release(estimated)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return j.AppendError(req.Chunk.Index, xerrors.ChunkFailed.Wrap(err))
	}

	actual := resp.InputTokens + resp.OutputTokens
	if commitErr := l.Commit(estimated, actual); commitErr != nil {
		return commitErr
	}

	return j.AppendResponse(req.Chunk.Index, resp)
}

// invokeWithRetry implements spec §4.6 step 2: on TransientError, retry
// with exponential backoff (wait_min..wait_max) plus uniform jitter up to
// jitter_max, the same base_delay/max_delay/jitter composition as cagent's
// fallback.go calculateBackoff, built here on cenkalti/backoff/v5 instead
// of a hand-rolled doubling loop.
func invokeWithRetry(ctx context.Context, cfg Config, p provider.Provider, req Request) (*provider.Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.WaitMin
	policy.MaxInterval = cfg.WaitMax

	var lastErr error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			d := policy.NextBackOff()
			if d == backoff.Stop {
				break
			}
			d += time.Duration(rand.Int64N(int64(cfg.JitterMax) + 1))
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		resp, err := p.Invoke(ctx, provider.Request{
			Model:      p.ID(),
			Prompt:     req.Prompt,
			Schema:     req.Schema,
			SchemaName: req.SchemaName,
			Parameters: req.Parameters,
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !xerrors.Is(err, xerrors.Transient) {
			return nil, err
		}
	}

	return nil, lastErr
}
