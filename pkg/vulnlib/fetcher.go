package vulnlib

import (
	"context"
	"sync"
	"time"

	"github.com/kvesta/vulnmap/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Fetcher paces and retries every call to the vulnerability source.
// Calls are serialized, so the spacing holds regardless of caller concurrency.
type Fetcher struct {
	mu sync.Mutex

	source  Source
	policy  Policy
	limiter *rate.Limiter
	log     logrus.FieldLogger

	calls int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewFetcher(src Source, cfg config.NVDConfig, log logrus.FieldLogger) *Fetcher {
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &Fetcher{
		source: src,
		policy: Policy{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialBackoff,
			MaxInterval:     cfg.MaxBackoff,
			Multiplier:      cfg.Multiplier,
		},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Fetch returns the records of the identifier. The error is a *QueryError
// when the source classified the failure.
func (f *Fetcher) Fetch(ctx context.Context, cpe string) ([]Record, error) {
	var records []Record

	err := f.do(ctx, cpe, func() error {
		var err error
		records, err = f.source.Query(ctx, cpe)
		return err
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (f *Fetcher) Updated(ctx context.Context, cpe string, since time.Time) (bool, error) {
	var updated bool

	err := f.do(ctx, cpe, func() error {
		var err error
		updated, err = f.source.Updated(ctx, cpe, since)
		return err
	})

	return updated, err
}

// Calls is the number of external calls made so far.
func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func (f *Fetcher) do(ctx context.Context, cpe string, op func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := NewRetry(f.policy)

	for {
		if err := f.pace(ctx); err != nil {
			return &QueryError{Kind: KindOther, CPE: cpe, Err: err}
		}

		f.calls++

		state := r.Observe(op())

		switch state.Phase {
		case Succeeded:
			return nil
		case Failed:
			return state.Err
		case Exhausted:
			f.log.WithFields(logrus.Fields{
				"cpe":      cpe,
				"attempts": state.Attempt,
			}).Warnf("Retries exhausted: %v", state.Err)
			return state.Err
		}

		f.log.WithFields(logrus.Fields{
			"cpe":     cpe,
			"attempt": state.Attempt,
			"delay":   state.Delay,
		}).Debugf("Retrying after %s", KindOf(state.Err))

		if err := f.sleep(ctx, state.Delay); err != nil {
			return &QueryError{Kind: KindOther, CPE: cpe, Err: err}
		}
	}
}

// pace waits until the minimum spacing since the previous call has elapsed
func (f *Fetcher) pace(ctx context.Context) error {
	now := f.now()

	res := f.limiter.ReserveN(now, 1)
	wait := res.DelayFrom(now)
	if wait <= 0 {
		return nil
	}

	if err := f.sleep(ctx, wait); err != nil {
		res.CancelAt(f.now())
		return err
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
