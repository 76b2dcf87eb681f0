package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jo-hoe/insightboard/internal/common"
	"github.com/jo-hoe/insightboard/internal/jobs"
)

// Lister fetches the owner's authoritative records.
type Lister interface {
	List(ctx context.Context, ownerID string) ([]jobs.Record, error)
}

// Poller periodically fetches the authoritative list and reconciles it into
// a Board. At most one fetch is in flight; ticks that fire while one is
// running are skipped.
type Poller struct {
	log      *slog.Logger
	lister   Lister
	board    *Board
	owner    string
	interval time.Duration
	opts     Options

	inFlight *atomic.Bool
	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a poller; interval <= 0 selects the default.
func NewPoller(log *slog.Logger, l Lister, board *Board, owner string, interval time.Duration, opts Options) *Poller {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if interval <= 0 {
		interval = common.DefaultPollInterval
	}
	return &Poller{
		log:      log.With("owner", owner),
		lister:   l,
		board:    board,
		owner:    owner,
		interval: interval,
		opts:     opts,
		inFlight: new(atomic.Bool),
	}
}

// Start polls once immediately and then on every interval until Stop or ctx ends.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("poller already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		p.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
	return nil
}

func (p *Poller) tick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.Debug("poll skipped, previous fetch still running")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		_ = p.poll(ctx)
	}()
}

// PollOnce fetches and reconciles synchronously. It returns ErrPollInFlight
// when another fetch is running.
func (p *Poller) PollOnce(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return ErrPollInFlight
	}
	defer p.inFlight.Store(false)
	return p.poll(ctx)
}

// poll leaves the board untouched when the fetch fails.
func (p *Poller) poll(ctx context.Context) error {
	start := time.Now()
	recs, err := p.lister.List(ctx, p.owner)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn("poll failed", "err", err, "duration", time.Since(start))
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var dropped, stale int
	_, err = p.board.Apply(ctx, func(cur []jobs.Record) []jobs.Record {
		next := Reconcile(cur, recs, p.opts)
		dropped, stale = placeholderDelta(cur, next)
		return next
	})
	if err != nil {
		return err
	}
	p.log.Debug("poll reconciled", "records", len(recs), "superseded", dropped, "stale", stale, "duration", time.Since(start))
	return nil
}

func placeholderDelta(before, after []jobs.Record) (dropped, stale int) {
	kept := make(map[string]bool)
	for _, r := range after {
		if r.Synthetic() {
			kept[r.ID.String()] = true
			if r.Stale {
				stale++
			}
		}
	}
	for _, r := range before {
		if r.Synthetic() && !kept[r.ID.String()] {
			dropped++
		}
	}
	return dropped, stale
}

// Stop releases the timer and waits for an in-flight fetch. Only the first
// call has an effect.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		if p.cancel != nil {
			p.cancel()
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
}
