package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jo-hoe/insightboard/internal/common"
	"github.com/jo-hoe/insightboard/internal/jobs"
)

// Mutation derives the next visible list from the latest one. It runs on the
// board goroutine and receives a private copy of the list.
type Mutation func(current []jobs.Record) []jobs.Record

const persistTimeout = 5 * time.Second

type op struct {
	fn    Mutation
	reply chan []jobs.Record
}

// Board owns one owner's visible list. Submissions, poll results and
// deletions all reach it as Mutations executed one at a time on a single
// goroutine, each against the latest list.
type Board struct {
	log   *slog.Logger
	owner string
	store jobs.SnapshotStore

	ops        chan op
	current    atomic.Pointer[[]jobs.Record]
	version    atomic.Uint64
	mu         sync.Mutex
	started    bool
	closed     bool
	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}

	subsMu sync.Mutex
	subs   map[chan []jobs.Record]struct{}
}

// NewBoard creates a board for owner. store may be nil, in which case the
// list lives in memory only.
func NewBoard(log *slog.Logger, owner string, store jobs.SnapshotStore) *Board {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Board{
		log:   log.With("owner", owner),
		owner: owner,
		store: store,
		ops:   make(chan op, common.DefaultMailboxCapacity),
		done:  make(chan struct{}),
		subs:  make(map[chan []jobs.Record]struct{}),
	}
	empty := []jobs.Record{}
	b.current.Store(&empty)
	return b
}

// Start restores the persisted list, if any, and launches the board goroutine.
func (b *Board) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.New("board already started")
	}
	if b.closed {
		return ErrBoardClosed
	}
	if b.store != nil {
		recs, err := b.store.LoadSnapshot(ctx, b.owner)
		if err != nil {
			return err
		}
		b.current.Store(&recs)
		if len(recs) > 0 {
			b.log.Info("board restored", "records", len(recs))
		}
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.started = true
	go b.run(ctx)
	return nil
}

func (b *Board) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.log.Debug("board stopping")
			return
		case o := <-b.ops:
			next := o.fn(b.Snapshot())
			if next == nil {
				next = []jobs.Record{}
			}
			b.current.Store(&next)
			v := b.version.Add(1)
			b.persist(ctx, next)
			b.publish(next)
			b.log.Debug("board updated", "version", v, "records", len(next))
			o.reply <- slices.Clone(next)
		}
	}
}

func (b *Board) persist(ctx context.Context, recs []jobs.Record) {
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := b.store.SaveSnapshot(ctx, b.owner, recs); err != nil {
		b.log.Warn("persist board", "err", err)
	}
}

// Apply runs fn against the latest list and returns the list it produced.
func (b *Board) Apply(ctx context.Context, fn Mutation) ([]jobs.Record, error) {
	b.mu.Lock()
	started, closed := b.started, b.closed
	b.mu.Unlock()
	if closed || !started {
		return nil, ErrBoardClosed
	}
	o := op{fn: fn, reply: make(chan []jobs.Record, 1)}
	select {
	case b.ops <- o:
	case <-b.done:
		return nil, ErrBoardClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case recs := <-o.reply:
		return recs, nil
	case <-b.done:
		// The op may have been applied right before shutdown.
		select {
		case recs := <-o.reply:
			return recs, nil
		default:
			return nil, ErrBoardClosed
		}
	}
}

// Project inserts a placeholder for an accepted submission.
func (b *Board) Project(ctx context.Context, placeholder jobs.Record) ([]jobs.Record, error) {
	return b.Apply(ctx, func(cur []jobs.Record) []jobs.Record {
		return Project(cur, placeholder)
	})
}

// Remove drops the records with the given ids.
func (b *Board) Remove(ctx context.Context, ids ...string) ([]jobs.Record, error) {
	return b.Apply(ctx, func(cur []jobs.Record) []jobs.Record {
		return RemoveByID(cur, ids...)
	})
}

// Snapshot returns a copy of the latest visible list.
func (b *Board) Snapshot() []jobs.Record {
	return slices.Clone(*b.current.Load())
}

// Version counts applied mutations.
func (b *Board) Version() uint64 {
	return b.version.Load()
}

// Subscribe returns a channel receiving the list after each mutation. Slow
// readers only see the latest list. The returned func unsubscribes.
func (b *Board) Subscribe() (<-chan []jobs.Record, func()) {
	ch := make(chan []jobs.Record, 1)
	b.subsMu.Lock()
	b.subs[ch] = struct{}{}
	b.subsMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subsMu.Lock()
			delete(b.subs, ch)
			b.subsMu.Unlock()
		})
	}
}

func (b *Board) publish(recs []jobs.Record) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- slices.Clone(recs):
		default:
		}
	}
}

// Shutdown stops the board goroutine, waiting up to deadline for the
// mutation in progress.
func (b *Board) Shutdown(deadline time.Duration) {
	b.cancelOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		started := b.started
		if b.cancel != nil {
			b.cancel()
		}
		b.mu.Unlock()
		if !started {
			close(b.done)
			return
		}

		if deadline <= 0 {
			<-b.done
			return
		}
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-b.done:
		case <-timer.C:
			b.log.Warn("board shutdown deadline reached")
		}
	})
}
