package tracker

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jo-hoe/insightboard/internal/backend"
	"github.com/jo-hoe/insightboard/internal/jobs"
)

// fakeBackend is an in-memory Backend with injectable failures.
type fakeBackend struct {
	mu        sync.Mutex
	list      []jobs.Record
	listErr   error
	listGate  chan struct{} // when set, List waits for a receive
	submitErr error
	ack       backend.Acceptance
	uploads   []backend.Upload
	deleteErr error
	deleted   []string
	detail    *backend.Detail
	detailErr error

	listCalls   atomic.Int32
	detailCalls atomic.Int32
	detailGate  chan struct{}
}

var _ Backend = (*fakeBackend)(nil)

func (f *fakeBackend) Submit(ctx context.Context, up backend.Upload) (backend.Acceptance, error) {
	if up.File != nil {
		_, _ = io.Copy(io.Discard, up.File)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, up)
	if f.submitErr != nil {
		return backend.Acceptance{}, f.submitErr
	}
	return f.ack, nil
}

func (f *fakeBackend) List(ctx context.Context, owner string) ([]jobs.Record, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]jobs.Record, len(f.list))
	copy(out, f.list)
	return out, nil
}

func (f *fakeBackend) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) Detail(ctx context.Context, id string) (*backend.Detail, error) {
	f.detailCalls.Add(1)
	if f.detailGate != nil {
		select {
		case <-f.detailGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail, nil
}

func (f *fakeBackend) setList(recs ...jobs.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = recs
	f.listErr = nil
}

func (f *fakeBackend) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}
