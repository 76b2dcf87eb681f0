package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jo-hoe/insightboard/internal/backend"
	"github.com/jo-hoe/insightboard/internal/jobs"
	"github.com/jo-hoe/insightboard/internal/util"
)

// Backend is the remote surface the dashboard needs.
type Backend interface {
	Submitter
	Lister
	Delete(ctx context.Context, id string) error
	Detail(ctx context.Context, id string) (*backend.Detail, error)
}

// Settings configures a Dashboard.
type Settings struct {
	OwnerID      string
	PollInterval time.Duration
	StaleAfter   int
}

// Detail is a DONE record with its insight, plus any fields that failed to decode.
type Detail struct {
	Record   jobs.Record
	Warnings []string
}

// Dashboard ties the gateway, board and poller together for one owner.
type Dashboard struct {
	log      *slog.Logger
	settings Settings
	backend  Backend
	gateway  *Gateway
	board    *Board
	details  singleflight.Group
	// fetching is the in-flight guard shared by views and Refresh.
	fetching atomic.Bool
}

// NewDashboard creates a dashboard. store may be nil.
func NewDashboard(log *slog.Logger, be Backend, store jobs.SnapshotStore, s Settings) *Dashboard {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dashboard{
		log:      log,
		settings: s,
		backend:  be,
		gateway:  NewGateway(log, be),
		board:    NewBoard(log, s.OwnerID, store),
	}
}

// Start restores and starts the board.
func (d *Dashboard) Start(ctx context.Context) error {
	return d.board.Start(ctx)
}

// Shutdown stops the board.
func (d *Dashboard) Shutdown(deadline time.Duration) {
	d.board.Shutdown(deadline)
}

// Board exposes the underlying board.
func (d *Dashboard) Board() *Board { return d.board }

// OwnerID returns the owner this dashboard tracks.
func (d *Dashboard) OwnerID() string { return d.settings.OwnerID }

// View is an open dashboard. While open, the list is polled.
type View struct {
	poller    *Poller
	closeOnce sync.Once
}

// Open starts polling; the first poll runs immediately.
func (d *Dashboard) Open(ctx context.Context) (*View, error) {
	p := d.newPoller()
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return &View{poller: p}, nil
}

// Close stops polling. It is safe to call more than once.
func (v *View) Close() {
	v.closeOnce.Do(v.poller.Stop)
}

// Refresh polls once synchronously, outside any view.
func (d *Dashboard) Refresh(ctx context.Context) error {
	return d.newPoller().PollOnce(ctx)
}

func (d *Dashboard) newPoller() *Poller {
	p := NewPoller(d.log, d.backend, d.board, d.settings.OwnerID, d.settings.PollInterval, Options{StaleAfter: d.settings.StaleAfter})
	p.inFlight = &d.fetching
	return p
}

// Records returns the visible list.
func (d *Dashboard) Records() []jobs.Record {
	return d.board.Snapshot()
}

// Submit forwards req and, once the backend accepted it, shows a placeholder
// at the head of the list. The upload completes even if ctx is canceled.
// OwnerID defaults to the dashboard owner.
func (d *Dashboard) Submit(ctx context.Context, req SubmitRequest) (jobs.Record, error) {
	if req.OwnerID == "" {
		req.OwnerID = d.settings.OwnerID
	}
	if req.Persona == "" {
		req.Persona = jobs.DefaultPersona
	}
	ctx = context.WithoutCancel(ctx)
	acc, err := d.gateway.Submit(ctx, req)
	if err != nil {
		return jobs.Record{}, err
	}
	placeholder := jobs.NewPlaceholder(jobs.PlaceholderParams{
		LocalID:     util.NewLocalID(),
		DisplayName: acc.DisplayName,
		SourceName:  acc.FileName,
		Persona:     acc.Persona,
		CreatedAt:   acc.SubmittedAt,
		ExpectedID:  acc.ServerID,
	})
	if _, err := d.board.Project(ctx, placeholder); err != nil {
		return placeholder, fmt.Errorf("project placeholder: %w", err)
	}
	return placeholder, nil
}

// Delete removes the record with id once the backend confirms it.
//
// A placeholder whose server id is known is deleted remotely under that id.
// A stale placeholder without one is dismissed locally, as the backend holds
// nothing to remove; a fresh one yields ErrUnconfirmed. On any failure the
// list is unchanged.
func (d *Dashboard) Delete(ctx context.Context, id string) error {
	rec, ok := Find(d.board.Snapshot(), id)
	if !ok {
		return ErrNotFound
	}
	ctx = context.WithoutCancel(ctx)

	remoteID := id
	if rec.Synthetic() {
		switch {
		case rec.ExpectedID != "":
			remoteID = rec.ExpectedID
		case rec.Stale:
			if _, err := d.board.Remove(ctx, id); err != nil {
				return err
			}
			d.log.Info("stale placeholder dismissed", "job_id", id)
			return nil
		default:
			return ErrUnconfirmed
		}
	}

	if err := d.backend.Delete(ctx, remoteID); err != nil {
		var de *backend.DeleteError
		if !errors.As(err, &de) {
			err = &backend.DeleteError{ID: remoteID, Cause: err}
		}
		d.log.Warn("delete failed", "job_id", id, "err", err)
		return err
	}
	if _, err := d.board.Remove(ctx, id, remoteID); err != nil {
		return err
	}
	d.log.Info("record deleted", "job_id", id)
	return nil
}

// Detail returns the insight of a DONE record, fetching it on first access.
// Concurrent requests for one id share a single fetch, which a canceled
// caller does not abort for the others.
func (d *Dashboard) Detail(ctx context.Context, id string) (*Detail, error) {
	rec, ok := Find(d.board.Snapshot(), id)
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Synthetic() || rec.Status != jobs.StatusDone {
		return nil, ErrNotReady
	}
	if rec.Insight != nil {
		return &Detail{Record: rec}, nil
	}

	// The shared fetch outlives any single caller; each caller waits on its own ctx.
	fetchCtx := context.WithoutCancel(ctx)
	ch := d.details.DoChan(id, func() (any, error) {
		return d.backend.Detail(fetchCtx, id)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		if backend.IsNotFound(res.Err) {
			return nil, ErrNotFound
		}
		return nil, res.Err
	}
	bd := res.Val.(*backend.Detail)
	out := &Detail{Record: rec}
	for _, w := range bd.Warnings {
		d.log.Warn("detail field degraded", "job_id", id, "err", w)
		out.Warnings = append(out.Warnings, w.Error())
	}
	out.Record.Insight = bd.Record.Insight
	if out.Record.SummarySnippet == "" && out.Record.Insight != nil {
		out.Record.SummarySnippet = out.Record.Insight.Summary
	}

	// Cache only clean payloads so a degraded field is fetched again next time.
	if len(bd.Warnings) == 0 {
		insight := bd.Record.Insight
		_, _ = d.board.Apply(ctx, func(cur []jobs.Record) []jobs.Record {
			for i := range cur {
				if cur[i].ID.String() == id && cur[i].Status == jobs.StatusDone {
					cur[i].Insight = insight
				}
			}
			return cur
		})
	}
	return out, nil
}
