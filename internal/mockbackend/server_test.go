package mockbackend

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/insightboard/internal/backend"
	"github.com/jo-hoe/insightboard/internal/jobs"
	"github.com/jo-hoe/insightboard/internal/llm"
	"github.com/jo-hoe/insightboard/internal/llm/mock"
	"github.com/jo-hoe/insightboard/internal/storage"
)

// gateAnalyzer blocks each analysis until released.
type gateAnalyzer struct {
	release chan struct{}
	inner   llm.Analyzer
}

func (g *gateAnalyzer) Analyze(ctx context.Context, req llm.Request) (llm.Result, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return llm.Result{}, ctx.Err()
	}
	return g.inner.Analyze(ctx, req)
}

var mp3 = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0}, 64)...)

func startBackend(t *testing.T, opts Options) (*Backend, *backend.Client) {
	t.Helper()
	if opts.Uploader == nil {
		opts.Uploader = storage.NewUploader(t.TempDir())
	}
	b := New(opts)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Shutdown(time.Second) })
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, backend.NewWithHTTPClient(srv.URL+RoutePrefix, srv.Client())
}

func upload(t *testing.T, c *backend.Client, name string, persona jobs.Persona) backend.Acceptance {
	t.Helper()
	ack, err := c.Submit(context.Background(), backend.Upload{
		File:     bytes.NewReader(mp3),
		FileName: name,
		OwnerID:  "owner-1",
		Persona:  persona,
	})
	require.NoError(t, err)
	return ack
}

func waitForStatus(t *testing.T, c *backend.Client, id string, want jobs.Status) jobs.Record {
	t.Helper()
	var found jobs.Record
	require.Eventually(t, func() bool {
		recs, err := c.List(context.Background(), "owner-1")
		if err != nil {
			return false
		}
		for _, r := range recs {
			if r.ID.String() == id && r.Status == want {
				found = r
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
	return found
}

func TestBackend_UploadLifecycle(t *testing.T) {
	gate := &gateAnalyzer{release: make(chan struct{}), inner: mock.New(0)}
	_, c := startBackend(t, Options{Analyzer: gate, Workers: 1})

	before := time.Now().UTC().Truncate(time.Second)
	ack := upload(t, c, "meeting.mp3", jobs.PersonaFounder)
	require.NotEmpty(t, ack.ServerID)
	assert.Equal(t, "success", ack.Status)

	rec := waitForStatus(t, c, ack.ServerID, jobs.StatusProcessing)
	assert.Equal(t, "meeting.mp3", rec.DisplayName)
	assert.Equal(t, jobs.PersonaFounder, rec.Persona)
	assert.False(t, rec.CreatedAt.Before(before))

	d, err := c.Detail(context.Background(), ack.ServerID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProcessing, d.Record.Status)
	assert.Empty(t, d.Record.Insight.Transcript)

	close(gate.release)
	rec = waitForStatus(t, c, ack.ServerID, jobs.StatusDone)
	assert.NotEmpty(t, rec.SummarySnippet)

	d, err = c.Detail(context.Background(), ack.ServerID)
	require.NoError(t, err)
	assert.Empty(t, d.Warnings)
	assert.NotEmpty(t, d.Record.Insight.Transcript)
	assert.NotEmpty(t, d.Record.Insight.ActionItems)
	assert.NotEmpty(t, d.Record.Insight.FullText)
}

func TestBackend_DetailEncodingsDecodeAlike(t *testing.T) {
	_, c := startBackend(t, Options{Analyzer: mock.New(0), Workers: 1})

	first := upload(t, c, "same.mp3", jobs.PersonaSales)
	second := upload(t, c, "same.mp3", jobs.PersonaSales)
	waitForStatus(t, c, first.ServerID, jobs.StatusDone)
	waitForStatus(t, c, second.ServerID, jobs.StatusDone)

	a, err := c.Detail(context.Background(), first.ServerID)
	require.NoError(t, err)
	b, err := c.Detail(context.Background(), second.ServerID)
	require.NoError(t, err)

	assert.Equal(t, a.Record.Insight, b.Record.Insight)
	assert.Empty(t, a.Warnings)
	assert.Empty(t, b.Warnings)
}

func TestBackend_ListNewestFirst(t *testing.T) {
	_, c := startBackend(t, Options{Analyzer: &gateAnalyzer{release: make(chan struct{}), inner: mock.New(0)}})
	older := upload(t, c, "a.mp3", jobs.PersonaFounder)
	newer := upload(t, c, "b.mp3", jobs.PersonaFounder)

	recs, err := c.List(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, newer.ServerID, recs[0].ID.String())
	assert.Equal(t, older.ServerID, recs[1].ID.String())

	other, err := c.List(context.Background(), "someone-else")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestBackend_FailEvery(t *testing.T) {
	_, c := startBackend(t, Options{Analyzer: mock.New(0), Workers: 1, FailEvery: 2})
	ok := upload(t, c, "one.mp3", jobs.PersonaFitter)
	bad := upload(t, c, "two.mp3", jobs.PersonaFitter)
	waitForStatus(t, c, ok.ServerID, jobs.StatusDone)
	waitForStatus(t, c, bad.ServerID, jobs.StatusFailed)
}

func TestBackend_OmitAnalysisID(t *testing.T) {
	_, c := startBackend(t, Options{OmitAnalysisID: true})
	ack := upload(t, c, "x.mp3", jobs.PersonaDesigner)
	assert.Empty(t, ack.ServerID)
}

func TestBackend_DeleteAndFailure(t *testing.T) {
	b, c := startBackend(t, Options{Analyzer: mock.New(0)})
	ack := upload(t, c, "x.mp3", jobs.PersonaDesigner)

	b.FailDeletes(true)
	err := c.Delete(context.Background(), ack.ServerID)
	var de *backend.DeleteError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusInternalServerError, de.StatusCode)

	b.FailDeletes(false)
	require.NoError(t, c.Delete(context.Background(), ack.ServerID))
	_, err = c.Detail(context.Background(), ack.ServerID)
	assert.True(t, backend.IsNotFound(err))
}

func TestBackend_RejectsNonAudio(t *testing.T) {
	_, c := startBackend(t, Options{})
	_, err := c.Submit(context.Background(), backend.Upload{
		File:     bytes.NewReader([]byte("plain text is not audio")),
		FileName: "notes.txt",
		OwnerID:  "owner-1",
	})
	var se *backend.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestBackend_ConcurrentUploads(t *testing.T) {
	_, c := startBackend(t, Options{Analyzer: mock.New(0), Workers: 4})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Submit(context.Background(), backend.Upload{File: bytes.NewReader(mp3), FileName: "c.mp3", OwnerID: "owner-1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	recs, err := c.List(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Len(t, recs, 8)
}
