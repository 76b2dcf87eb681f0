package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/insightboard/internal/config"
	"github.com/jo-hoe/insightboard/internal/jobs"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.BackendConfig{BaseURL: srv.URL + "/api/", Timeout: 5 * time.Second})
}

func TestSubmit_SendsMultipartAndReturnsServerID(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/upload_audio", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "owner-1", r.FormValue("user_oid"))
		assert.Equal(t, "FOUNDER", r.FormValue("persona"))
		assert.Equal(t, "bride on a budget", r.FormValue("context"))
		f, fh, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "meeting.mp3", fh.Filename)
		assert.Equal(t, "ID3data", string(b))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"analysis_id": 42, "status": "success"}`))
	}))

	ack, err := c.Submit(context.Background(), Upload{
		File:     strings.NewReader("ID3data"),
		FileName: "meeting.mp3",
		OwnerID:  "owner-1",
		Persona:  jobs.PersonaFounder,
		Context:  "bride on a budget",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", ack.ServerID)
	assert.Equal(t, "success", ack.Status)
	assert.Equal(t, 1, calls)
}

func TestSubmit_OpaqueAcknowledgment(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	ack, err := c.Submit(context.Background(), Upload{File: strings.NewReader("x"), FileName: "a.wav", OwnerID: "o", Persona: jobs.PersonaSales})
	require.NoError(t, err)
	assert.Empty(t, ack.ServerID)
}

func TestSubmit_NonSuccessIsSubmissionError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	_, err := c.Submit(context.Background(), Upload{File: strings.NewReader("x"), FileName: "a.wav", OwnerID: "o", Persona: jobs.PersonaSales})
	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Contains(t, se.Error(), "boom")
}

func TestSubmit_TransportFailureIsSubmissionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(config.BackendConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Submit(context.Background(), Upload{File: strings.NewReader("x"), FileName: "a.wav"})
	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Zero(t, se.StatusCode)
	assert.NotNil(t, se.Cause)
}

func TestList_DecodesRecords(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/get_recordings", r.URL.Path)
		assert.Equal(t, "owner 1", r.URL.Query().Get("user_oid"))
		_, _ = w.Write([]byte(`[
			{"id":"b","created_at":"2026-03-01 10:31:00+00:00","status":"done","persona":"SALES","name":"b.mp3","summary_snippet":"s"},
			{"id":"","name":"ghost"},
			{"id":"a","created_at":"2026-03-01T10:30:00Z","status":"PROCESSING","persona":"founder","name":"a.mp3"}
		]`))
	}))
	recs, err := c.List(context.Background(), "owner 1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID.String())
	assert.True(t, recs[0].ID.IsAuthoritative())
	assert.Equal(t, jobs.StatusDone, recs[0].Status)
	assert.Equal(t, jobs.PersonaSales, recs[0].Persona)
	assert.Equal(t, "s", recs[0].SummarySnippet)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 31, 0, 0, time.UTC), recs[0].CreatedAt)
	assert.Equal(t, jobs.PersonaFounder, recs[1].Persona)
}

func TestList_FailureIsFetchError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := c.List(context.Background(), "o")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "list", fe.Op)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
}

func TestDetail_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/get_analysis/missing", r.URL.Path)
		http.Error(w, "Analysis not found", http.StatusNotFound)
	}))
	_, err := c.Detail(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestDetail_Decodes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"a1","status":"DONE","name":"a.mp3","segments":"[{\"start\":5,\"text\":\"hi\"}]"}`))
	}))
	d, err := c.Detail(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a.mp3", d.Record.DisplayName)
	require.Len(t, d.Record.Insight.Transcript, 1)
}

func TestDelete_StatusHandling(t *testing.T) {
	status := http.StatusOK
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/delete_analysis/a1", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte("Failed to delete"))
	}))
	require.NoError(t, c.Delete(context.Background(), "a1"))

	status = http.StatusInternalServerError
	err := c.Delete(context.Background(), "a1")
	var de *DeleteError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "a1", de.ID)
	assert.Equal(t, http.StatusInternalServerError, de.StatusCode)
}

func TestDelete_CanceledContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Delete(ctx, "a1")
	var de *DeleteError
	require.ErrorAs(t, err, &de)
	assert.True(t, errors.Is(err, context.Canceled))
}
