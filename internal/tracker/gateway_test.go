package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/insightboard/internal/backend"
	"github.com/jo-hoe/insightboard/internal/jobs"
)

func validRequest() SubmitRequest {
	return SubmitRequest{
		File:     strings.NewReader("ID3"),
		FileName: "meeting.mp3",
		Size:     3,
		OwnerID:  "owner-1",
		Persona:  jobs.PersonaFounder,
	}
}

func TestGateway_SubmitForwardsOnce(t *testing.T) {
	fb := &fakeBackend{ack: backend.Acceptance{ServerID: "s1", Status: "success"}}
	g := NewGateway(nil, fb)
	g.now = func() time.Time { return t0.Add(750 * time.Millisecond) }

	req := validRequest()
	req.Context = "bride on a budget"
	acc, err := g.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "s1", acc.ServerID)
	assert.Equal(t, t0, acc.SubmittedAt)
	assert.Equal(t, "meeting.mp3", acc.FileName)

	require.Len(t, fb.uploads, 1)
	up := fb.uploads[0]
	assert.Equal(t, "owner-1", up.OwnerID)
	assert.Equal(t, jobs.PersonaFounder, up.Persona)
	assert.Equal(t, "bride on a budget", up.Context)

	// No deduplication: a second call is a second job.
	_, err = g.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Len(t, fb.uploads, 2)
}

func TestGateway_RejectsInvalidRequests(t *testing.T) {
	cases := map[string]func(r *SubmitRequest){
		"missing file":    func(r *SubmitRequest) { r.File = nil },
		"empty file":      func(r *SubmitRequest) { r.Size = 0 },
		"missing name":    func(r *SubmitRequest) { r.FileName = "  " },
		"missing owner":   func(r *SubmitRequest) { r.OwnerID = "" },
		"unknown persona": func(r *SubmitRequest) { r.Persona = "MANAGER" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			fb := &fakeBackend{}
			req := validRequest()
			mutate(&req)
			_, err := NewGateway(nil, fb).Submit(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidSubmission)
			assert.Empty(t, fb.uploads, "no request may be sent")
		})
	}
}

func TestGateway_AcceptsEveryCataloguePersona(t *testing.T) {
	for _, p := range jobs.ValidPersonas {
		fb := &fakeBackend{}
		req := validRequest()
		req.Persona = p
		_, err := NewGateway(nil, fb).Submit(context.Background(), req)
		require.NoError(t, err, "persona %s", p)
		assert.Equal(t, p, fb.uploads[0].Persona)
	}

	req := validRequest()
	req.Persona = jobs.Persona(strings.ToLower(string(jobs.PersonaSales)))
	_, err := NewGateway(nil, &fakeBackend{}).Submit(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidSubmission)
}

func TestGateway_WrapsFailuresAsSubmissionError(t *testing.T) {
	fb := &fakeBackend{submitErr: errors.New("connection reset")}
	_, err := NewGateway(nil, fb).Submit(context.Background(), validRequest())
	var se *backend.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "connection reset")
	assert.Len(t, fb.uploads, 1, "no retry")
}
