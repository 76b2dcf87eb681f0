package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jo-hoe/insightboard/internal/backend"
	"github.com/jo-hoe/insightboard/internal/jobs"
)

// Submitter performs the remote upload.
type Submitter interface {
	Submit(ctx context.Context, up backend.Upload) (backend.Acceptance, error)
}

// SubmitRequest is one user-initiated submission.
type SubmitRequest struct {
	File        io.Reader    `validate:"required"`
	FileName    string       `validate:"required,max=255"`
	Size        int64        `validate:"gt=0"`
	OwnerID     string       `validate:"required"`
	Persona     jobs.Persona `validate:"required,persona"`
	Context     string       `validate:"max=4000"`
	DisplayName string       `validate:"max=255"`
}

// Accepted is the gateway's handle on a submission the backend acknowledged.
type Accepted struct {
	ServerID    string // empty when the backend did not disclose it
	SubmittedAt time.Time
	FileName    string
	DisplayName string
	Persona     jobs.Persona
}

// Gateway validates submissions and forwards them to the backend.
type Gateway struct {
	log       *slog.Logger
	submitter Submitter
	validate  *validator.Validate
	now       func() time.Time
}

// NewGateway creates a gateway over s.
func NewGateway(log *slog.Logger, s Submitter) *Gateway {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gateway{
		log:       log,
		submitter: s,
		validate:  newValidator(),
		now:       time.Now,
	}
}

// newValidator adds the "persona" tag, checked against the persona catalogue.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("persona", func(fl validator.FieldLevel) bool {
		return jobs.Persona(fl.Field().String()).Valid()
	})
	return v
}

// Submit sends exactly one upload request; failures are returned, never retried.
// SubmittedAt is taken before the request, at second precision, so it never
// postdates the creation time the backend assigns.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (Accepted, error) {
	req.FileName = strings.TrimSpace(req.FileName)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := g.validate.Struct(req); err != nil {
		return Accepted{}, invalidSubmission(err)
	}

	submittedAt := g.now().UTC().Truncate(time.Second)
	start := time.Now()
	ack, err := g.submitter.Submit(ctx, backend.Upload{
		File:        req.File,
		FileName:    req.FileName,
		OwnerID:     req.OwnerID,
		Persona:     req.Persona,
		Context:     req.Context,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		var se *backend.SubmissionError
		if !errors.As(err, &se) {
			err = &backend.SubmissionError{Cause: err}
		}
		g.log.Warn("submission failed", "owner", req.OwnerID, "file", req.FileName, "err", err, "duration", time.Since(start))
		return Accepted{}, err
	}
	g.log.Info("submission accepted", "owner", req.OwnerID, "file", req.FileName, "job_id", ack.ServerID, "duration", time.Since(start))

	return Accepted{
		ServerID:    ack.ServerID,
		SubmittedAt: submittedAt,
		FileName:    req.FileName,
		DisplayName: req.DisplayName,
		Persona:     req.Persona,
	}, nil
}

func invalidSubmission(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %q", ErrInvalidSubmission, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
}
