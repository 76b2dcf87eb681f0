package server

import (
	"errors"
	"net/http"

	"github.com/jo-hoe/insightboard/internal/backend"
	"github.com/jo-hoe/insightboard/internal/storage"
	"github.com/jo-hoe/insightboard/internal/tracker"
)

// HTTPStatus returns the status code a dashboard error is reported with.
func HTTPStatus(err error) int {
	var (
		se *backend.SubmissionError
		de *backend.DeleteError
		fe *backend.FetchError
		mb *http.MaxBytesError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tracker.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrNotReady), errors.Is(err, tracker.ErrUnconfirmed):
		return http.StatusConflict
	case errors.Is(err, storage.ErrTooLarge), errors.As(err, &mb):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, tracker.ErrInvalidSubmission),
		errors.Is(err, storage.ErrNoFile),
		errors.Is(err, storage.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, tracker.ErrBoardClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &se), errors.As(err, &de), errors.As(err, &fe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, HTTPStatus(err), errorResponse{Error: err.Error()})
}
