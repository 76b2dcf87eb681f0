package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/jo-hoe/insightboard/internal/common"
	"github.com/jo-hoe/insightboard/internal/config"
	"github.com/jo-hoe/insightboard/internal/jobs"
	"github.com/jo-hoe/insightboard/internal/storage"
	"github.com/jo-hoe/insightboard/internal/tracker"
)

const (
	// multipartMemory is how much of a form is held in memory before spilling to disk.
	multipartMemory = 8 << 20
	// formOverhead is allowed on top of the upload limit for form fields and framing.
	formOverhead = 1 << 20
)

type Service struct {
	Log       *slog.Logger
	Cfg       *config.Config
	Dashboard *tracker.Dashboard
	Uploader  *storage.Uploader
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc(http.MethodGet+" "+common.PathRecordings, svc.withCommon(svc.handleList))
	mux.HandleFunc(http.MethodPost+" "+common.PathRecordings, svc.withCommon(svc.handleSubmit))
	mux.HandleFunc(http.MethodGet+" "+common.PathRecordings+"/{id}", svc.withCommon(svc.handleDetail))
	mux.HandleFunc(http.MethodDelete+" "+common.PathRecordings+"/{id}", svc.withCommon(svc.handleDelete))
	mux.HandleFunc(http.MethodGet+" "+common.PathPersonas, svc.withCommon(handlePersonas))

	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      Instrument(mux, svc.Log),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

func (svc *Service) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if r.Header.Get(common.HeaderAPIKey) != key {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if max := safeInt64(svc.Cfg.Server.MaxUploadSize); max > 0 && max < math.MaxInt64-formOverhead {
			r.Body = http.MaxBytesReader(w, r.Body, max+formOverhead)
		}
		next.ServeHTTP(w, r)
	}
}

type listResponse struct {
	Owner      string        `json:"owner"`
	Version    uint64        `json:"version"`
	Recordings []jobs.Record `json:"recordings"`
}

// handleList returns the visible list. With refresh=true it polls first.
func (svc *Service) handleList(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if err := svc.Dashboard.Refresh(r.Context()); err != nil {
			svc.logger().Warn("refresh failed", "err", err)
		}
	}
	recs := svc.Dashboard.Records()
	if recs == nil {
		recs = []jobs.Record{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Owner:      svc.Dashboard.OwnerID(),
		Version:    svc.Dashboard.Board().Version(),
		Recordings: recs,
	})
}

func (svc *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, fmt.Errorf("%w: invalid form: %w", tracker.ErrInvalidSubmission, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File[common.FieldFile]
	if len(files) == 0 {
		writeError(w, storage.ErrNoFile)
		return
	}
	uploaded := files[0]

	persona, err := jobs.ParsePersona(r.FormValue(common.FieldPersona))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", tracker.ErrInvalidSubmission, err))
		return
	}

	path, cleanup, mimeType, err := svc.Uploader.SaveMultipartAudio(uploaded, safeInt64(svc.Cfg.Server.MaxUploadSize))
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() { _ = cleanup() }()

	f, err := os.Open(path)
	if err != nil {
		writeError(w, fmt.Errorf("open spooled upload: %w", err))
		return
	}
	defer func() { _ = f.Close() }()

	rec, err := svc.Dashboard.Submit(r.Context(), tracker.SubmitRequest{
		File:        f,
		FileName:    uploaded.Filename,
		Size:        uploaded.Size,
		Persona:     persona,
		Context:     r.FormValue(common.FieldContext),
		DisplayName: r.FormValue(common.FieldName),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	svc.logger().Info("recording submitted", "job_id", rec.ID.String(), "mime", mimeType)
	writeJSON(w, http.StatusAccepted, rec)
}

type detailResponse struct {
	Recording jobs.Record `json:"recording"`
	Warnings  []string    `json:"warnings,omitempty"`
}

func (svc *Service) handleDetail(w http.ResponseWriter, r *http.Request) {
	d, err := svc.Dashboard.Detail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Recording: d.Record, Warnings: d.Warnings})
}

func (svc *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := svc.Dashboard.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type personaOut struct {
	Code    jobs.Persona `json:"code"`
	Label   string       `json:"label"`
	Default bool         `json:"default,omitempty"`
}

func handlePersonas(w http.ResponseWriter, _ *http.Request) {
	out := make([]personaOut, 0, len(jobs.ValidPersonas))
	for _, p := range jobs.ValidPersonas {
		out = append(out, personaOut{Code: p, Label: p.Label(), Default: p == jobs.DefaultPersona})
	}
	writeJSON(w, http.StatusOK, out)
}

func (svc *Service) logger() *slog.Logger {
	if svc.Log == nil {
		return slog.Default()
	}
	return svc.Log
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(common.HeaderContentType, common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}
