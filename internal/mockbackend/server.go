// Package mockbackend is a development stand-in for the analysis REST backend.
// Uploads are accepted at once, recorded as PENDING and analysed in the
// background, so dashboards can be exercised without the real service.
package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jo-hoe/insightboard/internal/common"
	"github.com/jo-hoe/insightboard/internal/config"
	"github.com/jo-hoe/insightboard/internal/jobs"
	"github.com/jo-hoe/insightboard/internal/llm"
	"github.com/jo-hoe/insightboard/internal/llm/mock"
	"github.com/jo-hoe/insightboard/internal/server"
	"github.com/jo-hoe/insightboard/internal/storage"
)

// RoutePrefix is where the backend routes are mounted.
const RoutePrefix = "/api"

// pythonTimeLayout mirrors Python's str(datetime) for aware timestamps.
const pythonTimeLayout = "2006-01-02 15:04:05.000000-07:00"

// Options configures a Backend.
type Options struct {
	Log           *slog.Logger
	Analyzer      llm.Analyzer
	Uploader      *storage.Uploader
	MaxUploadSize int64
	Workers       int
	FailEvery     int
	// OmitAnalysisID answers uploads without the assigned id, as older
	// deployments did.
	OmitAnalysisID bool
}

// Backend serves the analysis REST surface from memory.
type Backend struct {
	log         *slog.Logger
	store       *memStore
	queue       *Queue
	pipeline    *Pipeline
	uploader    *storage.Uploader
	maxUpload   int64
	omitID      bool
	failDeletes atomic.Bool
}

// New creates a Backend. Start must be called before uploads are processed.
func New(opts Options) *Backend {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Analyzer == nil {
		opts.Analyzer = mock.New(0)
	}
	if opts.Uploader == nil {
		opts.Uploader = storage.NewUploader(filepath.Join(os.TempDir(), "insightboard-mock"))
	}
	store := newMemStore()
	return &Backend{
		log:   log,
		store: store,
		queue: NewQueue(log, 0, opts.Workers),
		pipeline: &Pipeline{
			Log:       log,
			Store:     store,
			Analyzer:  opts.Analyzer,
			FailEvery: opts.FailEvery,
		},
		uploader:  opts.Uploader,
		maxUpload: opts.MaxUploadSize,
		omitID:    opts.OmitAnalysisID,
	}
}

// Start launches the analysis workers.
func (b *Backend) Start(ctx context.Context) error {
	return b.queue.Start(ctx, b.pipeline)
}

// Shutdown stops the workers, waiting up to deadline for running analyses.
func (b *Backend) Shutdown(deadline time.Duration) {
	b.queue.Shutdown(deadline)
}

// FailDeletes makes every delete answer 500 while on.
func (b *Backend) FailDeletes(on bool) {
	b.failDeletes.Store(on)
}

// Handler returns the routes wrapped with access logging and panic recovery.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc(http.MethodPost+" "+RoutePrefix+"/"+common.BackendPathUpload, b.handleUpload)
	mux.HandleFunc(http.MethodGet+" "+RoutePrefix+"/"+common.BackendPathRecordings, b.handleList)
	mux.HandleFunc(http.MethodGet+" "+RoutePrefix+"/"+common.BackendPathAnalysis+"/{id}", b.handleDetail)
	mux.HandleFunc(http.MethodDelete+" "+RoutePrefix+"/"+common.BackendPathDelete+"/{id}", b.handleDelete)
	return server.Instrument(mux, b.log)
}

// NewHTTPServer builds the http.Server for the development backend.
func NewHTTPServer(cfg *config.Config, b *Backend) *http.Server {
	return &http.Server{
		Addr:         cfg.Mock.Addr,
		Handler:      b.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if b.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, b.maxUpload)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File[common.FieldFile]
	if len(files) == 0 {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	fh := files[0]

	owner := strings.TrimSpace(r.FormValue(common.FieldOwner))
	if owner == "" {
		owner = "unknown_user"
	}
	persona, err := jobs.ParsePersona(r.FormValue(common.FieldPersona))
	if err != nil {
		persona = jobs.DefaultPersona
	}

	path, cleanup, mimeType, err := b.uploader.SaveMultipartAudio(fh, b.maxUpload)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	a := b.store.create(analysis{
		ID:        uuid.NewString(),
		Owner:     owner,
		Name:      fh.Filename,
		Persona:   persona,
		Context:   r.FormValue(common.FieldContext),
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	if err := b.queue.Enqueue(WorkItem{AnalysisID: a.ID, AudioPath: path, MimeType: mimeType, Cleanup: cleanup}); err != nil {
		_ = cleanup()
		b.store.delete(a.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	b.log.Info("upload accepted", "job_id", a.ID, "owner", owner, "persona", persona)

	resp := map[string]string{"status": "success"}
	if !b.omitID {
		resp["analysis_id"] = a.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type listEntry struct {
	ID             string `json:"id"`
	CreatedAt      string `json:"created_at"`
	Status         string `json:"status"`
	Persona        string `json:"persona"`
	Name           string `json:"name"`
	SummarySnippet string `json:"summary_snippet"`
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get(common.FieldOwner)
	if owner == "" {
		owner = common.DefaultOwnerID
	}
	list := b.store.list(owner)
	out := make([]listEntry, 0, len(list))
	for _, a := range list {
		e := listEntry{
			ID:        a.ID,
			CreatedAt: a.CreatedAt.Format(pythonTimeLayout),
			Status:    string(a.Status),
			Persona:   string(a.Persona),
			Name:      a.Name,
		}
		if a.Result != nil {
			e.SummarySnippet = a.Result.Insight.Summary
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

type insightPayload struct {
	Title          string   `json:"title"`
	MainSummary    string   `json:"main_summary"`
	Category       string   `json:"category"`
	Priority       int      `json:"priority"`
	ActionItems    []string `json:"action_items"`
	CriticalPoints []string `json:"critical_points,omitempty"`
	Sentiment      string   `json:"sentiment"`
}

func (b *Backend) handleDetail(w http.ResponseWriter, r *http.Request) {
	a, ok := b.store.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Analysis not found", http.StatusNotFound)
		return
	}
	out := map[string]any{
		"id":               a.ID,
		"status":           string(a.Status),
		"created_at":       a.CreatedAt.Format(pythonTimeLayout),
		"persona":          string(a.Persona),
		"name":             a.Name,
		"main_summary":     "",
		"insight_category": "",
		"raw_insight_json": map[string]any{},
	}
	if a.Result != nil {
		in := a.Result.Insight
		priority := 2
		if in.Priority != nil {
			priority = *in.Priority
		}
		raw := insightPayload{
			Title:          in.Title,
			MainSummary:    in.Summary,
			Category:       in.Category,
			Priority:       priority,
			ActionItems:    in.ActionItems,
			CriticalPoints: in.CriticalPoints,
			Sentiment:      in.Sentiment,
		}
		out["main_summary"] = in.Summary
		out["insight_category"] = in.Category
		out["transcript"] = a.Result.FullText
		// Alternate encodings so clients meet both shapes the real backend produces.
		if a.Seq%2 == 0 {
			out["raw_insight_json"] = mustJSONString(raw)
			out["segments"] = mustJSONString(a.Result.Segments)
		} else {
			out["raw_insight_json"] = raw
			out["segments"] = a.Result.Segments
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if b.failDeletes.Load() {
		b.log.Warn("delete failed", "job_id", id, "err", errors.New("deletes disabled"))
		http.Error(w, "Failed to delete", http.StatusInternalServerError)
		return
	}
	b.store.delete(id)
	b.log.Info("analysis deleted", "job_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func mustJSONString(v any) string {
	bs, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(bs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(common.HeaderContentType, common.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
