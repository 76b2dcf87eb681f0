package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/jo-hoe/insightboard/internal/common"
	"github.com/jo-hoe/insightboard/internal/config"
	"github.com/jo-hoe/insightboard/internal/jobs"
)

const (
	errorSnippetLimit = 400
	maxResponseBytes  = 32 << 20
)

// Upload is one audio submission.
type Upload struct {
	File        io.Reader
	FileName    string
	OwnerID     string
	Persona     jobs.Persona
	Context     string
	DisplayName string // forwarded as "name"; the backend may ignore it
}

// Acceptance is the backend's acknowledgment of an upload. ServerID is empty
// when the backend did not disclose the id it assigned.
type Acceptance struct {
	ServerID string
	Status   string
}

// Client talks to the analysis REST backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a backend client from configuration.
func New(cfg config.BackendConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = common.DefaultBackendTimeout
	}
	return NewWithHTTPClient(cfg.BaseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a client using hc for all requests.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: common.DefaultBackendTimeout}
	}
	return &Client{httpClient: hc, baseURL: strings.TrimRight(baseURL, "/")}
}

// Submit uploads one file. Exactly one request is sent; there is no retry.
func (c *Client) Submit(ctx context.Context, up Upload) (Acceptance, error) {
	if up.File == nil {
		return Acceptance{}, &SubmissionError{Message: "no file provided"}
	}
	u, err := url.JoinPath(c.baseURL, common.BackendPathUpload)
	if err != nil {
		return Acceptance{}, &SubmissionError{Message: "join url", Cause: err}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		_ = pw.CloseWithError(writeUploadForm(mw, up))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		_ = pr.Close()
		return Acceptance{}, &SubmissionError{Message: "new request", Cause: err}
	}
	req.Header.Set(common.HeaderContentType, mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return Acceptance{}, &SubmissionError{Cause: transportErr(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if !success(resp.StatusCode) {
		return Acceptance{}, &SubmissionError{StatusCode: resp.StatusCode, Message: truncate(string(body), errorSnippetLimit)}
	}

	// The acknowledgment body is opaque; a non-JSON body still means accepted.
	var ack acceptance
	if err := json.Unmarshal(body, &ack); err != nil {
		return Acceptance{}, nil
	}
	return Acceptance{ServerID: strings.TrimSpace(string(ack.AnalysisID)), Status: ack.Status}, nil
}

func writeUploadForm(mw *multipart.Writer, up Upload) error {
	fields := [][2]string{
		{common.FieldOwner, up.OwnerID},
		{common.FieldPersona, string(up.Persona)},
	}
	if up.Context != "" {
		fields = append(fields, [2]string{common.FieldContext, up.Context})
	}
	if up.DisplayName != "" {
		fields = append(fields, [2]string{common.FieldName, up.DisplayName})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	part, err := mw.CreateFormFile(common.FieldFile, up.FileName)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, up.File); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	return mw.Close()
}

// List fetches the owner's authoritative records in backend order.
// Entries without an id are dropped.
func (c *Client) List(ctx context.Context, ownerID string) ([]jobs.Record, error) {
	u, err := url.JoinPath(c.baseURL, common.BackendPathRecordings)
	if err != nil {
		return nil, &FetchError{Op: "list", Message: "join url", Cause: err}
	}
	u += "?" + url.Values{common.FieldOwner: {ownerID}}.Encode()

	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, &FetchError{Op: "list", StatusCode: status, Message: truncate(string(body), errorSnippetLimit), Cause: err}
	}

	var wire []wireRecord
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &FetchError{Op: "list", StatusCode: status, Message: "decode response", Cause: err}
	}
	out := make([]jobs.Record, 0, len(wire))
	for _, w := range wire {
		if strings.TrimSpace(string(w.ID)) == "" {
			continue
		}
		out = append(out, w.record())
	}
	return out, nil
}

// Detail fetches and normalises the full analysis of one record.
func (c *Client) Detail(ctx context.Context, id string) (*Detail, error) {
	u, err := url.JoinPath(c.baseURL, common.BackendPathAnalysis, url.PathEscape(id))
	if err != nil {
		return nil, &FetchError{Op: "detail", Message: "join url", Cause: err}
	}
	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, &FetchError{Op: "detail", StatusCode: status, Message: truncate(string(body), errorSnippetLimit), Cause: err}
	}
	d, err := DecodeDetail(body)
	if err != nil {
		return nil, &FetchError{Op: "detail", StatusCode: status, Cause: err}
	}
	return d, nil
}

// Delete removes one record. Any status outside 2xx is a failure.
func (c *Client) Delete(ctx context.Context, id string) error {
	u, err := url.JoinPath(c.baseURL, common.BackendPathDelete, url.PathEscape(id))
	if err != nil {
		return &DeleteError{ID: id, Message: "join url", Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return &DeleteError{ID: id, Message: "new request", Cause: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DeleteError{ID: id, Cause: transportErr(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if !success(resp.StatusCode) {
		return &DeleteError{ID: id, StatusCode: resp.StatusCode, Message: truncate(string(body), errorSnippetLimit)}
	}
	return nil
}

var errStatus = errors.New("unexpected status")

// get returns the body and status; non-2xx responses yield errStatus with the body.
func (c *Client) get(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", common.ContentTypeJSON)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, transportErr(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if !success(resp.StatusCode) {
		return body, resp.StatusCode, errStatus
	}
	return body, resp.StatusCode, nil
}

func transportErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("http do: %w", err)
}

func success(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

