package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/insightboard/internal/jobs"
)

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*s = looseString(n.String())
	return nil
}

// looseInt accepts a JSON number or a numeric string.
type looseInt struct {
	v  int
	ok bool
}

func (i *looseInt) UnmarshalJSON(b []byte) error {
	var s looseString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		*i = looseInt{}
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", str)
	}
	*i = looseInt{v: int(f), ok: true}
	return nil
}

func (i looseInt) ptr() *int {
	if !i.ok {
		return nil
	}
	v := i.v
	return &v
}

// wireRecord is one entry of the get_recordings response.
type wireRecord struct {
	ID             looseString `json:"id"`
	CreatedAt      string      `json:"created_at"`
	Status         string      `json:"status"`
	Persona        string      `json:"persona"`
	Name           string      `json:"name"`
	SummarySnippet string      `json:"summary_snippet"`
}

func (w wireRecord) record() jobs.Record {
	return jobs.Record{
		ID:             jobs.AuthoritativeID(string(w.ID)),
		DisplayName:    w.Name,
		CreatedAt:      parseTime(w.CreatedAt),
		Status:         jobs.ParseStatus(w.Status),
		Persona:        jobs.Persona(strings.ToUpper(strings.TrimSpace(w.Persona))),
		SummarySnippet: w.SummarySnippet,
	}
}

// acceptance is the upload_audio response body.
type acceptance struct {
	AnalysisID looseString `json:"analysis_id"`
	Status     string      `json:"status"`
}

// Server timestamps arrive either as RFC 3339 or as Python's str(datetime),
// with a space separator and an optional zone offset.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTime returns the zero time for values no layout accepts.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
