package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jo-hoe/insightboard/internal/jobs"
)

// Detail is the normalised get_analysis payload. Record.Insight is always
// set; fields that failed to decode are empty and listed in Warnings.
type Detail struct {
	Record   jobs.Record
	Warnings []*ParseError
}

type wireDetail struct {
	ID              looseString     `json:"id"`
	Status          string          `json:"status"`
	CreatedAt       string          `json:"created_at"`
	Persona         string          `json:"persona"`
	Name            string          `json:"name"`
	MainSummary     string          `json:"main_summary"`
	InsightCategory string          `json:"insight_category"`
	RawInsight      json.RawMessage `json:"raw_insight_json"`
	Transcript      json.RawMessage `json:"transcript"`
	Segments        json.RawMessage `json:"segments"`
}

type wireInsight struct {
	Title          string   `json:"title"`
	MainSummary    string   `json:"main_summary"`
	Summary        string   `json:"summary"`
	ActionItems    []string `json:"action_items"`
	CriticalPoints []string `json:"critical_points"`
	Category       string   `json:"category"`
	Sentiment      string   `json:"sentiment"`
	Priority       looseInt `json:"priority"`
}

type wireSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

// DecodeDetail parses a get_analysis body. The embedded raw_insight_json and
// segments fields may be structured values or strings holding JSON; both
// forms decode to the same result. Only a malformed envelope is an error.
func DecodeDetail(body []byte) (*Detail, error) {
	var w wireDetail
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode detail: %w", err)
	}
	if strings.TrimSpace(string(w.ID)) == "" {
		return nil, errors.New("decode detail: missing id")
	}

	d := &Detail{}
	rec := wireRecord{
		ID:        w.ID,
		CreatedAt: w.CreatedAt,
		Status:    w.Status,
		Persona:   w.Persona,
		Name:      w.Name,
	}.record()

	var wi wireInsight
	if err := decodeEmbedded(w.RawInsight, &wi); err != nil {
		d.Warnings = append(d.Warnings, &ParseError{Field: "raw_insight_json", Cause: err})
		wi = wireInsight{}
	}
	var segs []wireSegment
	if err := decodeSegments(w.Segments, &segs); err != nil {
		d.Warnings = append(d.Warnings, &ParseError{Field: "segments", Cause: err})
		segs = nil
	}
	fullText, err := decodeText(w.Transcript)
	if err != nil {
		d.Warnings = append(d.Warnings, &ParseError{Field: "transcript", Cause: err})
	}

	in := &jobs.Insight{
		Title:          wi.Title,
		Summary:        firstNonEmpty(wi.MainSummary, wi.Summary, w.MainSummary),
		ActionItems:    nonNil(wi.ActionItems),
		CriticalPoints: wi.CriticalPoints,
		Category:       firstNonEmpty(wi.Category, w.InsightCategory),
		Sentiment:      wi.Sentiment,
		Priority:       wi.Priority.ptr(),
		Transcript:     make([]jobs.Segment, 0, len(segs)),
		FullText:       fullText,
	}
	for _, s := range segs {
		in.Transcript = append(in.Transcript, jobs.Segment(s))
	}
	rec.Insight = in
	rec.SummarySnippet = in.Summary
	d.Record = rec
	return d, nil
}

// unwrapEmbedded returns the JSON held by raw, unquoting it when the backend
// sent it as a string. A nil result means the field is absent or empty.
func unwrapEmbedded(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil, nil
	}
	return json.RawMessage(s), nil
}

func decodeEmbedded(raw json.RawMessage, dst any) error {
	inner, err := unwrapEmbedded(raw)
	if err != nil || inner == nil {
		return err
	}
	return json.Unmarshal(inner, dst)
}

// decodeSegments also accepts an object wrapping the list under "segments".
func decodeSegments(raw json.RawMessage, dst *[]wireSegment) error {
	inner, err := unwrapEmbedded(raw)
	if err != nil || inner == nil {
		return err
	}
	if inner[0] == '{' {
		var wrapped struct {
			Segments []wireSegment `json:"segments"`
		}
		if err := json.Unmarshal(inner, &wrapped); err != nil {
			return err
		}
		*dst = wrapped.Segments
		return nil
	}
	return json.Unmarshal(inner, dst)
}

// decodeText reads the plain transcript text; it is normally a string but
// an object with a "full_text" key is accepted too.
func decodeText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var obj struct {
		FullText string `json:"full_text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	return obj.FullText, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
