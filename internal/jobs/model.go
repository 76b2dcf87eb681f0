package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/jo-hoe/insightboard/internal/common"
)

// Status represents the lifecycle stage of an analysis job.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

var statusAliases = map[string]Status{
	"PENDING":    StatusPending,
	"QUEUED":     StatusPending,
	"PROCESSING": StatusProcessing,
	"RUNNING":    StatusProcessing,
	"DONE":       StatusDone,
	"COMPLETED":  StatusDone,
	"SUCCEEDED":  StatusDone,
	"FAILED":     StatusFailed,
	"ERROR":      StatusFailed,
}

// ParseStatus maps a backend status string onto Status. Matching is
// case-insensitive; unknown values are treated as pending.
func ParseStatus(s string) Status {
	if st, ok := statusAliases[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return st
	}
	return StatusPending
}

func (s Status) rank() int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusDone, StatusFailed:
		return 2
	default:
		return 0
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s.rank() == 2 }

// MergeStatus returns the status a record should carry when prev was already
// observed and next was just reported. Status only moves forward along
// PENDING -> PROCESSING -> {DONE|FAILED}; terminal states are final.
func MergeStatus(prev, next Status) Status {
	if prev == "" {
		return next
	}
	if prev.Terminal() || next.rank() < prev.rank() {
		return prev
	}
	return next
}

// Persona is the analysis perspective chosen at submission time.
type Persona string

const (
	PersonaFounder  Persona = "FOUNDER"
	PersonaDesigner Persona = "DESIGNER"
	PersonaFitter   Persona = "FITTER"
	PersonaSales    Persona = "SALES"
)

// ValidPersonas lists personas in display order.
var ValidPersonas = []Persona{PersonaFounder, PersonaDesigner, PersonaFitter, PersonaSales}

// DefaultPersona is preselected when the caller does not choose one.
const DefaultPersona = PersonaFounder

var personaLabels = map[Persona]string{
	PersonaFounder:  "Founder (Business & Staff)",
	PersonaDesigner: "Designer (Style & Trends)",
	PersonaFitter:   "Fitter (Measurements & Alterations)",
	PersonaSales:    "Sales (Budget & Closing)",
}

// Label returns the human readable name of the persona.
func (p Persona) Label() string {
	if l, ok := personaLabels[p]; ok {
		return l
	}
	return string(p)
}

// Valid reports whether p is one of ValidPersonas.
func (p Persona) Valid() bool {
	_, ok := personaLabels[p]
	return ok
}

// ParsePersona normalises s and checks it against the fixed catalogue.
// An empty string yields DefaultPersona.
func ParsePersona(s string) (Persona, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return DefaultPersona, nil
	}
	p := Persona(v)
	if !p.Valid() {
		return "", fmt.Errorf("unknown persona %q", s)
	}
	return p, nil
}

// IDKind tells the two id spaces apart.
type IDKind uint8

const (
	KindAuthoritative IDKind = iota + 1
	KindSynthetic
)

func (k IDKind) String() string {
	switch k {
	case KindAuthoritative:
		return "authoritative"
	case KindSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// ID identifies a record in exactly one of two id spaces: server-assigned
// (authoritative) or client-synthesized (synthetic). Synthetic ids always
// carry common.LocalIDPrefix in their string form.
type ID struct {
	kind  IDKind
	value string
}

// SyntheticID wraps a client-generated id, adding the local prefix if missing.
func SyntheticID(local string) ID {
	if !strings.HasPrefix(local, common.LocalIDPrefix) {
		local = common.LocalIDPrefix + local
	}
	return ID{kind: KindSynthetic, value: local}
}

// AuthoritativeID wraps a server-assigned id.
func AuthoritativeID(server string) ID {
	return ID{kind: KindAuthoritative, value: server}
}

// ParseID recovers an ID from its string form.
func ParseID(s string) ID {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}
	}
	if strings.HasPrefix(s, common.LocalIDPrefix) {
		return ID{kind: KindSynthetic, value: s}
	}
	return AuthoritativeID(s)
}

func (id ID) Kind() IDKind          { return id.kind }
func (id ID) IsSynthetic() bool     { return id.kind == KindSynthetic }
func (id ID) IsAuthoritative() bool { return id.kind == KindAuthoritative }
func (id ID) IsZero() bool          { return id.kind == 0 }
func (id ID) String() string        { return id.value }

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	*id = ParseID(string(b))
	return nil
}

// Segment is one timed slice of a transcript. Offsets are in seconds.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end,omitempty"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Insight is the structured analysis result, present only once a job is DONE.
type Insight struct {
	Title          string    `json:"title,omitempty"`
	Summary        string    `json:"main_summary"`
	ActionItems    []string  `json:"action_items"`
	CriticalPoints []string  `json:"critical_points,omitempty"`
	Category       string    `json:"category,omitempty"`
	Sentiment      string    `json:"sentiment,omitempty"`
	Priority       *int      `json:"priority,omitempty"`
	Transcript     []Segment `json:"transcript"`
	FullText       string    `json:"full_text,omitempty"`
}

// Record is one tracked job as shown on the dashboard.
type Record struct {
	ID             ID        `json:"id"`
	DisplayName    string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	Status         Status    `json:"status"`
	Persona        Persona   `json:"persona"`
	SummarySnippet string    `json:"summary_snippet,omitempty"`
	Insight        *Insight  `json:"insight,omitempty"`

	// Placeholder bookkeeping, zero on authoritative records.
	SourceName  string `json:"source_name,omitempty"`
	ExpectedID  string `json:"expected_id,omitempty"`
	MissedPolls int    `json:"missed_polls,omitempty"`
	Stale       bool   `json:"stale,omitempty"`
}

// Synthetic reports whether r is a client-side placeholder.
func (r Record) Synthetic() bool { return r.ID.IsSynthetic() }

// PlaceholderParams describes a submission the gateway accepted.
type PlaceholderParams struct {
	LocalID     string
	DisplayName string
	SourceName  string
	Persona     Persona
	CreatedAt   time.Time
	ExpectedID  string
}

// NewPlaceholder builds the synthetic record projected right after a
// submission is accepted. Placeholders are always PROCESSING.
func NewPlaceholder(p PlaceholderParams) Record {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = p.SourceName
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return Record{
		ID:          SyntheticID(p.LocalID),
		DisplayName: name,
		CreatedAt:   created,
		Status:      StatusProcessing,
		Persona:     p.Persona,
		SourceName:  p.SourceName,
		ExpectedID:  p.ExpectedID,
	}
}
