package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jo-hoe/insightboard/internal/jobs"
	"github.com/jo-hoe/insightboard/internal/llm"
)

var _ llm.Analyzer = (*Analyzer)(nil)

// Analyzer fabricates a deterministic transcript and insight after a delay.
type Analyzer struct {
	delay time.Duration
}

// New creates a mock analyzer that takes delay to "process" each recording.
func New(delay time.Duration) *Analyzer {
	return &Analyzer{delay: delay}
}

var personaFocus = map[jobs.Persona]struct {
	category string
	items    []string
}{
	jobs.PersonaFounder:  {"OPERATIONS", []string{"Review staffing for the weekend", "Follow up on the supplier invoice"}},
	jobs.PersonaDesigner: {"CUSTOMER_SATISFACTION", []string{"Sketch the requested neckline change", "Pull lace samples for the next visit"}},
	jobs.PersonaFitter:   {"OPERATIONS", []string{"Take in the waist by 2 cm", "Schedule the second fitting"}},
	jobs.PersonaSales:    {"SALES", []string{"Send the quote including accessories", "Call back before Friday"}},
}

// Analyze implements llm.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, req llm.Request) (llm.Result, error) {
	if req.Audio == nil {
		return llm.Result{}, errors.New("audio is required")
	}
	n, err := io.Copy(io.Discard, req.Audio)
	if err != nil {
		return llm.Result{}, fmt.Errorf("read audio: %w", err)
	}
	if n == 0 {
		return llm.Result{}, errors.New("audio is empty")
	}

	if a.delay > 0 {
		t := time.NewTimer(a.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return llm.Result{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return llm.Result{}, err
	}

	persona := req.Persona
	focus, ok := personaFocus[persona]
	if !ok {
		persona = jobs.DefaultPersona
		focus = personaFocus[persona]
	}

	segments := []jobs.Segment{
		{Start: 0, End: 4.5, Text: "Hello, thanks for coming in today.", Speaker: "Speaker"},
		{Start: 4.5, End: 11, Text: fmt.Sprintf("Let's go through %s together.", req.FileName), Speaker: "Speaker"},
	}
	if req.Context != "" {
		segments = append(segments, jobs.Segment{Start: 11, End: 15, Text: req.Context, Speaker: "Speaker"})
	}
	var full string
	for i, s := range segments {
		if i > 0 {
			full += " "
		}
		full += s.Text
	}

	priority := 2
	return llm.Result{
		Segments: segments,
		FullText: full,
		Insight: jobs.Insight{
			Title:          fmt.Sprintf("%s review of %s", persona.Label(), req.FileName),
			Summary:        fmt.Sprintf("Mock analysis of %s (%d bytes, %s).", req.FileName, n, req.MimeType),
			ActionItems:    append([]string(nil), focus.items...),
			CriticalPoints: []string{"No critical issues detected"},
			Category:       focus.category,
			Sentiment:      "Neutral",
			Priority:       &priority,
		},
	}, nil
}
