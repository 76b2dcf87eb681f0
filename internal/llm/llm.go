package llm

import (
	"context"
	"io"

	"github.com/jo-hoe/insightboard/internal/jobs"
)

// Request is one recording to analyse from the given persona's point of view.
type Request struct {
	Audio    io.Reader
	FileName string
	MimeType string
	Persona  jobs.Persona
	Context  string // optional free-text hint supplied at upload
}

// Result carries the transcript and the structured insight.
type Result struct {
	Segments []jobs.Segment
	FullText string
	Insight  jobs.Insight
}

// Analyzer defines the capability to transcribe a recording and derive an insight from it.
type Analyzer interface {
	// Analyze reads the recording from r (seek not required) and returns the
	// transcript plus a persona-specific insight.
	Analyze(ctx context.Context, req Request) (Result, error)
}
