package mockbackend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jo-hoe/insightboard/internal/jobs"
	"github.com/jo-hoe/insightboard/internal/llm"
)

// Pipeline moves an analysis PENDING -> PROCESSING -> DONE|FAILED.
type Pipeline struct {
	Log       *slog.Logger
	Store     *memStore
	Analyzer  llm.Analyzer
	FailEvery int // every Nth upload fails; 0 disables
}

var _ Processor = (*Pipeline)(nil)

func (p *Pipeline) Process(ctx context.Context, item WorkItem) error {
	a, ok := p.Store.get(item.AnalysisID)
	if !ok {
		// Deleted while queued.
		return nil
	}
	p.Store.setStatus(a.ID, jobs.StatusProcessing)

	f, err := os.Open(item.AudioPath)
	if err != nil {
		p.Store.setStatus(a.ID, jobs.StatusFailed)
		return fmt.Errorf("open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	res, err := p.Analyzer.Analyze(ctx, llm.Request{
		Audio:    f,
		FileName: a.Name,
		MimeType: item.MimeType,
		Persona:  a.Persona,
		Context:  a.Context,
	})
	if err != nil {
		p.Store.setStatus(a.ID, jobs.StatusFailed)
		return fmt.Errorf("analyze: %w", err)
	}
	if p.FailEvery > 0 && a.Seq%p.FailEvery == 0 {
		p.Store.setStatus(a.ID, jobs.StatusFailed)
		return fmt.Errorf("injected failure for upload #%d", a.Seq)
	}
	p.Store.complete(a.ID, res)
	return nil
}
