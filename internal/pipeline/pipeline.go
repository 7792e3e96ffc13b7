package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/rawblock/muletrace-engine/internal/graph"
	"github.com/rawblock/muletrace-engine/internal/heuristics"
	"github.com/rawblock/muletrace-engine/internal/ingest"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Pipeline runs one full analysis pass: normalize rows, build the graph,
// execute the detectors, assemble rings and scores, aggregate the output
// payload. The graph and all derived statistics are rebuilt from scratch on
// every run; batch and streaming callers differ only in how they accumulate
// the row set they hand in.
type Pipeline struct {
	engine      *heuristics.Engine
	workers     int
	suppression graph.SuppressionThresholds
}

// Option tweaks pipeline construction.
type Option func(*Pipeline)

// WithParseWorkers sets the batch parse fan-out.
func WithParseWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithSuppression overrides the hub-suppression thresholds.
func WithSuppression(t graph.SuppressionThresholds) Option {
	return func(p *Pipeline) { p.suppression = t }
}

// New builds a pipeline around a validated detector engine.
func New(caps heuristics.Caps, opts ...Option) (*Pipeline, error) {
	engine, err := heuristics.NewEngine(caps)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		engine:      engine,
		workers:     ingest.DefaultParseWorkers,
		suppression: graph.DefaultSuppression,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ParseDocument parses a delimited document with the pipeline's worker
// fan-out. A missing required column aborts the batch with no rows.
func (p *Pipeline) ParseDocument(text string) ([]models.Row, error) {
	return ingest.ParseDocument(text, p.workers)
}

// Run executes the full pipeline over the given accumulated row set.
func (p *Pipeline) Run(rows []models.Row) (*models.Result, error) {
	if p == nil || p.engine == nil {
		return nil, heuristics.ErrDetectorUnavailable
	}
	started := time.Now()

	txs := ingest.Normalize(rows)
	g := graph.Build(txs)
	g.Suppression = p.suppression

	report, err := p.engine.Analyze(g)
	if err != nil {
		return nil, err
	}

	result := aggregate(g, txs, report)
	result.RunID = uuid.New().String()
	result.AnalysisMS = float64(time.Since(started).Microseconds()) / 1000.0
	result.AnalysisPayload.Summary.ProcessingTimeSeconds = round1(result.AnalysisMS / 1000.0)
	return result, nil
}
