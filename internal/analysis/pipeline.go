package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lukasbauer/apriori/internal/llm"
	"github.com/lukasbauer/apriori/internal/metrics"
)

const (
	analysisTemperature = 0.1
	analysisMaxTokens   = 2000
)

// Pipeline analyzes transcripts with a language model. It never returns an
// error: failures degrade to a fallback record.
type Pipeline struct {
	client      llm.Client
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Concurrency int // AnalyzeAll fan-out, default 4
	Now         func() time.Time
}

// NewPipeline creates a pipeline around client.
func NewPipeline(client llm.Client, logger zerolog.Logger, m *metrics.Metrics, cfg PipelineConfig) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Pipeline{
		client:      client,
		logger:      logger,
		metrics:     m,
		concurrency: cfg.Concurrency,
		now:         cfg.Now,
	}
}

// Analyze produces an InsightRecord for one transcript.
func (p *Pipeline) Analyze(ctx context.Context, transcript string, ec *EmployeeContext) Result {
	start := p.now()

	content, err := p.client.Complete(ctx, llm.CompletionRequest{
		System:      SystemPromptSpanish,
		Prompt:      BuildPrompt(transcript, ec),
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	if err != nil {
		return p.fallback(transcript, start, fmt.Errorf("failed to call language model: %w", err))
	}

	rec, err := ParseResponse(content, p.client.Model())
	if err != nil {
		return p.fallback(transcript, start, err)
	}

	elapsed := p.now().Sub(start)
	rec.ProcessingSeconds = elapsed.Seconds()
	p.metrics.AnalysisOutcomes.WithLabelValues(string(OutcomeSuccess)).Inc()
	p.metrics.AnalysisLatency.Observe(elapsed.Seconds())
	return Result{Record: rec, Outcome: OutcomeSuccess}
}

func (p *Pipeline) fallback(transcript string, start time.Time, err error) Result {
	elapsed := p.now().Sub(start)
	p.logger.Warn().Err(err).Msg("AnalysisPipeline: using fallback record")
	p.metrics.AnalysisOutcomes.WithLabelValues(string(OutcomeFallback)).Inc()
	p.metrics.AnalysisLatency.Observe(elapsed.Seconds())
	return Result{Record: Fallback(transcript, elapsed), Outcome: OutcomeFallback, Err: err}
}

// Job is one transcript to analyze with AnalyzeAll.
type Job struct {
	Transcript string
	Context    *EmployeeContext
}

// AnalyzeAll analyzes independent transcripts concurrently with bounded
// fan-out. Results are returned in input order.
func (p *Pipeline) AnalyzeAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = p.Analyze(gctx, job.Transcript, job.Context)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
