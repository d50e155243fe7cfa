package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukasbauer/apriori/internal/analysis"
	"github.com/lukasbauer/apriori/internal/llm"
	"github.com/lukasbauer/apriori/internal/metrics"
)

type analyzeOutput struct {
	File    string                 `json:"file"`
	Outcome analysis.Outcome       `json:"outcome"`
	Error   string                 `json:"error,omitempty"`
	Record  analysis.InsightRecord `json:"record"`
}

func newAnalyzeCommand() *cobra.Command {
	var department, position string
	var tenureMonths int

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyze transcript files and print the insight records",
		Long: `Analyze one or more plain-text transcripts with the configured language model.
Files are analyzed concurrently (ANALYSIS_CONCURRENCY). A failed analysis still
prints a fallback record with outcome "fallback".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := setup()
			if cfg.OpenAIAPIKey == "" {
				logger.Warn().Msg("Analyze: OPENAI_API_KEY not set, records will be fallbacks")
			}

			var ec *analysis.EmployeeContext
			if department != "" || position != "" || tenureMonths > 0 {
				ec = &analysis.EmployeeContext{Department: department, Position: position, TenureMonths: tenureMonths}
			}

			jobs := make([]analysis.Job, len(args))
			for i, path := range args {
				b, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read transcript: %w", err)
				}
				jobs[i] = analysis.Job{Transcript: string(b), Context: ec}
			}

			pipeline := analysis.NewPipeline(llm.NewOpenAIClient(llm.OpenAIConfig{
				APIKey: cfg.OpenAIAPIKey,
				Model:  cfg.OpenAIModel,
			}), logger, metrics.NewNop(), analysis.PipelineConfig{Concurrency: cfg.AnalysisConcurrency})

			results := pipeline.AnalyzeAll(cmd.Context(), jobs)
			out := make([]analyzeOutput, len(results))
			for i, res := range results {
				out[i] = analyzeOutput{File: args[i], Outcome: res.Outcome, Record: res.Record}
				if res.Err != nil {
					out[i].Error = res.Err.Error()
				}
			}
			return writeJSON(cmd, out)
		},
	}

	cmd.Flags().StringVar(&department, "department", "", "Employee department for the prompt context")
	cmd.Flags().StringVar(&position, "position", "", "Employee position for the prompt context")
	cmd.Flags().IntVar(&tenureMonths, "tenure-months", 0, "Employee tenure in months for the prompt context")
	return cmd
}
