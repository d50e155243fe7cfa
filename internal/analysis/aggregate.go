package analysis

import (
	"math"
	"sort"
	"time"
)

const topReasonsLimit = 5

// Risk bucket thresholds: low < 0.3 <= medium < 0.7 <= high.
const (
	riskMediumFrom = 0.3
	riskHighFrom   = 0.7
)

// RiskBucket names a retention-risk band.
type RiskBucket string

const (
	RiskBucketLow    RiskBucket = "low"
	RiskBucketMedium RiskBucket = "medium"
	RiskBucketHigh   RiskBucket = "high"
)

// BucketFor maps a retention risk score to its band.
func BucketFor(risk float64) RiskBucket {
	switch {
	case risk < riskMediumFrom:
		return RiskBucketLow
	case risk < riskHighFrom:
		return RiskBucketMedium
	default:
		return RiskBucketHigh
	}
}

// ReasonCount is one entry of the primary-reason ranking.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// RiskDistribution counts records per risk band.
type RiskDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// AggregateInsights is an on-demand rollup. It is never persisted.
type AggregateInsights struct {
	TotalInterviews  int              `json:"total_interviews"`
	AvgSatisfaction  float64          `json:"avg_satisfaction"`
	AvgSentiment     float64          `json:"avg_sentiment"`
	AvgRetentionRisk float64          `json:"avg_retention_risk"`
	TopReasons       []ReasonCount    `json:"top_reasons"`
	RiskDistribution RiskDistribution `json:"risk_distribution"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// Aggregate rolls up records. Empty input yields zero values and an empty ranking.
func Aggregate(records []InsightRecord, now time.Time) AggregateInsights {
	out := AggregateInsights{
		TopReasons:  []ReasonCount{},
		GeneratedAt: now,
	}
	if len(records) == 0 {
		return out
	}

	var satisfaction, sentiment, risk float64
	reasons := make([]string, 0, len(records))
	for _, r := range records {
		satisfaction += r.SatisfactionScore
		sentiment += r.SentimentScore
		risk += r.RetentionRisk
		if r.PrimaryReason != "" {
			reasons = append(reasons, r.PrimaryReason)
		}

		switch BucketFor(r.RetentionRisk) {
		case RiskBucketLow:
			out.RiskDistribution.Low++
		case RiskBucketMedium:
			out.RiskDistribution.Medium++
		case RiskBucketHigh:
			out.RiskDistribution.High++
		}
	}

	n := float64(len(records))
	out.TotalInterviews = len(records)
	out.AvgSatisfaction = round2(satisfaction / n)
	out.AvgSentiment = round2(sentiment / n)
	out.AvgRetentionRisk = round2(risk / n)
	out.TopReasons = rankReasons(reasons, topReasonsLimit)
	return out
}

// rankReasons counts occurrences and orders by count descending, keeping
// first-seen order among equal counts.
func rankReasons(reasons []string, limit int) []ReasonCount {
	index := make(map[string]int)
	ranked := []ReasonCount{}
	for _, reason := range reasons {
		if i, ok := index[reason]; ok {
			ranked[i].Count++
			continue
		}
		index[reason] = len(ranked)
		ranked = append(ranked, ReasonCount{Reason: reason, Count: 1})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// DepartmentInsight pairs a record with the department of the interviewed employee.
type DepartmentInsight struct {
	Department string
	Record     InsightRecord
}

// DepartmentSummary is one row of the department breakdown.
type DepartmentSummary struct {
	Department       string  `json:"department"`
	Interviews       int     `json:"interviews"`
	AvgSatisfaction  float64 `json:"avg_satisfaction"`
	AvgRetentionRisk float64 `json:"avg_retention_risk"`
}

// DepartmentBreakdown groups records by department, ordered by interview count
// descending and then by first appearance.
func DepartmentBreakdown(items []DepartmentInsight) []DepartmentSummary {
	type acc struct {
		count              int
		satisfaction, risk float64
	}

	index := make(map[string]int)
	var names []string
	var sums []acc
	for _, it := range items {
		dept := it.Department
		if dept == "" {
			dept = "Sin departamento"
		}
		i, ok := index[dept]
		if !ok {
			i = len(names)
			index[dept] = i
			names = append(names, dept)
			sums = append(sums, acc{})
		}
		sums[i].count++
		sums[i].satisfaction += it.Record.SatisfactionScore
		sums[i].risk += it.Record.RetentionRisk
	}

	out := make([]DepartmentSummary, len(names))
	for i, name := range names {
		n := float64(sums[i].count)
		out[i] = DepartmentSummary{
			Department:       name,
			Interviews:       sums[i].count,
			AvgSatisfaction:  round2(sums[i].satisfaction / n),
			AvgRetentionRisk: round2(sums[i].risk / n),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Interviews > out[j].Interviews
	})
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
