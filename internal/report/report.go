// Package report renders insights as an XLSX workbook for HR.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lukasbauer/apriori/internal/analysis"
	"github.com/lukasbauer/apriori/internal/followup"
)

// Sheet names.
const (
	SheetSummary     = "Resumen"
	SheetReasons     = "Motivos"
	SheetDepartments = "Departamentos"
	SheetCalls       = "Llamadas"
)

// Insights is everything the workbook shows for one period.
type Insights struct {
	Since       time.Time
	Aggregate   analysis.AggregateInsights
	Departments []analysis.DepartmentSummary
	Calls       followup.CallAnalytics
}

// Source is the read side Load needs.
type Source interface {
	ListInsights(ctx context.Context, since time.Time) ([]analysis.DepartmentInsight, error)
	ListCalls(ctx context.Context, since time.Time) ([]followup.FollowUpCall, error)
}

// Load gathers the insights of the days before now.
func Load(ctx context.Context, src Source, now time.Time, days int) (Insights, error) {
	since := now.AddDate(0, 0, -days)

	items, err := src.ListInsights(ctx, since)
	if err != nil {
		return Insights{}, fmt.Errorf("failed to list insights: %w", err)
	}
	calls, err := src.ListCalls(ctx, since)
	if err != nil {
		return Insights{}, fmt.Errorf("failed to list calls: %w", err)
	}

	records := make([]analysis.InsightRecord, len(items))
	for i, it := range items {
		records[i] = it.Record
	}
	return Insights{
		Since:       since,
		Aggregate:   analysis.Aggregate(records, now),
		Departments: analysis.DepartmentBreakdown(items),
		Calls:       followup.SummarizeCalls(calls),
	}, nil
}

// Build creates the workbook. The caller closes it.
func Build(in Insights) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetReasons, SheetDepartments, SheetCalls} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"305496"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &sheetWriter{f: f, header: header}
	w.summary(in)
	w.reasons(in.Aggregate.TopReasons)
	w.departments(in.Departments)
	w.calls(in.Calls)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// WriteInsightsWorkbook builds the workbook and writes it to out.
func WriteInsightsWorkbook(out io.Writer, in Insights) error {
	f, err := Build(in)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error so sheets can be written without
// checking every cell.
type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (w *sheetWriter) row(sheet string, n int, values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("failed to write %s row %d: %w", sheet, n, err)
	}
}

func (w *sheetWriter) headerRow(sheet string, titles ...any) {
	w.row(sheet, 1, titles...)
	if w.err != nil {
		return
	}
	last, err := excelize.CoordinatesToCellName(len(titles), 1)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetCellStyle(sheet, "A1", last, w.header); err != nil {
		w.err = err
		return
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetColWidth(sheet, "A", lastCol, 22)
}

func (w *sheetWriter) summary(in Insights) {
	a := in.Aggregate
	w.headerRow(SheetSummary, "Métrica", "Valor")
	rows := [][]any{
		{"Desde", in.Since.Format("2006-01-02")},
		{"Generado", a.GeneratedAt.Format(time.RFC3339)},
		{"Entrevistas analizadas", a.TotalInterviews},
		{"Satisfacción media", a.AvgSatisfaction},
		{"Sentimiento medio", a.AvgSentiment},
		{"Riesgo de rotación medio", a.AvgRetentionRisk},
		{"Riesgo bajo", a.RiskDistribution.Low},
		{"Riesgo medio", a.RiskDistribution.Medium},
		{"Riesgo alto", a.RiskDistribution.High},
	}
	for i, r := range rows {
		w.row(SheetSummary, i+2, r...)
	}
}

func (w *sheetWriter) reasons(top []analysis.ReasonCount) {
	w.headerRow(SheetReasons, "Motivo", "Entrevistas")
	for i, r := range top {
		w.row(SheetReasons, i+2, r.Reason, r.Count)
	}
}

func (w *sheetWriter) departments(ds []analysis.DepartmentSummary) {
	w.headerRow(SheetDepartments, "Departamento", "Entrevistas", "Satisfacción media", "Riesgo medio")
	for i, d := range ds {
		w.row(SheetDepartments, i+2, d.Department, d.Interviews, d.AvgSatisfaction, d.AvgRetentionRisk)
	}
}

func (w *sheetWriter) calls(c followup.CallAnalytics) {
	w.headerRow(SheetCalls, "Métrica", "Valor")
	rows := [][]any{
		{"Llamadas", c.Total},
		{"Completadas", c.Completed},
		{"Fallidas", c.Failed},
		{"Canceladas", c.Cancelled},
		{"Pendientes", c.Pending},
		{"Tasa de finalización", c.CompletionRate},
		{"Tasa de éxito", c.SuccessRate},
		{"Requieren seguimiento humano", c.HumanFollowupNeeded},
		{"Coste total (céntimos)", c.TotalCostCents},
		{"Riesgo alto", c.RiskDistribution.High},
		{"Riesgo medio", c.RiskDistribution.Medium},
		{"Riesgo bajo", c.RiskDistribution.Low},
		{"Riesgo desconocido", c.RiskDistribution.Unknown},
	}

	types := make([]string, 0, len(c.ByType))
	for ct := range c.ByType {
		types = append(types, string(ct))
	}
	sort.Strings(types)
	for _, ct := range types {
		tc := c.ByType[followup.CallType(ct)]
		rows = append(rows, []any{ct + " (total / completadas)", fmt.Sprintf("%d / %d", tc.Total, tc.Completed)})
	}

	for i, r := range rows {
		w.row(SheetCalls, i+2, r...)
	}
}
