package aggregate

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"regsim/internal/dataio"
	"regsim/internal/model"
)

// Columns is the fixed header of the comparison table.
var Columns = []string{"Method", "Avg. Estimation Error", "Avg. Prediction Error"}

func formatError(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }

func tableRows(r model.ComparisonReport) [][]string {
	rows := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		rows = append(rows, []string{row.Family.Label(), formatError(row.AvgCoefficientError), formatError(row.AvgPredictionError)})
	}
	return rows
}

// RenderMarkdown renders the report as a standalone Markdown document.
func RenderMarkdown(r model.ComparisonReport) string {
	var b strings.Builder
	b.WriteString("# Penalized regression comparison\n\n")
	fmt.Fprintf(&b, "Averages over %d replicate(s). Estimation error is the mean squared difference between fitted and true coefficients; prediction error is the mean squared test-set residual.\n\n", r.Replicates)
	b.WriteString("| " + strings.Join(Columns, " | ") + " |\n")
	b.WriteString("|---|---:|---:|\n")
	for _, row := range tableRows(r) {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML renders the Markdown report to a standalone HTML page.
func RenderHTML(r model.ComparisonReport) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(RenderMarkdown(r)), &body); err != nil {
		return nil, fmt.Errorf("rendering report html: %w", err)
	}
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Penalized regression comparison</title>\n</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// RenderTerminal renders the report as a bordered table for interactive output.
func RenderTerminal(r model.ComparisonReport) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			default:
				return numberStyle
			}
		}).
		Headers(Columns...).
		Rows(tableRows(r)...)
	return t.String()
}

// WriteReport writes report.md and report.html under layout.
func WriteReport(layout dataio.Layout, r model.ComparisonReport) error {
	if err := dataio.WriteFileAtomic(layout.ReportMarkdownPath(), []byte(RenderMarkdown(r)), 0o644); err != nil {
		return fmt.Errorf("writing markdown report: %w", err)
	}
	page, err := RenderHTML(r)
	if err != nil {
		return err
	}
	if err := dataio.WriteFileAtomic(layout.ReportHTMLPath(), page, 0o644); err != nil {
		return fmt.Errorf("writing html report: %w", err)
	}
	return nil
}
