package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"phospho/internal/query"
)

// Manager formats and exports query results
type Manager struct {
	options TableDisplayOptions

	labelStyle lipgloss.Style
	barStyle   lipgloss.Style
	titleStyle lipgloss.Style
}

// NewManager creates a new results manager
func NewManager(options TableDisplayOptions) *Manager {
	m := &Manager{
		options:    options,
		labelStyle: lipgloss.NewStyle(),
		barStyle:   lipgloss.NewStyle(),
		titleStyle: lipgloss.NewStyle(),
	}
	if options.Color {
		m.titleStyle = lipgloss.NewStyle().Bold(true)
		m.labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		m.barStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	}
	return m
}

// headers returns the column names of a result: the breakdown field and
// the metric
func headers(result *query.QueryResult) []string {
	breakdown := "breakdown_by"
	if len(result.Query.Dimensions) > 0 {
		breakdown = result.Query.Dimensions[0]
	}
	metric := string(result.Query.AggregationOperation)
	if result.Query.AggregationField != "" {
		metric += "(" + result.Query.AggregationField + ")"
	}
	return []string{breakdown, metric}
}

// ExportToCSV writes query results to path in CSV format
func (m *Manager) ExportToCSV(result *query.QueryResult, outputPath string) error {
	return m.exportDelimited(result, outputPath, ',')
}

// ExportToTSV writes query results to path in TSV format
func (m *Manager) ExportToTSV(result *query.QueryResult, outputPath string) error {
	return m.exportDelimited(result, outputPath, '\t')
}

func (m *Manager) exportDelimited(result *query.QueryResult, outputPath string, comma rune) error {
	file, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = comma

	if err := writer.Write(headers(result)); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, row := range result.Rows {
		record := []string{row.BreakdownBy, strconv.FormatFloat(row.Metric, 'f', -1, 64)}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportToJSON writes query results to path in JSON format
func (m *Manager) ExportToJSON(result *query.QueryResult, outputPath string, prettify bool) error {
	file, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	if prettify {
		encoder.SetIndent("", "  ")
	}

	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}

	return nil
}

// Export writes result in the format named by options
func (m *Manager) Export(result *query.QueryResult, options ExportOptions) error {
	if options.MaxRows > 0 && len(result.Rows) > options.MaxRows {
		trimmed := *result
		trimmed.Rows = result.Rows[:options.MaxRows]
		trimmed.RowCount = len(trimmed.Rows)
		result = &trimmed
	}

	switch options.Format {
	case FormatCSV, "":
		return m.ExportToCSV(result, options.OutputPath)
	case FormatTSV:
		return m.ExportToTSV(result, options.OutputPath)
	case FormatJSON:
		return m.ExportToJSON(result, options.OutputPath, options.Prettify)
	default:
		return fmt.Errorf("unsupported export format: %s", options.Format)
	}
}

// FormatResultTable formats query results for console display
func (m *Manager) FormatResultTable(result *query.QueryResult) []string {
	if len(result.Rows) == 0 {
		return []string{"No data returned"}
	}

	cols := headers(result)
	displayRows := result.Rows
	if m.options.MaxRows > 0 && len(displayRows) > m.options.MaxRows {
		displayRows = displayRows[:m.options.MaxRows]
	}

	cells := make([][]string, 0, len(displayRows))
	for _, row := range displayRows {
		cells = append(cells, []string{row.BreakdownBy, formatMetric(row.Metric)})
	}

	colWidths := make([]int, len(cols))
	for i, header := range cols {
		colWidths[i] = min(len(header), m.options.MaxColWidth)
	}
	for _, row := range cells {
		for i, cell := range row {
			if len(cell) > colWidths[i] {
				colWidths[i] = min(len(cell), m.options.MaxColWidth)
			}
		}
	}

	var lines []string

	headerParts := make([]string, len(cols))
	for i, header := range cols {
		headerParts[i] = padOrTruncate(header, colWidths[i])
	}
	lines = append(lines, "| "+strings.Join(headerParts, " | ")+" |")

	separatorParts := make([]string, len(cols))
	for i, width := range colWidths {
		separatorParts[i] = strings.Repeat("-", width+2)
	}
	lines = append(lines, "|"+strings.Join(separatorParts, "|")+"|")

	for _, row := range cells {
		rowParts := make([]string, len(row))
		for i, cell := range row {
			rowParts[i] = padOrTruncate(cell, colWidths[i])
		}
		lines = append(lines, "| "+strings.Join(rowParts, " | ")+" |")
	}

	if len(result.Rows) > len(displayRows) {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("Showing %d of %d rows", len(displayRows), len(result.Rows)))
	}

	return lines
}

// RenderChart draws the result as horizontal bars, one per breakdown
// value, titled with the chart axes
func (m *Manager) RenderChart(result *query.QueryResult) string {
	if len(result.Rows) == 0 {
		return "No data returned"
	}

	title := fmt.Sprintf("%s chart  x: %s  y: %s", result.ChartType,
		orDash(result.Axes.XField), orDash(strings.Join(result.Axes.YFields, ", ")))

	labelWidth := 0
	maxMetric := 0.0
	for _, row := range result.Rows {
		labelWidth = max(labelWidth, min(len(row.BreakdownBy), m.options.MaxColWidth))
		maxMetric = math.Max(maxMetric, math.Abs(row.Metric))
	}

	barWidth := m.options.BarWidth
	if barWidth <= 0 {
		barWidth = 40
	}

	lines := []string{m.titleStyle.Render(title)}
	for _, row := range result.Rows {
		n := 0
		if maxMetric > 0 {
			n = int(math.Round(math.Abs(row.Metric) / maxMetric * float64(barWidth)))
		}
		label := m.labelStyle.Render(padOrTruncate(row.BreakdownBy, labelWidth))
		bar := m.barStyle.Render(strings.Repeat("█", n))
		lines = append(lines, fmt.Sprintf("%s │%s %s", label, bar, formatMetric(row.Metric)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// FormatTiles lists dashboard tiles for console display
func (m *Manager) FormatTiles(tiles []query.DashboardTile) []string {
	if len(tiles) == 0 {
		return []string{"No dashboard tiles"}
	}

	lines := make([]string, 0, len(tiles))
	for i, tile := range tiles {
		lines = append(lines, fmt.Sprintf("%3d. [%s] %s", i, tile.Type, tile.TileName))
	}
	return lines
}

func createOutput(outputPath string) (*os.File, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, nil
}

func formatMetric(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Helper functions
func padOrTruncate(s string, width int) string {
	if len(s) > width {
		if width > 3 {
			return s[:width-3] + "..."
		}
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}
