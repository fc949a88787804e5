// Package cli renders pipeline output for the terminal using lipgloss.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	PrimaryColor = lipgloss.Color("#7D56F4")
	SuccessColor = lipgloss.Color("#4ECDC4")
	WarningColor = lipgloss.Color("#FFE66D")
	ErrorColor   = lipgloss.Color("#FF6B6B")
	InfoColor    = lipgloss.Color("#95E1D3")
	SubtleColor  = lipgloss.Color("#666666")
)

// Text styles shared by the commands.
var (
	TitleStyle       = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor).MarginBottom(1)
	SuccessStyle     = lipgloss.NewStyle().Foreground(SuccessColor)
	WarningStyle     = lipgloss.NewStyle().Foreground(WarningColor)
	ErrorStyle       = lipgloss.NewStyle().Foreground(ErrorColor)
	InfoStyle        = lipgloss.NewStyle().Foreground(InfoColor)
	SubtleStyle      = lipgloss.NewStyle().Foreground(SubtleColor)
	BoldStyle        = lipgloss.NewStyle().Bold(true)
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
)

// segmentColors is indexed by segment id: loyal, at-risk, new, lost.
var segmentColors = [model.NumSegments]lipgloss.Color{
	SuccessColor,
	WarningColor,
	InfoColor,
	ErrorColor,
}

const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	ChartIcon   = "📊"
	StageIcon   = "▸"
)

func withIcon(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess marks a completed step.
func FormatSuccess(message string) string { return withIcon(SuccessStyle, SuccessIcon, message) }

// FormatError marks a failure.
func FormatError(message string) string { return withIcon(ErrorStyle, ErrorIcon, message) }

// FormatWarning marks something the user should act on.
func FormatWarning(message string) string { return withIcon(WarningStyle, WarningIcon, message) }

// FormatInfo marks a neutral note.
func FormatInfo(message string) string { return withIcon(InfoStyle, InfoIcon, message) }

// FormatTitle renders a section heading.
func FormatTitle(title string) string { return withIcon(TitleStyle, ChartIcon, title) }

// FormatStage announces a pipeline stage, with optional detail such as the
// file it reads or writes.
func FormatStage(name, detail string) string {
	line := BoldStyle.Render(StageIcon + " " + name)
	if detail != "" {
		line += " " + SubtleStyle.Render(detail)
	}
	return line
}

// SegmentStyle colors a segment label by its id. Unknown ids render plain.
func SegmentStyle(segment int) lipgloss.Style {
	if segment < 0 || segment >= model.NumSegments {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(segmentColors[segment])
}

// SegmentTable renders per-segment sizes and mean RFM metrics.
func SegmentTable(summaries []model.SegmentSummary) string {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			SegmentStyle(s.Segment).Render(s.Label),
			strconv.Itoa(s.Customers),
			strconv.FormatFloat(s.MeanRecency, 'f', 1, 64),
			strconv.FormatFloat(s.MeanFrequency, 'f', 1, 64),
			strconv.FormatFloat(s.MeanMonetary, 'f', 2, 64),
		})
	}
	return RenderTable([]string{"Segment", "Customers", "Recency", "Frequency", "Monetary"}, rows)
}

// RenderTable lays out rows under headers with aligned columns. Widths are
// measured on rendered text so styled cells line up.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var b strings.Builder
	line := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(widths))
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := strings.Repeat(" ", w-lipgloss.Width(cell))
			parts[i] = style.Render(cell) + pad
		}
		fmt.Fprint(&b, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(headers, TableHeaderStyle)
	for _, row := range rows {
		b.WriteByte('\n')
		line(row, lipgloss.NewStyle())
	}
	return b.String()
}
