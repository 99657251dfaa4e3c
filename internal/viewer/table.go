package viewer

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/okian/gaitlog/internal/domain/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// SummaryRow formats the per-session feature cells.
func SummaryRow(d types.Detail) []string {
	f := d.Features
	return []string{
		d.SessionID,
		fmt.Sprintf("%.2f±%.2fs", f.StepTimeAverage, f.StepTimeStdDev),
		fmt.Sprintf("%.2f±%.2fs", f.FootDownTimeAverage, f.FootDownTimeStdDev),
		fmt.Sprintf("%.1f%%", f.PercentTimeFootDown),
		fmt.Sprintf("%.2f° - %.2f°", f.AveragePitchRange[1], f.AveragePitchRange[0]),
		fmt.Sprintf("%.2f° - %.2f°", f.AverageRollRange[1], f.AverageRollRange[0]),
	}
}

// SummaryTable renders one row of gait features per selected session.
func SummaryTable(details []types.Detail) string {
	rows := make([][]string, 0, len(details))
	for _, d := range details {
		rows = append(rows, SummaryRow(d))
	}
	return render([]string{"File Name", "Step Time", "Ground Time", "Ground %", "Step Pitch", "Step Roll"}, rows)
}

// EntriesTable renders a session list with start times shown in loc.
func EntriesTable(entries []types.Entry, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.SessionID,
			time.UnixMilli(e.StartTimeEpochMs).In(loc).Format("2006-01-02 15:04:05"),
			strconv.Itoa(e.SampleCount),
		})
	}
	return render([]string{"File Name", "Start Time", "Data Points"}, rows)
}

func render(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}
