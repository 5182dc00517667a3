package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

func (m Model) View() string {
	width := max(m.width, 40)

	header := headerStyle.Width(width).Render(fmt.Sprintf("%s  %s  session %s",
		m.title, m.status.Source, shortID(m.status.SessionID)))

	sections := []string{
		header,
		m.renderCounters(width),
		m.renderChart(width),
		helpStyle.Render(fmt.Sprintf("%s %s", m.keys.Quit.Help().Key, m.keys.Quit.Help().Desc)),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderCounters(width int) string {
	st := m.status
	queued := "unknown"
	if st.Stats.LinesLeft >= 0 {
		queued = humanize.Comma(int64(st.Stats.LinesLeft))
	}

	breaker := okStyle.Render(fmt.Sprintf("%d/%d", st.Errors, st.MaxErrors))
	if st.Tripped {
		breaker = errorStyle.Render("TRIPPED")
	} else if st.Errors > 0 {
		breaker = errorStyle.Render(fmt.Sprintf("%d/%d", st.Errors, st.MaxErrors))
	}

	row := func(label, value string) string {
		return labelStyle.Width(18).Render(label) + value
	}
	lines := []string{
		row("State", valueStyle.Render(st.Stats.State.String())),
		row("Lines processed", valueStyle.Render(humanize.Comma(int64(st.Stats.LinesProcessed)))),
		row("Lines queued", valueStyle.Render(queued)),
		row("Events persisted", valueStyle.Render(humanize.Comma(int64(st.Stats.EventsPersisted)))),
		row("Persist failures", valueStyle.Render(humanize.Comma(int64(st.Stats.PersistFailures)))),
		row("Breaker", breaker),
		row("Uptime", valueStyle.Render(st.Uptime.Round(time.Second).String())),
	}
	return sectionStyle.Width(width - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) renderChart(width int) string {
	chartWidth := max(width-6, 10)
	chartHeight := max(m.height-16, 4)

	maxBars := chartWidth / 2
	data := m.history
	if len(data) > maxBars {
		data = data[len(data)-maxBars:]
	}

	var peak uint64
	for _, v := range data {
		peak = max(peak, v)
	}
	title := labelStyle.Render(fmt.Sprintf("Events per %s  (peak %s)", m.refresh, humanize.Comma(int64(peak))))
	if len(data) == 0 {
		return sectionStyle.Width(width - 2).Render(title + "\n" + helpStyle.Render("waiting for data"))
	}

	bc := barchart.New(chartWidth, chartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(1),
		barchart.WithNoAxis(),
	)
	for i := 0; i < maxBars-len(data); i++ {
		bc.Push(barchart.BarData{Values: []barchart.BarValue{{Name: "EMPTY", Value: 0, Style: barStyle}}})
	}
	for _, v := range data {
		bc.Push(barchart.BarData{Values: []barchart.BarValue{{Name: "events", Value: float64(v), Style: barStyle}}})
	}
	bc.Draw()

	return sectionStyle.Width(width - 2).Render(title + "\n" + bc.View())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
