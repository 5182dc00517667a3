package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tinytelemetry/fdbtracer/internal/supervisor"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyanStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

func printStartupBanner(cfg appConfig, source string, sessionID string, dbCreated bool) {
	check := greenStyle.Render("●")
	dot := dimStyle.Render("●")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, "    "+cyanStyle.Bold(true).Render("fdbtracer")+"  "+dimStyle.Render("v"+version))
	lines = append(lines, "    "+dimStyle.Render("session "+sessionID))
	lines = append(lines, "")

	separator := dimStyle.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, boldStyle.Render("    Source"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Trace input    %s", check, cyanStyle.Render(source)))
	if cfg.TCPEnabled && cfg.TraceFile == "" {
		lines = append(lines, fmt.Sprintf("    %s  TCP listener   %s", check, cyanStyle.Render(cfg.TCPAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  TCP listener   %s", dot, dimStyle.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, boldStyle.Render("    Dump database"))
	lines = append(lines, "")
	state := "existing"
	if dbCreated {
		state = "created"
	}
	lines = append(lines, fmt.Sprintf("    %s  DuckDB         %s %s", check, dimStyle.Render(shortenPath(cfg.DBPath)), dimStyle.Render("("+state+")")))
	lines = append(lines, fmt.Sprintf("    %s  Error budget   %s", check, dimStyle.Render(fmt.Sprintf("%d consecutive", cfg.MaxErrors))))
	lines = append(lines, "")

	lines = append(lines, boldStyle.Render("    Gateway"))
	lines = append(lines, "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Status API     %s", check, cyanStyle.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Status API     %s", dot, dimStyle.Render("disabled")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Log file       %s", check, dimStyle.Render(shortenPath(cfg.LogPath))))
	lines = append(lines, "")

	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dimStyle.Render("Press ")+yellowStyle.Render("Ctrl+C")+dimStyle.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

// finalStatus renders the one-line summary printed when a session ends.
func finalStatus(rep supervisor.Report) string {
	totals := fmt.Sprintf("%s events from %s lines in %s",
		humanize.Comma(int64(rep.Stats.EventsPersisted)),
		humanize.Comma(int64(rep.Stats.LinesProcessed)),
		rep.Duration.Round(time.Millisecond))
	if rep.Stats.PersistFailures > 0 {
		totals += fmt.Sprintf(", %s failed", humanize.Comma(int64(rep.Stats.PersistFailures)))
	}

	switch rep.Outcome {
	case supervisor.OutcomeExhausted:
		return greenStyle.Render(rep.Outcome.String()+".") + " " + totals
	case supervisor.OutcomeBreakerTripped:
		return redStyle.Render(rep.Outcome.String()+", see log for details.") + " " + totals
	case supervisor.OutcomeFailed:
		return redStyle.Render(rep.Outcome.String()+", see log for details.") + " " + totals
	default:
		return yellowStyle.Render(rep.Outcome.String()+".") + " " + totals
	}
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
