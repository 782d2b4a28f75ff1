package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

const barWidth = 40

func step(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "  %s %s\n", cyan("→"), fmt.Sprintf(format, args...))
}

func ok(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "  %s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

// progressBar redraws a single terminal line per call
func progressBar(w io.Writer, current, total int, label string) {
	if total <= 0 {
		return
	}
	filled := current * barWidth / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	if len(label) > barWidth {
		label = label[:barWidth]
	}
	fmt.Fprintf(w, "\r  [%s] %d/%d %-*s", bar, current, total, barWidth, label)
	if current == total {
		fmt.Fprintln(w)
	}
}

func elapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func riskColor(label string) string {
	switch label {
	case "CRITICAL", "HIGH":
		return red(label)
	case "MEDIUM":
		return yellow(label)
	}
	return green(label)
}
