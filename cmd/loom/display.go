package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const detailLabelWidth = 16

var titleCaser = cases.Title(language.English)

// displayName turns a snake_case status or role into a readable label.
func displayName(value string) string {
	if value == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

// detailLine renders an aligned "Label: value" line for detail views.
func detailLine(label, value string) string {
	return fmt.Sprintf("  %-*s %s", detailLabelWidth, label+":", value)
}

func sectionHeader(title string, colorize bool) string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

// statusColor maps a request or task status to a terminal color.
func statusColor(status string) string {
	switch status {
	case "published", "completed":
		return ansiGreen
	case "cancelled", "failed":
		return ansiRed
	case "in_progress", "dispatched":
		return ansiYellow
	default:
		return ""
	}
}

func colorizeStatus(status string, colorize bool) string {
	label := displayName(status)
	if !colorize {
		return label
	}
	if color := statusColor(status); color != "" {
		return color + label + ansiReset
	}
	return label
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// formatAge renders a duration since the given time in the coarsest useful
// unit.
func formatAge(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	age := time.Since(at)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

func formatTimestamp(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return at.Local().Format("2006-01-02 15:04:05")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
