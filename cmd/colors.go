package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.FgRed, color.Bold).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass":
		return colorSuccess(status)
	case "error", "fail", "failed":
		return colorError(status)
	default:
		return status
	}
}

func formatSeverity(s analysis.Severity) string {
	label := fmt.Sprintf("%-10s", s.Label())
	switch s {
	case analysis.SeverityGood:
		return colorSuccess(label)
	case analysis.SeverityInfo, analysis.SeverityTracking:
		return colorInfo(label)
	case analysis.SeveritySuspicious:
		return colorWarn(label)
	case analysis.SeverityScam, analysis.SeverityDangerous:
		return colorError(label)
	case analysis.SeverityCritical, analysis.SeverityFetchError:
		return colorBold(label)
	}
	return label
}

func formatScore(score int, grade string) string {
	text := fmt.Sprintf("%d (%s)", score, grade)
	switch {
	case grade == "-":
		return text
	case score >= 90:
		return colorSuccess(text)
	case score >= 60:
		return colorWarn(text)
	default:
		return colorError(text)
	}
}
