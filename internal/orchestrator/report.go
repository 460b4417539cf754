package orchestrator

import (
	"fmt"
	"io"
	"strings"

	"github.com/ferdousbhai/create-fastreact/internal/ledger"
)

const (
	progressBarWidth = 30
	headerWidth      = 60
	previewChars     = 1500
	newlyShown       = 3
	newlyDescChars   = 50
)

// ProgressBar renders "[█████░░░...]" for passing out of total.
func ProgressBar(passing, total int) string {
	filled := 0
	if total > 0 {
		filled = progressBarWidth * passing / total
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled) + "]"
}

// FormatProgress renders the one-line progress summary.
func FormatProgress(passing, total int) string {
	if total == 0 {
		return "  No feature_list.json found yet"
	}
	pct := float64(passing) / float64(total) * 100
	return fmt.Sprintf("  Progress: %s %d/%d (%.1f%%)", ProgressBar(passing, total), passing, total, pct)
}

func printSessionHeader(w io.Writer, number int, mode Mode) {
	rule := strings.Repeat("=", headerWidth)
	fmt.Fprintf(w, "\n%s\nSESSION %d: %s\n%s\n", rule, number, strings.ToUpper(string(mode)), rule)
}

func printNewlyPassing(w io.Writer, features []ledger.Feature) {
	if len(features) == 0 {
		return
	}
	fmt.Fprintf(w, "\n  Completed this session:\n")
	for i, f := range features {
		if i == newlyShown {
			fmt.Fprintf(w, "    + ...and %d more\n", len(features)-newlyShown)
			break
		}
		fmt.Fprintf(w, "    + %s\n", truncateRunes(f.Description, newlyDescChars))
	}
}

// preview shortens session output for the console, pointing at the full log.
func preview(stdout, logName string) string {
	runes := []rune(stdout)
	if len(runes) <= previewChars {
		return stdout
	}
	more := fmt.Sprintf("\n\n... [%d more chars", len(runes)-previewChars)
	if logName != "" {
		more += ", see " + logName
	}
	return string(runes[:previewChars]) + more + "]"
}

func printComplete(w io.Writer, total, sessions int, runtimeSeconds float64) {
	rule := strings.Repeat("=", headerWidth)
	fmt.Fprintf(w, "\n%s\n  PROJECT COMPLETE!\n  All %d features passing\n  Total sessions: %d\n  Total runtime: %.0fs\n%s\n",
		rule, total, sessions, runtimeSeconds, rule)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
