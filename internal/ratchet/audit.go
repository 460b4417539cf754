package ratchet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ferdousbhai/create-fastreact/internal/ledger"
)

// maxDescriptionLen bounds descriptions quoted in a rejection reason.
const maxDescriptionLen = 60

// Reasons reported by Audit.
const (
	ReasonDeleted = "feature ledger was deleted or corrupted"
	reasonRemoved = "features were removed or modified"
	reasonAdded   = "new features added in a coding session"
)

// Result is the verdict of one audit.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`

	// Removed and Added hold the offending descriptions, sorted.
	Removed []string `json:"removed,omitempty"`
	Added   []string `json:"added,omitempty"`
}

// Audit compares the ledger before and after a session. A nil pointer means
// the ledger was absent. Rules apply in order: a first creation is always
// valid, a vanished ledger is not, no description may disappear, and new
// descriptions are accepted only when allowAdditions is set.
func Audit(before, after *ledger.Ledger, allowAdditions bool) Result {
	if before == nil {
		return Result{Valid: true}
	}
	if after == nil {
		return Result{Reason: ReasonDeleted}
	}

	beforeSet := before.Descriptions()
	afterSet := after.Descriptions()

	if removed := difference(beforeSet, afterSet); len(removed) > 0 {
		return Result{
			Reason:  fmt.Sprintf("%s: %s", reasonRemoved, quoteList(removed)),
			Removed: removed,
		}
	}

	if !allowAdditions {
		if added := difference(afterSet, beforeSet); len(added) > 0 {
			return Result{
				Reason: fmt.Sprintf("%s: %s", reasonAdded, quoteList(added)),
				Added:  added,
			}
		}
	}

	return Result{Valid: true}
}

// difference returns the sorted members of a not in b.
func difference(a, b map[string]bool) []string {
	var out []string
	for d := range a {
		if !b[d] {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

func quoteList(descriptions []string) string {
	quoted := make([]string, len(descriptions))
	for i, d := range descriptions {
		quoted[i] = fmt.Sprintf("%q", shorten(d))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func shorten(d string) string {
	r := []rune(d)
	if len(r) <= maxDescriptionLen {
		return d
	}
	return string(r[:maxDescriptionLen]) + "..."
}
