package formatter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ferdousbhai/create-fastreact/internal/ledger"
	"github.com/ferdousbhai/create-fastreact/internal/storage"
)

// DescriptionWidth caps the description column of the feature table.
const DescriptionWidth = 60

// Features renders one row per feature in ledger order.
func Features(w io.Writer, l ledger.Ledger) error {
	tbl := NewTable(w, "#", "STATUS", "CATEGORY", "DESCRIPTION", "STEPS")
	tbl.SetMaxWidth(3, DescriptionWidth)
	for i, f := range l {
		status := "todo"
		if f.Passes {
			status = "pass"
		}
		tbl.AddRow(strconv.Itoa(i+1), status, f.Category, f.Description, strconv.Itoa(len(f.Steps)))
	}
	return tbl.Render()
}

// Sessions renders session records, most recent last.
func Sessions(w io.Writer, records []storage.SessionRecord) error {
	tbl := NewTable(w, "#", "STARTED", "MODE", "RUNNER", "STATUS", "DURATION", "PROGRESS", "NOTE")
	tbl.SetMaxWidth(7, 50)
	for _, r := range records {
		tbl.AddRow(
			strconv.Itoa(r.Number),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Mode,
			r.Runner,
			r.Status,
			(time.Duration(r.DurationSeconds) * time.Second).String(),
			fmt.Sprintf("%d -> %d/%d", r.PassingBefore, r.PassingAfter, r.Total),
			sessionNote(r),
		)
	}
	return tbl.Render()
}

// sessionNote picks the most relevant remark for a record.
func sessionNote(r storage.SessionRecord) string {
	switch {
	case r.RolledBack:
		return "rolled back: " + r.AuditReason
	case r.Error != "":
		return r.Error
	case len(r.NewlyPassing) > 0:
		return "+" + strings.Join(r.NewlyPassing, ", +")
	}
	return ""
}
