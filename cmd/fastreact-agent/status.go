package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ferdousbhai/create-fastreact/internal/formatter"
	"github.com/ferdousbhai/create-fastreact/internal/ledger"
	"github.com/ferdousbhai/create-fastreact/internal/orchestrator"
	"github.com/ferdousbhai/create-fastreact/internal/storage"
)

var (
	statusSessions int
	statusFeatures bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show feature progress and recent sessions",
	Long: `Show progress through feature_list.json and the most recent sessions.

Examples:
  fastreact-agent status
  fastreact-agent status --features      # list every feature
  fastreact-agent status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusSessions, "sessions", 5, "Number of recent sessions to show (0 = none)")
	statusCmd.Flags().BoolVar(&statusFeatures, "features", false, "List every feature")
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Project  string                  `json:"project"`
	Passing  int                     `json:"passing"`
	Total    int                     `json:"total"`
	Complete bool                    `json:"complete"`
	Features ledger.Ledger           `json:"features"`
	Sessions []storage.SessionRecord `json:"sessions"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	dir, err := resolveProject()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir, nil)
	if err != nil {
		return err
	}

	l, err := ledger.Load(ledger.PathFor(dir))
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	store := storage.NewFileStorage(storage.WithBaseDir(cfg.StatePath(dir)))
	records, err := store.ListRecords()
	if err != nil {
		return fmt.Errorf("read sessions: %w", err)
	}
	if statusSessions >= 0 && len(records) > statusSessions {
		records = records[len(records)-statusSessions:]
	}

	passing, total := l.Progress()
	out := statusOutput{
		Project:  dir,
		Passing:  passing,
		Total:    total,
		Complete: l.IsComplete(),
		Features: l,
		Sessions: records,
	}

	w := cmd.OutOrStdout()
	if cfg.Output == "json" {
		if out.Features == nil {
			out.Features = ledger.Ledger{}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	return renderStatus(w, out)
}

func renderStatus(w io.Writer, out statusOutput) error {
	fmt.Fprintf(w, "Project: %s\n", out.Project)
	fmt.Fprintln(w, orchestrator.FormatProgress(out.Passing, out.Total))
	if out.Complete {
		fmt.Fprintln(w, "  All features passing")
	}

	if statusFeatures && len(out.Features) > 0 {
		fmt.Fprintln(w)
		if err := formatter.Features(w, out.Features); err != nil {
			return err
		}
	} else if next := firstPending(out.Features); next != "" {
		fmt.Fprintf(w, "  Next: %s\n", next)
	}

	if len(out.Sessions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recent sessions:")
		if err := formatter.Sessions(w, out.Sessions); err != nil {
			return err
		}
	}
	return nil
}

func firstPending(l ledger.Ledger) string {
	for _, f := range l {
		if !f.Passes {
			return f.Description
		}
	}
	return ""
}
