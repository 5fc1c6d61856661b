package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/portfolioopt/internal/store"
)

type resultsOptions struct {
	store         storeOptions
	keepLast      int
	olderThanDays int
	force         bool
	withTrace     bool
}

func newResultsCmd() *cobra.Command {
	o := &resultsOptions{}
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Manage stored run records",
		Long: `Manage the records of saved runs. A record keeps the best candidate of a run
and can warm start a new one with 'resume'.`,
	}
	cmd.PersistentFlags().StringVar(&o.store.dataDir, "data-dir", "./data", "Base directory for run records")
	cmd.PersistentFlags().StringVar(&o.store.kind, "store", "fs", storeFlagUsage())

	list := &cobra.Command{
		Use:   "list",
		Short: "List all stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.list(cmd.OutOrStdout())
		},
	}

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored run record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.show(cmd.OutOrStdout(), args[0])
		},
	}
	show.Flags().BoolVar(&o.withTrace, "trace", false, "Include the improvement trace")

	clean := &cobra.Command{
		Use:   "clean",
		Short: "Delete old run records",
		Long: `Delete run records based on a retention policy: keep only the newest N runs,
delete runs older than N days, or both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.clean(cmd.OutOrStdout(), cmd.InOrStdin())
		},
	}
	clean.Flags().IntVar(&o.keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	clean.Flags().IntVar(&o.olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	clean.Flags().BoolVarP(&o.force, "force", "f", false, "Skip confirmation prompt")

	cmd.AddCommand(list, show, clean)
	return cmd
}

func (o *resultsOptions) list(w io.Writer) error {
	st, err := o.store.open()
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(st)

	infos, err := st.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No stored runs found.")
		return nil
	}

	fsStore, _ := st.(*store.FSStore)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tTIMESTAMP\tPROBLEM\tDIM\tCOPIES\tBEST SCORE\tEVALS\tSIZE")
	fmt.Fprintln(tw, "------\t---------\t-------\t---\t------\t----------\t-----\t----")

	for _, info := range infos {
		sizeStr := "-"
		if fsStore != nil {
			if size, err := getDirSize(fsStore.RunDir(info.RunID)); err == nil {
				sizeStr = formatBytes(size)
			} else {
				sizeStr = "unknown"
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.6g\t%d\t%s\n",
			shortID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Problem,
			info.Dim,
			info.Copies,
			info.BestScore,
			info.Evaluations,
			sizeStr,
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nTotal runs: %d\n", len(infos))
	return nil
}

func (o *resultsOptions) show(w io.Writer, runID string) error {
	st, err := o.store.open()
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(st)

	record, err := st.LoadRecord(runID)
	if err != nil {
		return err
	}

	out := struct {
		*store.Record
		Trace []store.TraceEntry `json:"trace,omitempty"`
	}{Record: record}

	if o.withTrace {
		out.Trace, err = st.LoadTrace(runID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (o *resultsOptions) clean(w io.Writer, in io.Reader) error {
	if o.keepLast == 0 && o.olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	st, err := o.store.open()
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(st)

	infos, err := st.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No stored runs to clean.")
		return nil
	}

	toDelete := selectRecordsForDeletion(infos, o.keepLast, o.olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(w, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(w, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(w, "  - %s (%s, score %.6g, %s)\n",
			shortID(info.RunID),
			info.Problem,
			info.BestScore,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !o.force {
		fmt.Fprint(w, "\nProceed with deletion? [y/N]: ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := st.DeleteRecord(info.RunID); err != nil {
			slog.Error("Failed to delete record", "run_id", info.RunID, "error", err)
			failed++
		} else {
			slog.Info("Deleted record", "run_id", info.RunID)
			deleted++
		}
	}

	fmt.Fprintf(w, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRecordsForDeletion applies the retention policy: runs older than
// olderThanDays are deleted, and beyond that only the keepLast newest runs
// are kept. Zero disables a rule. Each run is selected at most once, oldest
// first.
func selectRecordsForDeletion(infos []store.RecordInfo, keepLast, olderThanDays int, now time.Time) []store.RecordInfo {
	sorted := slices.Clone(infos)
	slices.SortStableFunc(sorted, func(a, b store.RecordInfo) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	selected := make(map[string]bool)
	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range sorted {
			if info.Timestamp.Before(cutoff) {
				selected[info.RunID] = true
			}
		}
	}
	if keepLast > 0 && len(sorted) > keepLast {
		for _, info := range sorted[:len(sorted)-keepLast] {
			selected[info.RunID] = true
		}
	}

	var toDelete []store.RecordInfo
	for _, info := range sorted {
		if selected[info.RunID] {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
