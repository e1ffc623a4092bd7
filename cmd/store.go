package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/stationcube/internal/model"
	"github.com/derickschaefer/stationcube/internal/render"
	"github.com/derickschaefer/stationcube/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and manage the local database",
	Long: `Commands for inspecting and clearing the local bbolt database.

The store holds datasets saved with 'fetch obs --save', cubes saved with
'cube build --save' and snapshots. It is an intentional data store, not a
transparent cache: data persists until you explicitly delete it.`,
}

// ─── store list ───────────────────────────────────────────────────────────────

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets saved in the local database",
	Example: `  stationcube store list
  stationcube store list --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		datasets, err := deps.Store.ListDatasets()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(datasets) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No datasets in local database.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: stationcube fetch obs --vars <VARS> --save <NAME>")
			return nil
		}

		format := resolveFormat(deps.Config.Format)
		if format == render.FormatTable {
			printSimpleTable(cmd.OutOrStdout(), []string{"NAME", "ROWS", "COLUMNS", "CODEC", "SIZE", "STORED AT"}, func(add func(...string)) {
				for _, d := range datasets {
					add(d.Name, fmt.Sprintf("%d", d.Rows), strings.Join(d.Columns, ","),
						d.Codec, humanBytes(int64(d.Bytes)), d.StoredAt.Format("2006-01-02 15:04"))
				}
			})
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d datasets  •  %s\n", len(datasets), deps.Store.Path())
			return nil
		}

		// Non-table formats: use the standard result envelope
		return emit(cmd, deps, newResult(model.KindDataset, "store list", datasets, len(datasets), start))
	},
}

// ─── store get ────────────────────────────────────────────────────────────────

var storeGetCmd = &cobra.Command{
	Use:   "get <NAME>",
	Short: "Read a stored dataset as a long table",
	Example: `  stationcube store get lausanne
  stationcube store get lausanne --format jsonl | stationcube widen --input-format jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		long, ok, err := deps.Store.GetDataset(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no stored dataset %s\n\n  Use: stationcube fetch obs --save %s", args[0], args[0])
		}
		return emit(cmd, deps, newResult(model.KindLong, "store get "+args[0], long, long.Len(), start))
	},
}

// ─── store delete ─────────────────────────────────────────────────────────────

var storeDeleteCmd = &cobra.Command{
	Use:     "delete <NAME>",
	Short:   "Delete a stored dataset",
	Example: `  stationcube store delete lausanne`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		ok, err := deps.Store.DeleteDataset(args[0])
		if err != nil {
			return fmt.Errorf("deleting dataset: %w", err)
		}
		if !ok {
			return fmt.Errorf("dataset %q not found", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted dataset %s\n", args[0])
		return nil
	},
}

// ─── store stats ──────────────────────────────────────────────────────────────

var storeStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show entry counts and sizes for each bucket",
	Example: `  stationcube store stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Database: %s  (new payloads: %s)\n\n", deps.Store.Path(), deps.Store.Codec().Name())
		printSimpleTable(cmd.OutOrStdout(), []string{"BUCKET", "ENTRIES", "SIZE"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, fmt.Sprintf("%d", s.Count), humanBytes(s.Bytes))
			}
		})
		return nil
	},
}

// ─── store clear ──────────────────────────────────────────────────────────────

var (
	storeClearAll    bool
	storeClearBucket string
)

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the local store",
	Long: `Delete entries from one or all buckets.

Note: bbolt does not shrink the database file automatically after clearing.
Free pages are reused internally on the next write. To reclaim disk space,
run 'stationcube store compact' after clearing.`,
	Example: `  stationcube store clear --all
  stationcube store clear --bucket cubes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !storeClearAll && storeClearBucket == "" {
			return fmt.Errorf("specify --all or --bucket <n>\n\nBuckets: %s", strings.Join(store.AllBuckets, ", "))
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if storeClearAll {
			if err := deps.Store.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Cleared all buckets")
			fmt.Fprintln(cmd.OutOrStdout(), "  Run 'stationcube store compact' to reclaim disk space.")
			return nil
		}

		if err := deps.Store.ClearBucket(storeClearBucket); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared bucket %q\n", storeClearBucket)
		fmt.Fprintln(cmd.OutOrStdout(), "  Run 'stationcube store compact' to reclaim disk space.")
		return nil
	},
}

// ─── store compact ────────────────────────────────────────────────────────────

var storeCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the database file to reclaim freed disk space",
	Long: `Compact rewrites the entire bbolt database to a new file, recovering space
freed by prior 'store clear' and delete operations.

All live data is copied to a temporary file first, then the original is
replaced. The database remains fully usable after compaction completes.`,
	Example: `  stationcube store compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Compacting %s ...\n", deps.Store.Path())

		before, after, err := deps.Store.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}

		saved := before - after
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Compaction complete\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  Before: %s\n", humanBytes(before))
		fmt.Fprintf(cmd.OutOrStdout(), "  After:  %s\n", humanBytes(after))
		if saved > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  Saved:  %s\n", humanBytes(saved))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "  No space reclaimed (database was already compact).")
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeGetCmd)
	storeCmd.AddCommand(storeDeleteCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeClearCmd)
	storeCmd.AddCommand(storeCompactCmd)

	storeClearCmd.Flags().BoolVar(&storeClearAll, "all", false, "clear all buckets")
	storeClearCmd.Flags().StringVar(&storeClearBucket, "bucket", "", "clear a specific bucket: datasets|cubes|snapshots")
}
