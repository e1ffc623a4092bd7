package cmd

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/derickschaefer/stationcube/internal/model"
	"github.com/derickschaefer/stationcube/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save and replay the command that built a dataset or cube",
	Long: `Snapshots save a stationcube command line and replay it later, rebuilding
a dataset or cube from the same parameters.

When the saved command writes to the store (fetch obs --save, cube build
--save), the snapshot records which dataset or cube it produces. 'snapshot
run' checks that output after the replay and records when it last ran.

  stationcube snapshot save --name "lausanne-jan" --cmd "fetch obs --vars temp --start 2024-01-01 --end 2024-02-01 --save lausanne"
  stationcube snapshot list
  stationcube snapshot run <ID>`,
}

// ─── Output detection ─────────────────────────────────────────────────────────

// snapshotOutput resolves a saved command line against the command tree
// and returns the kind and name of the dataset or cube it saves. Both are
// empty for commands that do not write to the store.
func snapshotOutput(commandLine string) (kind, name string, err error) {
	parts := strings.Fields(commandLine)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("empty command line")
	}
	if parts[0] == rootCmd.Name() {
		return "", "", fmt.Errorf("leave out the binary name: %q", strings.Join(parts[1:], " "))
	}
	c, _, err := rootCmd.Find(parts)
	if err != nil || c == rootCmd || c == snapshotCmd || c.Parent() == snapshotCmd {
		return "", "", fmt.Errorf("%q is not a stationcube command that can be replayed", commandLine)
	}

	switch c {
	case cubeBuildCmd:
		kind = model.KindCube
	case fetchObsCmd:
		kind = model.KindDataset
	default:
		return "", "", nil
	}
	name = flagValue(parts, "save")
	if name == "" {
		return "", "", nil
	}
	return kind, name, nil
}

// flagValue returns the last value given for --name in args, in either the
// "--name value" or the "--name=value" form.
func flagValue(args []string, name string) string {
	val := ""
	for i, a := range args {
		switch {
		case a == "--"+name && i+1 < len(args):
			val = args[i+1]
		case strings.HasPrefix(a, "--"+name+"="):
			val = strings.TrimPrefix(a, "--"+name+"=")
		}
	}
	return val
}

// describeOutput looks up a snapshot's output in the store. ok is false
// when the dataset or cube does not exist.
func describeOutput(st *store.Store, kind, name string) (desc string, ok bool, err error) {
	switch kind {
	case model.KindCube:
		cubes, err := st.ListCubes()
		if err != nil {
			return "", false, err
		}
		for _, c := range cubes {
			if c.Name == name {
				return fmt.Sprintf("cube %s (%d stations, %s)", name, c.Stations, strings.Join(c.Variables, ",")), true, nil
			}
		}
	case model.KindDataset:
		datasets, err := st.ListDatasets()
		if err != nil {
			return "", false, err
		}
		for _, d := range datasets {
			if d.Name == name {
				return fmt.Sprintf("dataset %s (%d rows)", name, d.Rows), true, nil
			}
		}
	}
	return kind + " " + name, false, nil
}

func outputLabel(s store.Snapshot) string {
	if s.OutputKind == "" {
		return "-"
	}
	return s.OutputKind + ":" + s.OutputName
}

// ─── snapshot save ────────────────────────────────────────────────────────────

var (
	snapshotSaveName string
	snapshotSaveCmd  string
)

var snapshotSaveCommand = &cobra.Command{
	Use:   "save",
	Short: "Save a command line as a named snapshot",
	Example: `  stationcube snapshot save --name "temp-cube" --cmd "cube build obs.csv --stations st.geojson --vars temp --save temp"
  stationcube snapshot save --name "wide-csv" --cmd "widen obs.csv --vars temp,rh --format csv"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if snapshotSaveName == "" {
			return fmt.Errorf("--name is required")
		}
		if snapshotSaveCmd == "" {
			return fmt.Errorf("--cmd is required")
		}
		kind, output, err := snapshotOutput(snapshotSaveCmd)
		if err != nil {
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		snap := store.Snapshot{
			ID:          newSnapshotID(),
			Name:        snapshotSaveName,
			CommandLine: snapshotSaveCmd,
			OutputKind:  kind,
			OutputName:  output,
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.PutSnapshot(snap); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved snapshot %s  (%s)\n", snap.ID, snap.Name)
		if kind != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  Rebuilds %s %s\n", kind, output)
		}
		return nil
	},
}

// ─── snapshot list ────────────────────────────────────────────────────────────

var snapshotListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all saved snapshots",
	Example: `  stationcube snapshot list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		snaps, err := deps.Store.ListSnapshots()
		if err != nil {
			return fmt.Errorf("listing snapshots: %w", err)
		}
		if len(snaps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots saved.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: stationcube snapshot save --name <name> --cmd \"<command>\"")
			return nil
		}

		printSimpleTable(cmd.OutOrStdout(), []string{"ID", "NAME", "OUTPUT", "COMMAND", "LAST RUN"}, func(add func(...string)) {
			for _, s := range snaps {
				cmdPreview := s.CommandLine
				if len(cmdPreview) > 50 {
					cmdPreview = cmdPreview[:47] + "..."
				}
				lastRun := "never"
				if s.LastRunAt != nil {
					lastRun = s.LastRunAt.Format("2006-01-02 15:04")
				}
				add(s.ID, s.Name, outputLabel(s), cmdPreview, lastRun)
			}
		})
		return nil
	},
}

// ─── snapshot show ────────────────────────────────────────────────────────────

var snapshotShowCmd = &cobra.Command{
	Use:     "show <ID>",
	Short:   "Show full details of a snapshot",
	Example: `  stationcube snapshot show 01HX...`,
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

		snap, ok, err := deps.Store.GetSnapshot(args[0])
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
		if !ok {
			return fmt.Errorf("snapshot %q not found", args[0])
		}

		output := "-"
		if snap.OutputKind != "" {
			desc, exists, err := describeOutput(deps.Store, snap.OutputKind, snap.OutputName)
			if err != nil {
				return err
			}
			output = desc
			if !exists {
				output += " (not in store)"
			}
		}
		lastRun := "never"
		if snap.LastRunAt != nil {
			lastRun = fmt.Sprintf("%s (%d runs)", snap.LastRunAt.Format(time.RFC3339), snap.Runs)
		}

		printSimpleTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, func(add func(...string)) {
			add("ID", snap.ID)
			add("Name", snap.Name)
			add("Command", snap.CommandLine)
			add("Output", output)
			add("Created", snap.CreatedAt.Format(time.RFC3339))
			add("Last run", lastRun)
		})
		return nil
	},
}

// ─── snapshot run ─────────────────────────────────────────────────────────────

// inheritedArgs returns the global flags set on this invocation so that a
// replay reads and writes the same database and source.
func inheritedArgs(cmd *cobra.Command) []string {
	var out []string
	cmd.InheritedFlags().Visit(func(f *pflag.Flag) {
		out = append(out, "--"+f.Name+"="+f.Value.String())
	})
	return out
}

var snapshotRunCmd = &cobra.Command{
	Use:     "run <ID>",
	Short:   "Re-execute a saved snapshot",
	Example: `  stationcube snapshot run 01HX...`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}

		// Read snapshot BEFORE closing the store
		snap, ok, err := deps.Store.GetSnapshot(args[0])
		deps.Close() // Close now; the child process will open its own handle
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
		if !ok {
			return fmt.Errorf("snapshot %q not found", args[0])
		}

		// Re-execute using the current binary with the stored command line.
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("finding executable: %w", err)
		}

		parts := append(strings.Fields(snap.CommandLine), inheritedArgs(cmd)...)
		c := exec.CommandContext(cmd.Context(), self, parts...)
		c.Stdout = cmd.OutOrStdout()
		c.Stderr = cmd.ErrOrStderr()

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "▶ %s %s\n\n", self, snap.CommandLine)
		}
		if err := c.Run(); err != nil {
			return fmt.Errorf("snapshot %s: %w", snap.ID, err)
		}

		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()
		if _, err := deps.Store.MarkSnapshotRun(snap.ID, time.Now()); err != nil {
			return fmt.Errorf("recording snapshot run: %w", err)
		}
		if snap.OutputKind == "" {
			return nil
		}
		desc, exists, err := describeOutput(deps.Store, snap.OutputKind, snap.OutputName)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("snapshot %s ran but %s was not written to %s", snap.ID, desc, deps.Config.DBPath)
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Rebuilt %s\n", desc)
		}
		return nil
	},
}

// ─── snapshot delete ──────────────────────────────────────────────────────────

var snapshotDeleteCmd = &cobra.Command{
	Use:     "delete <ID>",
	Short:   "Delete a saved snapshot",
	Example: `  stationcube snapshot delete 01HX...`,
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

		snap, ok, err := deps.Store.GetSnapshot(args[0])
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
		if !ok {
			return fmt.Errorf("snapshot %q not found", args[0])
		}

		if err := deps.Store.DeleteSnapshot(args[0]); err != nil {
			return fmt.Errorf("deleting snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted snapshot %s  (%s)\n", snap.ID, snap.Name)
		if snap.OutputKind != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s stays in the store\n", snap.OutputKind, snap.OutputName)
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotSaveCommand)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotRunCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	snapshotSaveCommand.Flags().StringVar(&snapshotSaveName, "name", "", "human-readable name for the snapshot (required)")
	snapshotSaveCommand.Flags().StringVar(&snapshotSaveCmd, "cmd", "", "command line to save, without the binary name (required)")
	snapshotSaveCommand.MarkFlagRequired("name")
	snapshotSaveCommand.MarkFlagRequired("cmd")
}

// ─── ID generation ────────────────────────────────────────────────────────────

var (
	snapshotIDMu      sync.Mutex
	snapshotIDEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newSnapshotID returns a ULID. IDs made in the same millisecond still sort
// in creation order.
func newSnapshotID() string {
	snapshotIDMu.Lock()
	defer snapshotIDMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), snapshotIDEntropy).String()
}
