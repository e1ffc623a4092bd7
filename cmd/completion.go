package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/stationcube/internal/store"
)

// completionCmd wraps Cobra's built-in shell completion generator.
// Running `stationcube completion bash` prints a script the user can source.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for stationcube.

Besides commands and flags, the scripts complete names read from the local
database: cubes for 'cube inspect' and 'cube delete', datasets for 'store
get', 'store delete' and '--dataset', snapshot IDs for 'snapshot show|run|delete'.

To load completions in the current shell session:

  # bash
  source <(stationcube completion bash)

  # zsh
  source <(stationcube completion zsh)

  # fish
  stationcube completion fish | source

Persist across sessions by adding the source line to your shell profile.`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		switch args[0] {
		case "bash":
			return root.GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return root.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return root.GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		default:
			return cmd.Help()
		}
	},
}

// ─── Stored-name completion ───────────────────────────────────────────────────

// storedNames lists names of one kind from the configured database. It
// never creates the database and returns nil on any error, since a failed
// completion must not print anything.
func storedNames(list func(*store.Store) ([]string, error)) []string {
	cfg, err := loadConfig()
	if err != nil || cfg.DBPath == "" {
		return nil
	}
	if _, err := os.Stat(cfg.DBPath); err != nil {
		return nil
	}
	st, err := store.Open(cfg.DBPath, nil)
	if err != nil {
		return nil
	}
	defer st.Close()
	names, err := list(st)
	if err != nil {
		return nil
	}
	return names
}

func cubeNames(st *store.Store) ([]string, error) {
	infos, err := st.ListCubes()
	names := make([]string, 0, len(infos))
	for _, c := range infos {
		names = append(names, c.Name)
	}
	return names, err
}

func datasetNames(st *store.Store) ([]string, error) {
	infos, err := st.ListDatasets()
	names := make([]string, 0, len(infos))
	for _, d := range infos {
		names = append(names, d.Name)
	}
	return names, err
}

// snapshotIDs completes IDs, with the snapshot name as the description.
func snapshotIDs(st *store.Store) ([]string, error) {
	snaps, err := st.ListSnapshots()
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.ID+"\t"+s.Name)
	}
	return out, err
}

// completeStored completes the first positional argument from the store.
func completeStored(list func(*store.Store) ([]string, error)) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return filterPrefix(storedNames(list), toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}

// completeDatasetFlag completes --dataset values.
func completeDatasetFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return filterPrefix(storedNames(datasetNames), toComplete), cobra.ShellCompDirectiveNoFileComp
}

func filterPrefix(names []string, prefix string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(completionCmd)

	cubeInspectCmd.ValidArgsFunction = completeStored(cubeNames)
	cubeDeleteCmd.ValidArgsFunction = completeStored(cubeNames)
	storeGetCmd.ValidArgsFunction = completeStored(datasetNames)
	storeDeleteCmd.ValidArgsFunction = completeStored(datasetNames)
	for _, c := range []*cobra.Command{snapshotShowCmd, snapshotRunCmd, snapshotDeleteCmd} {
		c.ValidArgsFunction = completeStored(snapshotIDs)
	}
}
