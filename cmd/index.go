// aidlgen index
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/aidlgen/internal/index"
	"github.com/qobs-build/aidlgen/internal/msg"
	"github.com/spf13/cobra"
)

// openIndexCheckout loads the index file of the index repository checked out in the current directory
func openIndexCheckout() (*index.Index, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	idx, err := index.ParseIndexInPath(cwd)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("no %s in %s: index add/remove/check run inside a checkout of the index repository", index.IndexFilename, cwd)
	}
	return idx, cwd, err
}

func describeEntry(entry index.Entry) string {
	libs := "no libraries"
	if len(entry.Libraries) > 0 {
		libs = strings.Join(entry.Libraries, ", ")
	}
	return fmt.Sprintf("%s -> %s (package %s: %s)", color.HiCyanString(entry.Source), entry.Path, entry.Package, libs)
}

var indexAddCmd = &cobra.Command{
	Use:   "add <source> <dir>",
	Short: "Record the package in <dir> as the index copy of <source>",
	Long:  `Record the package in <dir> as the index copy of <source>. <dir> must hold an Aidl.toml; its package name and aidl_library targets are stored with the entry.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, root, err := openIndexCheckout()
		if err != nil {
			return err
		}
		if _, ok := idx.Lookup(args[0]); ok {
			msg.Warn("replacing existing entry for %s", args[0])
		}
		entry, err := idx.Add(args[0], args[1])
		if err != nil {
			return err
		}
		if err := idx.Save(root); err != nil {
			return err
		}
		msg.Info("added %s", describeEntry(entry))
		return nil
	},
}

var indexRemoveCmd = &cobra.Command{
	Use:   "remove <source>",
	Short: "Remove an entry from the index in the current directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, root, err := openIndexCheckout()
		if err != nil {
			return err
		}
		if !idx.Remove(args[0]) {
			return fmt.Errorf("%s is not in the index", args[0])
		}
		msg.Info("removed %s", args[0])
		return idx.Save(root)
	},
}

var indexCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify every entry against the Aidl.toml it points to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, _, err := openIndexCheckout()
		if err != nil {
			return err
		}
		if err := idx.Check(); err != nil {
			return err
		}
		msg.Info("%d entries ok", len(idx.Entries))
		return nil
	},
}

var indexUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch the index named by $" + index.SourceEnv + " into the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := index.UpdateGlobalIndex()
		if err != nil {
			return err
		}
		msg.Info("index updated, %d entries", len(idx.Entries))
		return nil
	},
}

var indexSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the cached index by source, package or library name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := index.GetIndexAnyhow()
		if err != nil {
			return err
		}
		entries := idx.Search(args[0])
		if len(entries) == 0 {
			msg.Warn("no matches for %q", args[0])
			return nil
		}
		for _, entry := range entries {
			fmt.Println(describeEntry(entry))
		}
		fmt.Printf("\nuse it with: %s\n", color.HiGreenString(`<name> = "index:%s"`, entries[0].Source))
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the index of ready-made interface packages",
	Long: `The index is a git repository (set $` + index.SourceEnv + ` to <git url>[@branch]) of interface packages.
A manifest dependency "index:<source>" copies the package recorded for <source> into build/_deps.`,
}

func init() {
	// aidlgen index subcommand
	indexCmd.AddCommand(indexUpdateCmd, indexAddCmd, indexRemoveCmd, indexCheckCmd, indexSearchCmd)
	indexCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cmd.SilenceUsage = true
	}
	rootCmd.AddCommand(indexCmd)
}
