package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/microbs-io/microbs/internal/config"
)

// Subcommands of apps and plugins. Only list is implemented here; the rest
// are handled by the package manager that installed microbs.
var manageSubcommands = []string{"list", "search", "install", "update", "uninstall"}

// ErrNotSupported is returned for package management subcommands.
var ErrNotSupported = errors.New("not supported by this build of microbs")

func newAppsCmd() *cobra.Command {
	return newManageCmd("apps", "app", func(cmd *cobra.Command, paths config.Paths) error {
		entries, err := os.ReadDir(paths.Apps)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(cmd.OutOrStdout(), "No apps installed in %s\n", paths.Apps)
			return nil
		}
		if err != nil {
			return err
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		if len(names) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No apps installed in %s\n", paths.Apps)
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	})
}

func newPluginsCmd() *cobra.Command {
	return newManageCmd("plugins", "plugin", func(cmd *cobra.Command, paths config.Paths) error {
		// Configuration is optional here; it only marks what is in use.
		cfg, err := config.Load(paths)
		if err != nil {
			cfg = config.New(nil)
		}
		for _, e := range newCatalog().Entries() {
			marker := ""
			if cfg.String("deployment.plugins."+string(e.Category)) == e.Name {
				marker = " (configured)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s%s\n", e.Name, e.Category, marker)
		}
		return nil
	})
}

// newManageCmd builds the apps or plugins command. It never requires
// configuration.
func newManageCmd(use, noun string, list func(*cobra.Command, config.Paths) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:       use + " <" + strings.Join(manageSubcommands, "|") + "> [names...]",
		Short:     "Manage microbs " + use,
		ValidArgs: manageSubcommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || !contains(manageSubcommands, args[0]) {
				return fmt.Errorf("microbs %s expects one of these subcommands: %s", use, strings.Join(manageSubcommands, ", "))
			}
			sub, names := args[0], args[1:]
			all, _ := cmd.Flags().GetBool("all")
			switch sub {
			case "list":
				dir, _ := cmd.Flags().GetString("config")
				paths, err := config.ResolvePaths(dir)
				if err != nil {
					return err
				}
				return list(cmd, paths)
			case "install", "update", "uninstall":
				if !all && len(names) == 0 {
					return fmt.Errorf("microbs %s %s requires at least one %s name", use, sub, noun)
				}
			}
			return fmt.Errorf("microbs %s %s: %w", use, sub, ErrNotSupported)
		},
	}
	cmd.Flags().Bool("all", false, "Apply to every "+noun)
	return cmd
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
