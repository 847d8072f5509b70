package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/microbs-io/microbs/internal/config"
)

// Create the init command
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config directory and config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				home, err := homedir.Dir()
				if err != nil {
					return err
				}
				dir = filepath.Join(home, ".microbs")
			}
			paths, err := config.ResolvePaths(dir)
			if err != nil {
				return err
			}
			return initConfig(paths)
		},
	}
}

func initConfig(paths config.Paths) error {
	log.Info().Msg("")
	log.Info().Msg("Initializing microbs config...")
	if _, err := os.Stat(paths.Home); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(paths.Home, 0o755); err != nil {
			return fmt.Errorf("create config path %s: %w", paths.Home, err)
		}
		log.Info().Msgf("...created config path: %s", paths.Home)
	} else {
		log.Info().Msgf("...config path exists: %s", paths.Home)
	}

	if _, err := os.Stat(paths.Config); err == nil {
		log.Info().Msgf("...config file exists: %s", paths.Config)
		return nil
	}
	// Swap the reference header for a plain one.
	ref := config.Reference()
	body := ref
	if i := bytes.Index(ref, []byte("\n\n")); i >= 0 {
		body = ref[i+2:]
	}
	content := append([]byte("# config.yaml\n\n"), body...)
	if err := os.WriteFile(paths.Config, content, 0o600); err != nil {
		return fmt.Errorf("create config file %s: %w", paths.Config, err)
	}
	log.Info().Msgf("...created config file: %s", paths.Config)
	log.Info().Msg("")
	return nil
}
