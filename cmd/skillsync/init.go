package main

import (
	"fmt"
	"os"

	"github.com/jingkaihe/skillsync/pkg/platform"
	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Write the default platform configuration to ~/.skillsync/config.yaml.

The generated file lists the known platforms (claude, codex, gemini,
copilot), marks claude as the sync source, and sets the sync mode to
symlink. Edit it to change platform roots, targets, or the sync mode.`,
	Run: func(cmd *cobra.Command, _ []string) {
		force, _ := cmd.Flags().GetBool("force")

		path, err := platform.DefaultConfigPath()
		if err != nil {
			presenter.Error(err, "Failed to determine config path")
			os.Exit(1)
		}

		if err := platform.WriteDefault(path, force); err != nil {
			presenter.Error(err, "Failed to write configuration")
			os.Exit(1)
		}

		presenter.Success(fmt.Sprintf("Wrote default configuration to %s", path))
	},
}

func init() {
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
