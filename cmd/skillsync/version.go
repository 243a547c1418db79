package main

import (
	"fmt"
	"os"

	"github.com/jingkaihe/skillsync/pkg/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version information of skillsync in JSON format.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if short, err := cmd.Flags().GetBool("short"); err == nil && short {
			fmt.Println(version.Get().Version)
			return
		}

		info := version.Get()
		json, err := info.JSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting version info: %s\n", err)
			os.Exit(1)
		}
		fmt.Println(json)
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print only the version number")
	rootCmd.AddCommand(versionCmd)
}
