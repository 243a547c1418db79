package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/jingkaihe/skillsync/pkg/validate"
	"github.com/spf13/cobra"
)

type ValidateConfig struct {
	Strict bool
	Format string
}

func NewValidateConfig() *ValidateConfig {
	return &ValidateConfig{
		Strict: false,
		Format: "text",
	}
}

var validateCmd = &cobra.Command{
	Use:   "validate <skill-path>",
	Short: "Validate a skill against the manifest rules",
	Long: `Validate a skill directory against the agent skills manifest rules:
required name and description frontmatter, naming constraints, and
length limits.

Examples:
  skillsync validate ./my-skill
  skillsync validate ~/.claude/skills/my-skill --strict
  skillsync validate ./my-skill --format json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getValidateConfigFromFlags(cmd)
		runValidate(args[0], config)
	},
}

func init() {
	defaults := NewValidateConfig()
	validateCmd.Flags().Bool("strict", defaults.Strict, "Treat warnings as errors")
	validateCmd.Flags().String("format", defaults.Format, "Output format (text, json)")
	rootCmd.AddCommand(validateCmd)
}

func getValidateConfigFromFlags(cmd *cobra.Command) *ValidateConfig {
	config := NewValidateConfig()
	if strict, err := cmd.Flags().GetBool("strict"); err == nil {
		config.Strict = strict
	}
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	return config
}

func runValidate(skillPath string, config *ValidateConfig) {
	result := validate.CheckSkill(skillPath, config.Strict)

	if config.Format == "json" {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			presenter.Error(err, "Failed to encode validation result")
			os.Exit(1)
		}
		fmt.Println(string(out))
	} else {
		for _, msg := range result.Errors {
			presenter.Error(fmt.Errorf("%s", msg), "")
		}
		for _, msg := range result.Warnings {
			presenter.Warning(msg)
		}
		for _, msg := range result.Info {
			presenter.Success(msg)
		}
	}

	if !result.Valid() {
		os.Exit(1)
	}
}
