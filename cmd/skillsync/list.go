package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/gobwas/glob"
	"github.com/jingkaihe/skillsync/pkg/platform"
	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/jingkaihe/skillsync/pkg/skills"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type ListConfig struct {
	Platform string
	Skills   string
	Format   string
	Verbose  bool
}

func NewListConfig() *ListConfig {
	return &ListConfig{
		Platform: "",
		Skills:   "",
		Format:   "table",
		Verbose:  false,
	}
}

// listEntry is one installed skill in the inventory output.
type listEntry struct {
	Platform    string `json:"platform"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
	IsSymlink   bool   `json:"isSymlink"`
	LinkTarget  string `json:"linkTarget,omitempty"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills across platforms",
	Long: `List all installed skills per platform with their descriptions and
whether each installation is a real copy or a symlink.

Examples:
  skillsync list
  skillsync list --platform claude
  skillsync list --skills 'pdf-*' --verbose
  skillsync list --format json`,
	Run: func(cmd *cobra.Command, _ []string) {
		config := getListConfigFromFlags(cmd)
		runList(config)
	},
}

func init() {
	defaults := NewListConfig()
	listCmd.Flags().StringP("platform", "p", defaults.Platform, "Only list skills for this platform")
	listCmd.Flags().String("skills", defaults.Skills, "Glob pattern filtering skill names")
	listCmd.Flags().String("format", defaults.Format, "Output format (table, json)")
	listCmd.Flags().BoolP("verbose", "v", defaults.Verbose, "Show full paths and link targets")
	rootCmd.AddCommand(listCmd)
}

func getListConfigFromFlags(cmd *cobra.Command) *ListConfig {
	config := NewListConfig()
	if p, err := cmd.Flags().GetString("platform"); err == nil {
		config.Platform = p
	}
	if s, err := cmd.Flags().GetString("skills"); err == nil {
		config.Skills = s
	}
	if f, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = f
	}
	if v, err := cmd.Flags().GetBool("verbose"); err == nil {
		config.Verbose = v
	}
	return config
}

func runList(config *ListConfig) {
	cfg, err := platform.LoadConfig()
	if err != nil {
		presenter.Error(err, "Failed to load configuration")
		os.Exit(1)
	}

	filter, err := compileSkillFilter(config.Skills)
	if err != nil {
		presenter.Error(err, "Invalid --skills pattern")
		os.Exit(1)
	}

	platforms := cfg.Platforms
	if config.Platform != "" {
		p, ok := cfg.ByID(config.Platform)
		if !ok {
			presenter.Error(errors.Errorf("unknown platform %q", config.Platform), "Invalid --platform")
			os.Exit(1)
		}
		platforms = []platform.Platform{p}
	}

	var entries []listEntry
	for _, p := range platforms {
		found, err := skills.DiscoverSkills(p.Root())
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to discover skills for %s", p.ID))
			os.Exit(1)
		}

		for _, name := range skills.SkillNames(found) {
			if filter != nil && !filter.Match(name) {
				continue
			}

			skill := found[name]
			entry := listEntry{
				Platform:    p.ID,
				Name:        name,
				Description: skill.Description,
				Path:        skill.Directory,
			}

			if info, err := os.Lstat(skill.Directory); err == nil && info.Mode()&os.ModeSymlink != 0 {
				entry.IsSymlink = true
				if target, err := filepath.EvalSymlinks(skill.Directory); err == nil {
					entry.LinkTarget = target
				}
			}

			entries = append(entries, entry)
		}
	}

	if config.Format == "json" {
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			presenter.Error(err, "Failed to encode inventory")
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	if len(entries) == 0 {
		presenter.Info("No skills installed")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if config.Verbose {
		fmt.Fprintln(tw, "PLATFORM\tNAME\tTYPE\tPATH\tDESCRIPTION")
		fmt.Fprintln(tw, "--------\t----\t----\t----\t-----------")
	} else {
		fmt.Fprintln(tw, "PLATFORM\tNAME\tTYPE\tDESCRIPTION")
		fmt.Fprintln(tw, "--------\t----\t----\t-----------")
	}

	for _, entry := range entries {
		kind := "copy"
		if entry.IsSymlink {
			kind = "link"
		}

		description := entry.Description
		if len(description) > 60 {
			description = description[:57] + "..."
		}

		if config.Verbose {
			path := entry.Path
			if entry.LinkTarget != "" {
				path = fmt.Sprintf("%s -> %s", entry.Path, entry.LinkTarget)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", entry.Platform, entry.Name, kind, path, description)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Platform, entry.Name, kind, description)
		}
	}
	tw.Flush()
}

// compileSkillFilter compiles the --skills glob, or returns nil when no
// filtering was requested.
func compileSkillFilter(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile pattern %q", pattern)
	}
	return g, nil
}
