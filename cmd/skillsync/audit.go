package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aymanbagabas/go-udiff"
	"github.com/jingkaihe/skillsync/pkg/drift"
	"github.com/jingkaihe/skillsync/pkg/platform"
	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/jingkaihe/skillsync/pkg/skills"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type AuditConfig struct {
	All     bool
	Skills  string
	Format  string
	Verbose bool
}

func NewAuditConfig() *AuditConfig {
	return &AuditConfig{
		All:     false,
		Skills:  "",
		Format:  "text",
		Verbose: false,
	}
}

// auditResult pairs one skill with its drift report for output.
type auditResult struct {
	Skill     string                       `json:"skill"`
	Report    drift.Report                 `json:"report"`
	Snapshots map[string]platform.Snapshot `json:"-"`
}

var auditCmd = &cobra.Command{
	Use:   "audit [skill-name]",
	Short: "Detect cross-platform drift for installed skills",
	Long: `Compare a skill's installations across platforms and classify their
consistency: synced via symlinks, identical copies, drifted, or present
on a single platform only.

Examples:
  skillsync audit my-skill
  skillsync audit --all
  skillsync audit --all --skills 'pdf-*'
  skillsync audit my-skill --verbose
  skillsync audit --all --format json`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getAuditConfigFromFlags(cmd)

		if !config.All && len(args) == 0 {
			presenter.Error(errors.New("skill name required (or use --all)"), "Nothing to audit")
			cmd.Help()
			os.Exit(1)
		}

		skillName := ""
		if len(args) > 0 {
			skillName = args[0]
		}
		runAudit(cmd.Context(), skillName, config)
	},
}

func init() {
	defaults := NewAuditConfig()
	auditCmd.Flags().Bool("all", defaults.All, "Audit every skill found on any platform")
	auditCmd.Flags().String("skills", defaults.Skills, "Glob pattern filtering skill names (with --all)")
	auditCmd.Flags().String("format", defaults.Format, "Output format (text, json)")
	auditCmd.Flags().BoolP("verbose", "v", defaults.Verbose, "Show per-file detail and content diffs")
	rootCmd.AddCommand(auditCmd)
}

func getAuditConfigFromFlags(cmd *cobra.Command) *AuditConfig {
	config := NewAuditConfig()
	if all, err := cmd.Flags().GetBool("all"); err == nil {
		config.All = all
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

func runAudit(ctx context.Context, skillName string, config *AuditConfig) {
	cfg, err := platform.LoadConfig()
	if err != nil {
		presenter.Error(err, "Failed to load configuration")
		os.Exit(1)
	}

	var names []string
	if config.All {
		names, err = collectSkillNames(cfg, config.Skills)
		if err != nil {
			presenter.Error(err, "Failed to collect skill names")
			os.Exit(1)
		}
		if len(names) == 0 {
			presenter.Info("No skills found on any platform")
			return
		}
	} else {
		names = []string{skillName}
	}

	var results []auditResult
	for _, name := range names {
		snaps, order, err := platform.Locate(ctx, name, cfg)
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to locate skill %q", name))
			os.Exit(1)
		}
		if len(order) == 0 {
			if !config.All {
				presenter.Error(errors.Errorf("skill %q not found on any platform", name), "Nothing to audit")
				os.Exit(1)
			}
			continue
		}

		results = append(results, auditResult{
			Skill:     name,
			Report:    drift.Classify(order, snaps),
			Snapshots: snaps,
		})
	}

	if config.Format == "json" {
		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			presenter.Error(err, "Failed to encode audit report")
			os.Exit(1)
		}
		fmt.Println(string(out))
	} else {
		printAuditText(results, config.Verbose)
	}

	for _, result := range results {
		if result.Report.Status == drift.StatusDrift {
			os.Exit(1)
		}
	}
}

// collectSkillNames gathers the union of skill directory names across
// every configured platform root, optionally filtered by a glob pattern.
func collectSkillNames(cfg platform.Config, pattern string) ([]string, error) {
	filter, err := compileSkillFilter(pattern)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, p := range cfg.Platforms {
		found, err := skills.DiscoverSkills(p.Root())
		if err != nil {
			return nil, err
		}
		for name := range found {
			if filter != nil && !filter.Match(name) {
				continue
			}
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func printAuditText(results []auditResult, verbose bool) {
	presenter.Section("SKILL AUDIT REPORT")

	counts := make(map[drift.Status]int)
	for _, result := range results {
		report := result.Report
		counts[report.Status]++

		presenter.Info(fmt.Sprintf("\n[%s] %s", strings.ToUpper(string(report.Status)), result.Skill))
		presenter.Info(fmt.Sprintf("    Platforms: %s", strings.Join(report.Platforms, ", ")))

		if report.Status == drift.StatusSynced && report.SymlinkTarget != "" {
			presenter.Info(fmt.Sprintf("    Symlink target: %s", report.SymlinkTarget))
		}

		if verbose || report.Status == drift.StatusDrift {
			printDriftDetail(result, verbose)
		}
	}

	presenter.Info("")
	presenter.Section("SUMMARY")
	presenter.Info(fmt.Sprintf("Total skills audited: %d", len(results)))
	presenter.Info(fmt.Sprintf("  Synced (symlinked):  %d", counts[drift.StatusSynced]))
	presenter.Info(fmt.Sprintf("  OK (identical):      %d", counts[drift.StatusOK]))
	presenter.Info(fmt.Sprintf("  Drift detected:      %d", counts[drift.StatusDrift]))
	presenter.Info(fmt.Sprintf("  Single platform:     %d", counts[drift.StatusSingle]))

	if counts[drift.StatusDrift] > 0 {
		presenter.Warning("Drift detected! Use 'skillsync sync' to reconcile differences.")
	}
}

func printDriftDetail(result auditResult, verbose bool) {
	report := result.Report

	for _, id := range report.Platforms {
		if files, ok := report.MissingFiles[id]; ok {
			presenter.Info(fmt.Sprintf("    Missing on %s: %s", id, strings.Join(files, ", ")))
		}
		if files, ok := report.ExtraFiles[id]; ok {
			presenter.Info(fmt.Sprintf("    Extra on %s: %s", id, strings.Join(files, ", ")))
		}
		modified, ok := report.ModifiedFiles[id]
		if !ok {
			continue
		}

		presenter.Info(fmt.Sprintf("    Modified on %s:", id))
		for _, mod := range modified {
			presenter.Info(fmt.Sprintf("      - %s", mod.RelPath))
			if verbose {
				printFileDiff(result.Snapshots[report.Baseline], result.Snapshots[id], mod.RelPath)
			}
		}
	}
}

// printFileDiff renders a unified diff between the baseline's and the
// other platform's copy of one file. Binary or unreadable content is
// summarized instead of diffed.
func printFileDiff(baseline, other platform.Snapshot, relPath string) {
	basePath := filepath.Join(baseline.SkillPath, filepath.FromSlash(relPath))
	otherPath := filepath.Join(other.SkillPath, filepath.FromSlash(relPath))

	baseContent, baseErr := os.ReadFile(basePath)
	otherContent, otherErr := os.ReadFile(otherPath)
	if baseErr != nil || otherErr != nil {
		presenter.Info("        (content unavailable for diff)")
		return
	}
	if !utf8.Valid(baseContent) || !utf8.Valid(otherContent) {
		presenter.Info("        (binary content differs)")
		return
	}

	diff := udiff.Unified(
		fmt.Sprintf("%s:%s", baseline.PlatformID, relPath),
		fmt.Sprintf("%s:%s", other.PlatformID, relPath),
		string(baseContent),
		string(otherContent),
	)
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		presenter.Info("        " + line)
	}
}
