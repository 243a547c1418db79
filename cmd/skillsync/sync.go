package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/skillsync/pkg/platform"
	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/jingkaihe/skillsync/pkg/reconcile"
	"github.com/jingkaihe/skillsync/pkg/skills"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type SyncConfig struct {
	All          bool
	To           string
	Mode         string
	DryRun       bool
	Force        bool
	SkipExisting bool
}

func NewSyncConfig() *SyncConfig {
	return &SyncConfig{
		All:          false,
		To:           "",
		Mode:         "",
		DryRun:       false,
		Force:        false,
		SkipExisting: false,
	}
}

var syncCmd = &cobra.Command{
	Use:   "sync [skill-path]",
	Short: "Deploy a skill across platforms",
	Long: `Converge target platforms toward a source skill, either by symlinking
each target at the source or by copying the source tree.

Existing conflicting installations prompt for confirmation unless
--force or --skip-existing pre-resolves the decision.

Examples:
  skillsync sync ./my-skill                      # Sync to configured targets
  skillsync sync ~/.claude/skills/my-skill       # Sync from Claude to targets
  skillsync sync --all                           # Sync all source-platform skills
  skillsync sync ./my-skill --to codex,gemini    # Sync to specific platforms
  skillsync sync ./my-skill --to auto            # Auto-detect installed platforms
  skillsync sync ./my-skill --mode copy          # Force copy instead of symlink
  skillsync sync ./my-skill --dry-run            # Preview without changing anything`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getSyncConfigFromFlags(cmd)

		if !config.All && len(args) == 0 {
			presenter.Error(errors.New("skill path required (or use --all)"), "Nothing to sync")
			cmd.Help()
			os.Exit(1)
		}

		skillPath := ""
		if len(args) > 0 {
			skillPath = args[0]
		}
		runSync(cmd.Context(), skillPath, config)
	},
}

func init() {
	defaults := NewSyncConfig()
	syncCmd.Flags().Bool("all", defaults.All, "Sync every skill from the source platform")
	syncCmd.Flags().String("to", defaults.To, "Target platforms: comma-separated ids, 'all', or 'auto'")
	syncCmd.Flags().String("mode", defaults.Mode, "Sync mode: symlink or copy (overrides config)")
	syncCmd.Flags().Bool("dry-run", defaults.DryRun, "Preview changes without applying")
	syncCmd.Flags().BoolP("force", "f", defaults.Force, "Overwrite existing skills without prompting")
	syncCmd.Flags().Bool("skip-existing", defaults.SkipExisting, "Leave existing skills untouched without prompting")
	rootCmd.AddCommand(syncCmd)
}

func getSyncConfigFromFlags(cmd *cobra.Command) *SyncConfig {
	config := NewSyncConfig()
	if all, err := cmd.Flags().GetBool("all"); err == nil {
		config.All = all
	}
	if to, err := cmd.Flags().GetString("to"); err == nil {
		config.To = to
	}
	if mode, err := cmd.Flags().GetString("mode"); err == nil {
		config.Mode = mode
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	if skip, err := cmd.Flags().GetBool("skip-existing"); err == nil {
		config.SkipExisting = skip
	}
	return config
}

func runSync(ctx context.Context, skillPath string, config *SyncConfig) {
	cfg, err := platform.LoadConfig()
	if err != nil {
		presenter.Error(err, "Failed to load configuration")
		os.Exit(1)
	}

	modeValue := config.Mode
	if modeValue == "" {
		modeValue = cfg.SyncMode
	}
	mode, err := reconcile.ParseMode(modeValue)
	if err != nil {
		presenter.Error(err, "Invalid sync mode")
		os.Exit(1)
	}

	targets, err := resolveTargetPlatforms(cfg, config.To)
	if err != nil {
		presenter.Error(err, "Failed to resolve target platforms")
		os.Exit(1)
	}

	// The conflict policy is resolved here, before entering the
	// reconciliation core: the engine itself never prompts.
	policy := reconcile.PolicyAsk
	var confirm func(string) bool
	switch {
	case config.Force:
		policy = reconcile.PolicyForce
	case config.SkipExisting:
		policy = reconcile.PolicySkip
	case config.DryRun:
		// Preview reports the overwrite a confirmed run would perform.
	default:
		confirm = presenter.Confirm
	}

	reconciler, err := reconcile.New(mode, policy, config.DryRun, confirm)
	if err != nil {
		presenter.Error(err, "Failed to configure reconciler")
		os.Exit(1)
	}

	if config.All {
		runSyncAll(ctx, cfg, reconciler, targets, modeValue, config)
		return
	}

	runSyncOne(ctx, cfg, reconciler, targets, skillPath, modeValue, config)
}

// resolveTargetPlatforms turns the --to flag (or the configured targets)
// into an ordered platform list.
func resolveTargetPlatforms(cfg platform.Config, to string) ([]platform.Platform, error) {
	switch to {
	case "":
		targets := cfg.Targets()
		if len(targets) == 0 {
			return nil, errors.New("no target platforms configured; run 'skillsync init' or use --to")
		}
		return targets, nil
	case "all":
		return cfg.Platforms, nil
	case "auto":
		detected := cfg.Detect()
		if len(detected) == 0 {
			return nil, errors.New("no installed platforms detected")
		}
		ids := make([]string, 0, len(detected))
		for _, p := range detected {
			ids = append(ids, p.ID)
		}
		presenter.Info(fmt.Sprintf("Auto-detected platforms: %s", strings.Join(ids, ", ")))
		return detected, nil
	default:
		var targets []platform.Platform
		for _, id := range strings.Split(to, ",") {
			id = strings.TrimSpace(id)
			p, ok := cfg.ByID(id)
			if !ok {
				return nil, errors.Errorf("unknown platform %q", id)
			}
			targets = append(targets, p)
		}
		return targets, nil
	}
}

// sourcePlatformOf reports which platform root, if any, contains the
// skill path.
func sourcePlatformOf(cfg platform.Config, skillPath string) (platform.Platform, bool) {
	for _, p := range cfg.Platforms {
		root := p.Root()
		if root == "" {
			continue
		}
		if rel, err := filepath.Rel(root, skillPath); err == nil && !strings.HasPrefix(rel, "..") {
			return p, true
		}
	}
	return platform.Platform{}, false
}

// excludePlatform drops the platform with the given id from the targets.
func excludePlatform(targets []platform.Platform, id string) []platform.Platform {
	var out []platform.Platform
	for _, p := range targets {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func toReconcileTargets(platforms []platform.Platform) []reconcile.Target {
	targets := make([]reconcile.Target, 0, len(platforms))
	for _, p := range platforms {
		targets = append(targets, reconcile.Target{PlatformID: p.ID, SkillsDir: p.Root()})
	}
	return targets
}

func runSyncOne(ctx context.Context, cfg platform.Config, reconciler *reconcile.Reconciler,
	targets []platform.Platform, skillPath, modeValue string, config *SyncConfig,
) {
	absPath, err := filepath.Abs(skillPath)
	if err != nil {
		presenter.Error(err, "Failed to resolve skill path")
		os.Exit(1)
	}

	if source, ok := sourcePlatformOf(cfg, absPath); ok {
		targets = excludePlatform(targets, source.ID)
		presenter.Info(fmt.Sprintf("Source platform: %s", source.Name))
	}
	if len(targets) == 0 {
		presenter.Info("No target platforms to sync to.")
		return
	}

	presenter.Info(fmt.Sprintf("Syncing skill: %s", filepath.Base(absPath)))
	presenter.Info(fmt.Sprintf("Source: %s", absPath))
	presenter.Info(fmt.Sprintf("Targets: %s", platformIDs(targets)))
	presenter.Info(fmt.Sprintf("Mode: %s", modeValue))
	if config.DryRun {
		presenter.Info("\n[DRY RUN MODE - No changes will be made]")
	}

	outcomes, err := reconciler.Apply(ctx, absPath, toReconcileTargets(targets))
	if err != nil {
		presenter.Error(err, "Sync failed")
		os.Exit(1)
	}

	printOutcomes(outcomes)
	exitForOutcomes(outcomes)
}

func runSyncAll(ctx context.Context, cfg platform.Config, reconciler *reconcile.Reconciler,
	targets []platform.Platform, modeValue string, config *SyncConfig,
) {
	source, ok := cfg.SourcePlatform()
	if !ok {
		presenter.Error(errors.New("no source platform configured; run 'skillsync init'"), "Cannot sync all skills")
		os.Exit(1)
	}

	found, err := skills.DiscoverSkills(source.Root())
	if err != nil {
		presenter.Error(err, "Failed to discover source skills")
		os.Exit(1)
	}
	if len(found) == 0 {
		presenter.Info(fmt.Sprintf("No skills found in %s", source.Root()))
		return
	}

	targets = excludePlatform(targets, source.ID)
	if len(targets) == 0 {
		presenter.Info("No target platforms to sync to.")
		return
	}

	presenter.Info(fmt.Sprintf("Syncing %d skills from %s", len(found), source.Name))
	presenter.Info(fmt.Sprintf("Targets: %s", platformIDs(targets)))
	presenter.Info(fmt.Sprintf("Mode: %s", modeValue))
	if config.DryRun {
		presenter.Info("\n[DRY RUN MODE - No changes will be made]")
	}

	var succeeded, skipped, failed int
	reconcileTargets := toReconcileTargets(targets)

	for _, name := range skills.SkillNames(found) {
		presenter.Separator()
		presenter.Info(fmt.Sprintf("Skill: %s", name))

		outcomes, err := reconciler.Apply(ctx, found[name].Directory, reconcileTargets)
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to sync %s", name))
			failed += len(reconcileTargets)
			continue
		}

		printOutcomes(outcomes)
		for _, o := range outcomes {
			switch {
			case o.Success():
				succeeded++
			case o.Skipped():
				skipped++
			default:
				failed++
			}
		}
	}

	presenter.Separator()
	presenter.Section("SUMMARY")
	presenter.Info(fmt.Sprintf("Skills synced: %d", len(found)))
	presenter.Info(fmt.Sprintf("Success: %d", succeeded))
	presenter.Info(fmt.Sprintf("Skipped: %d", skipped))
	presenter.Info(fmt.Sprintf("Failed: %d", failed))

	if failed > 0 {
		os.Exit(1)
	}
}

func platformIDs(platforms []platform.Platform) string {
	ids := make([]string, 0, len(platforms))
	for _, p := range platforms {
		ids = append(ids, p.ID)
	}
	return strings.Join(ids, ", ")
}

func printOutcomes(outcomes []reconcile.Outcome) {
	for _, o := range outcomes {
		message := fmt.Sprintf("%s: %s", o.PlatformID, o.Detail)
		switch {
		case o.Action == reconcile.ActionFailed:
			presenter.Error(errors.New(o.Detail), o.PlatformID)
		case o.Skipped():
			presenter.Warning(message)
		default:
			presenter.Success(message)
		}
	}
}

// exitForOutcomes keeps the historical exit code contract: 1 when any
// target failed, 2 when everything was skipped, 0 otherwise.
func exitForOutcomes(outcomes []reconcile.Outcome) {
	if err := reconcile.Failed(outcomes); err != nil {
		presenter.Error(err, "Some targets failed")
		os.Exit(1)
	}

	anySuccess := false
	anySkipped := false
	for _, o := range outcomes {
		if o.Success() {
			anySuccess = true
		}
		if o.Skipped() {
			anySkipped = true
		}
	}

	if anySuccess {
		presenter.Info("\nNOTE: Reload your IDE windows for changes to take effect.")
		return
	}
	if anySkipped {
		os.Exit(2)
	}
}
