package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"modelforge/internal/budget"
	"modelforge/internal/catalog"
	"modelforge/internal/config"
	"modelforge/internal/configdir"
	"modelforge/internal/export"
	"modelforge/internal/fsutil"
	"modelforge/internal/hardware"
	"modelforge/internal/logging"
	"modelforge/internal/manifest"
	"modelforge/internal/portfolio"
	"modelforge/internal/provision"
	"modelforge/internal/runtime"
	"modelforge/internal/tui"
)

const (
	version            = "0.1.0-dev"
	hardwareReportName = "hardware_report.json"
	healthRetryDelay   = 2 * time.Second
)

func main() {
	if len(os.Args) <= 1 {
		printUsage()
		return
	}

	command := strings.ToLower(os.Args[1])
	if handler, ok := commandHandlers()[command]; ok {
		handler()
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
	printUsage()
	os.Exit(1)
}

func commandHandlers() map[string]func() {
	return map[string]func(){
		"provision": runProvision,
		"setup":     runProvision, // Alias for provision
		"retry":     runRetry,
		"plan":      runPlan,
		"hardware":  runHardware,
		"models":    runModels,
		"uninstall": runUninstall,
		"config":    runConfig,
		"version":   runVersion,
		"help":      printUsage,
		"--help":    printUsage,
		"-h":        printUsage,
	}
}

func printUsage() {
	fmt.Println("modelforge — hardware-aware local model provisioning")
	fmt.Println()
	fmt.Println("Usage: modelforge <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  provision   Detect hardware, select models and install them")
	fmt.Println("  retry       Re-run installation for roles that failed last time")
	fmt.Println("  plan        Show the budget and model selection without installing")
	fmt.Println("  hardware    Show the detected hardware profile and tier")
	fmt.Println("  models      List runtime models and which ones modelforge installed")
	fmt.Println("  uninstall   Remove everything recorded in the install manifest")
	fmt.Println("  config      Show the effective configuration")
	fmt.Println("  version     Show version")
	fmt.Println("  help        Show this help")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --non-interactive   Never prompt; answer with safe defaults")
}

func runVersion() {
	fmt.Printf("modelforge version %s\n", version)
}

// nonInteractive reports whether prompts must be skipped, via flag or
// environment.
func nonInteractive() bool {
	for _, arg := range os.Args[2:] {
		if arg == "--non-interactive" || arg == "-y" {
			return true
		}
	}
	return os.Getenv("MODELFORGE_NON_INTERACTIVE") == "1"
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so an
// in-flight pull finishes its bookkeeping before exit.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfigOrExit() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not load configuration: %v\n", err)
		os.Exit(1)
	}
	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		fmt.Fprintln(os.Stderr, "Error: invalid configuration:")
		for _, ve := range validationErrors {
			fmt.Fprintf(os.Stderr, "  %s\n", ve.Error())
		}
		os.Exit(1)
	}
	return cfg
}

func newLogger(cfg config.Config) *logging.Logger {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.File != "" {
		logger, err := logging.NewFileLogger(level, cfg.Logging.File)
		if err == nil {
			return logger
		}
		fmt.Fprintf(os.Stderr, "Warning: could not open log file, logging to stderr: %v\n", err)
	}
	return logging.NewLogger(level)
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path != "" {
		return catalog.LoadFromFile(cfg.Catalog.Path)
	}
	return catalog.LoadEmbedded()
}

func stateDir() string {
	return fsutil.GetStateDir(fsutil.DefaultStateDir)
}

func bindingsPath(cfg config.Config) string {
	if cfg.Export.Path != "" {
		return cfg.Export.Path
	}
	return export.DefaultPath(stateDir())
}

// detectProfile detects hardware and persists the report for the
// hardware command.
func detectProfile(logger *logging.Logger) (hardware.Profile, error) {
	detector := hardware.NewDetector(logger)
	profile, err := detector.Detect()
	if err != nil {
		return hardware.Profile{}, err
	}

	reportPath := filepath.Join(stateDir(), hardwareReportName)
	if err := fsutil.EnsureStateDirectory(stateDir()); err == nil {
		if saveErr := detector.SaveProfile(profile, reportPath); saveErr != nil {
			logger.Warn("hardware.report.save_failed", "Could not persist hardware report", map[string]interface{}{
				"error": saveErr.Error(),
			})
		}
	}
	return profile, nil
}

func runHardware() {
	cfg := loadConfigOrExit()
	logger := newLogger(cfg)
	defer logger.Close()

	profile, err := detectProfile(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: hardware detection failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(tui.RenderHardware(profile))
}

func runPlan() {
	cfg := loadConfigOrExit()
	logger := newLogger(cfg)
	defer logger.Close()

	profile, err := detectProfile(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: hardware detection failed: %v\n", err)
		os.Exit(1)
	}
	if !profile.Supported() {
		fmt.Print(tui.RenderHardware(profile))
		os.Exit(1)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	alloc := budget.Allocate(profile)
	selected, err := portfolio.NewSelector(cat, logger).Select(alloc)
	if err != nil {
		if errors.Is(err, portfolio.ErrNoViablePortfolio) {
			fmt.Fprintln(os.Stderr, "No model portfolio fits this machine's budget.")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(tui.RenderPlan(profile, alloc, selected))
}

func runProvision() {
	cfg := loadConfigOrExit()
	logger := newLogger(cfg)

	if !cfg.Provisioning.Enabled() {
		fmt.Println("Provisioning is disabled in the configuration; nothing to do.")
		logger.Close()
		return
	}

	ctx, cancel := signalContext()
	code := executeProvision(ctx, cfg, logger, nil)
	cancel()
	logger.Close()
	os.Exit(code)
}

func runRetry() {
	cfg := loadConfigOrExit()
	logger := newLogger(cfg)

	tracker := manifest.NewTracker(stateDir(), logger)
	m, err := tracker.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(m.Failed) == 0 {
		fmt.Println("No failed roles recorded; nothing to retry.")
		logger.Close()
		return
	}

	only := make(map[catalog.Role]bool, len(m.Failed))
	for _, f := range m.Failed {
		only[f.Role] = true
	}

	ctx, cancel := signalContext()
	code := executeProvision(ctx, cfg, logger, only)
	cancel()
	logger.Close()
	os.Exit(code)
}

// executeProvision runs one full provisioning pass. When only is
// non-nil the portfolio is restricted to those roles. Returns the
// process exit code.
func executeProvision(ctx context.Context, cfg config.Config, logger *logging.Logger, only map[catalog.Role]bool) int {
	profile, err := detectProfile(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: hardware detection failed: %v\n", err)
		return 1
	}
	if !profile.Supported() {
		fmt.Print(tui.RenderHardware(profile))
		return 1
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	alloc := budget.Allocate(profile)
	selected, err := portfolio.NewSelector(cat, logger).Select(alloc)
	if err != nil {
		if errors.Is(err, portfolio.ErrNoViablePortfolio) {
			fmt.Fprintln(os.Stderr, "No model portfolio fits this machine's budget.")
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if only != nil {
		for role := range selected.Assignments {
			if !only[role] {
				delete(selected.Assignments, role)
			}
		}
		if len(selected.Assignments) == 0 {
			fmt.Println("Previously failed roles no longer fit the current selection; nothing to retry.")
			return 0
		}
	}

	client := runtime.NewClient(cfg.Runtime.Endpoint, logger)
	if err := client.PingWithRetries(ctx, cfg.Runtime.HealthRetries, healthRetryDelay); err != nil {
		fmt.Fprintf(os.Stderr, "Error: model runtime is not reachable at %s: %v\n", client.Endpoint(), err)
		return 1
	}

	opts := provision.Options{
		MaxAttemptsPerRole: cfg.Provisioning.MaxAttemptsPerRole,
		PullTimeout:        time.Duration(cfg.Runtime.PullTimeoutSeconds) * time.Second,
	}
	outcomes := provision.NewOrchestrator(client, cat, opts, logger).Run(ctx, selected)

	// Persist outcomes before anything else so an interrupt cannot
	// lose track of what was installed.
	tracker := manifest.NewTracker(stateDir(), logger)
	recordOutcomes(tracker, outcomes, logger)

	result := provision.Summarize(outcomes)
	if len(result.Succeeded) > 0 {
		exportBindings(cfg, outcomes, tracker, logger)
	}

	fmt.Print(tui.RenderSummary(outcomes, result))

	if result.AllSucceeded || len(outcomes) == 0 {
		return 0
	}
	if ctx.Err() == nil && !nonInteractive() {
		retry, err := tui.Confirm("Setup incomplete. Retry failed roles now?")
		if err == nil && retry {
			return executeProvision(ctx, cfg, logger, failedRoleSet(outcomes))
		}
	}
	return 1
}

func failedRoleSet(outcomes []provision.PullOutcome) map[catalog.Role]bool {
	only := make(map[catalog.Role]bool)
	for _, outcome := range provision.FailedRoles(outcomes) {
		only[outcome.Role] = true
	}
	return only
}

func recordOutcomes(tracker *manifest.Tracker, outcomes []provision.PullOutcome, logger *logging.Logger) {
	for _, outcome := range outcomes {
		var err error
		if outcome.Success {
			if err = tracker.RecordModel(outcome.Role, outcome.Model); err == nil {
				err = tracker.ClearFailure(outcome.Role)
			}
		} else {
			err = tracker.RecordFailure(outcome.Role, outcome.Model, outcome.FailureKind.String())
		}
		if err != nil {
			logger.Error("manifest.record_failed", "Could not record outcome", map[string]interface{}{
				"role":  outcome.Role.String(),
				"error": err.Error(),
			})
		}
	}
}

func exportBindings(cfg config.Config, outcomes []provision.PullOutcome, tracker *manifest.Tracker, logger *logging.Logger) {
	path := bindingsPath(cfg)
	bindings := export.Bindings(outcomes)
	if existing, err := export.Read(path); err == nil {
		bindings = export.Merge(existing, bindings)
	}
	if err := export.Write(path, bindings, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not export role bindings: %v\n", err)
		return
	}
	if err := tracker.RecordFile(path); err != nil {
		logger.Warn("manifest.record_failed", "Could not record bindings file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}

func runModels() {
	cfg := loadConfigOrExit()
	logger := newLogger(cfg)
	defer logger.Close()

	ctx, cancel := signalContext()
	defer cancel()

	client := runtime.NewClient(cfg.Runtime.Endpoint, logger)
	models, err := client.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not list runtime models: %v\n", err)
		os.Exit(1)
	}

	tracker := manifest.NewTracker(stateDir(), logger)
	m, err := tracker.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	owned := make(map[string]catalog.Role)
	for _, entry := range m.ModelEntries() {
		owned[entry.Ref] = entry.Role
	}

	if len(models) == 0 {
		fmt.Println("No models installed in the runtime.")
		return
	}

	fmt.Printf("%-40s %-12s %s\n", "MODEL", "SIZE", "MANAGED")
	for _, model := range models {
		managed := "-"
		if role, ok := owned[model.Name]; ok {
			managed = "✓ " + role.String()
		}
		fmt.Printf("%-40s %-12s %s\n", model.Name, formatSize(model.Size), managed)
	}
}

func formatSize(bytes int64) string {
	const gb = 1024 * 1024 * 1024
	if bytes <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
}

func runUninstall() {
	cfg := loadConfigOrExit()
	logger := newLogger(cfg)
	defer logger.Close()

	tracker := manifest.NewTracker(stateDir(), logger)
	m, err := tracker.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch m.State {
	case manifest.StateEmpty:
		fmt.Println("No install manifest found; nothing to uninstall.")
		return
	case manifest.StateUnknown:
		fmt.Fprintln(os.Stderr, "The install manifest is unreadable. Nothing on this machine can")
		fmt.Fprintln(os.Stderr, "be safely claimed, so nothing will be removed.")
		fmt.Fprintf(os.Stderr, "The unreadable file was set aside at %s.\n", tracker.QuarantinePath())
		os.Exit(1)
	}

	steps := manifest.NewPlanner(logger).Plan(m)
	if len(steps) == 0 {
		fmt.Println("Manifest contains no artifacts; nothing to uninstall.")
		return
	}

	fmt.Printf("Uninstalling %d artifact(s) recorded on %s.\n", len(steps), m.Created.Format("2006-01-02"))

	if !nonInteractive() {
		proceed, err := tui.Confirm(fmt.Sprintf("Remove %d artifact(s) installed by modelforge?", len(steps)))
		if err != nil || !proceed {
			fmt.Println("Uninstall cancelled.")
			return
		}
	}

	confirm := func(step manifest.Step) manifest.Decision {
		if nonInteractive() {
			return manifest.DecisionKeep // keep anything questionable
		}
		choice, err := tui.Prompt(
			fmt.Sprintf("%s (%s)", step.Entry.Ref, step.Reason),
			[]tui.Choice{
				{Key: "b", Label: "Back up, then remove"},
				{Key: "o", Label: "Remove without backup"},
				{Key: "s", Label: "Skip (keep the file)"},
			})
		if err != nil {
			return manifest.DecisionKeep
		}
		switch choice.Key {
		case "b":
			return manifest.DecisionBackupRemove
		case "o":
			return manifest.DecisionRemove
		default:
			return manifest.DecisionKeep
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	client := runtime.NewClient(cfg.Runtime.Endpoint, logger)
	uninstaller := manifest.NewUninstaller(tracker, client, cfg.Uninstall.BackupDir, logger)
	result := uninstaller.Execute(ctx, steps, confirm)

	fmt.Printf("Removed: %d  Already absent: %d  Kept: %d  Failed: %d\n",
		len(result.Removed), len(result.Skipped), len(result.Kept), len(result.Failed))
	if result.Complete {
		fmt.Println("Uninstall complete; manifest cleared.")
		return
	}
	if len(result.Failed) > 0 {
		fmt.Fprintln(os.Stderr, "Some artifacts could not be removed; the manifest was kept so a")
		fmt.Fprintln(os.Stderr, "later uninstall can finish the job.")
		os.Exit(1)
	}
}

func runConfig() {
	cfg := loadConfigOrExit()

	fmt.Println("Effective configuration:")
	fmt.Printf("  provisioning.disabled:              %v\n", cfg.Provisioning.Disabled)
	fmt.Printf("  provisioning.max_attempts_per_role: %d\n", cfg.Provisioning.MaxAttemptsPerRole)
	fmt.Printf("  runtime.endpoint:                   %s\n", cfg.Runtime.Endpoint)
	fmt.Printf("  runtime.pull_timeout_seconds:       %d\n", cfg.Runtime.PullTimeoutSeconds)
	fmt.Printf("  runtime.health_retries:             %d\n", cfg.Runtime.HealthRetries)
	fmt.Printf("  catalog.path:                       %s\n", valueOrDefault(cfg.Catalog.Path, "(embedded)"))
	fmt.Printf("  export.path:                        %s\n", valueOrDefault(cfg.Export.Path, export.DefaultPath(stateDir())))
	fmt.Printf("  uninstall.backup_dir:               %s\n", valueOrDefault(cfg.Uninstall.BackupDir, "(no backups)"))
	fmt.Printf("  logging.level:                      %s\n", cfg.Logging.Level)
	fmt.Printf("  logging.file:                       %s\n", valueOrDefault(cfg.Logging.File, "(stderr)"))
	fmt.Println()
	fmt.Printf("Config directory: %s\n", configdir.ConfigDir())
	fmt.Printf("State directory:  %s\n", stateDir())
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
