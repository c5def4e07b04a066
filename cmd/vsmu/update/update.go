package update

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/laerinok/vs-mods-updater/internal/backup"
	"github.com/laerinok/vs-mods-updater/internal/classifier"
	"github.com/laerinok/vs-mods-updater/internal/config"
	"github.com/laerinok/vs-mods-updater/internal/exclusion"
	"github.com/laerinok/vs-mods-updater/internal/executor"
	"github.com/laerinok/vs-mods-updater/internal/httpclient"
	"github.com/laerinok/vs-mods-updater/internal/i18n"
	"github.com/laerinok/vs-mods-updater/internal/logger"
	"github.com/laerinok/vs-mods-updater/internal/moddb"
	"github.com/laerinok/vs-mods-updater/internal/models"
	"github.com/laerinok/vs-mods-updater/internal/perf"
	"github.com/laerinok/vs-mods-updater/internal/planner"
	"github.com/laerinok/vs-mods-updater/internal/report"
	"github.com/laerinok/vs-mods-updater/internal/scanner"
	"github.com/laerinok/vs-mods-updater/internal/telemetry"
	"github.com/laerinok/vs-mods-updater/internal/tui"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

type updateOptions struct {
	ConfigPath  string
	Quiet       bool
	Debug       bool
	ForceUpdate bool
	MaxWorkers  int
}

type updateDeps struct {
	fs        afero.Fs
	logger    *logger.Logger
	scan      scanFunc
	fetch     fetchFunc
	latest    latestFunc
	backup    backupFunc
	execute   executeFunc
	now       func() time.Time
	telemetry func(telemetry.RunTelemetry)
}

type scanFunc func(context.Context, string) ([]models.InstalledMod, error)

type fetchFunc func(context.Context, string, []models.InstalledMod) ([]models.InstalledMod, error)

type latestFunc func(context.Context) (string, error)

type backupFunc func(context.Context, []models.InstalledMod) (string, error)

type executeFunc func(context.Context, []executor.Task) []executor.Outcome

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "update",
		Aliases: []string{"u"},
		Short:   i18n.T("cmd.update.short"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, span := perf.StartSpan(cmd.Context(), "app.command.update")

			opts, err := readOptions(cmd)
			if err != nil {
				span.SetAttributes(attribute.Bool("success", false))
				span.End()
				return err
			}

			log := logger.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.Quiet, opts.Debug)

			deps, err := defaultDeps(ctx, cmd, opts, log)
			if err != nil {
				span.SetAttributes(attribute.Bool("success", false))
				span.End()
				return err
			}

			updated, failed, err := runUpdate(ctx, cmd, opts, deps)

			span.SetAttributes(attribute.Bool("success", err == nil))
			span.End()

			if err != nil {
				cmd.SilenceUsage = true
			}

			deps.telemetry(telemetry.RunTelemetry{
				Command: "update",
				Success: err == nil,
				Error:   err,
				Extra: map[string]interface{}{
					"updatedMods": updated,
					"failedMods":  failed,
				},
			})

			return err
		},
	}

	cmd.Flags().StringP("config", "c", "", i18n.T("cmd.flag.config"))
	cmd.Flags().BoolP("quiet", "q", false, i18n.T("cmd.flag.quiet"))
	cmd.Flags().Bool("debug", false, i18n.T("cmd.flag.debug"))
	cmd.Flags().Bool("force-update", false, i18n.T("cmd.flag.force_update"))
	cmd.Flags().Int("max-workers", 0, i18n.T("cmd.flag.max_workers"))

	return cmd
}

func readOptions(cmd *cobra.Command) (updateOptions, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return updateOptions{}, err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return updateOptions{}, err
	}
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return updateOptions{}, err
	}
	forceUpdate, err := cmd.Flags().GetBool("force-update")
	if err != nil {
		return updateOptions{}, err
	}
	maxWorkers, err := cmd.Flags().GetInt("max-workers")
	if err != nil {
		return updateOptions{}, err
	}

	return updateOptions{
		ConfigPath:  configPath,
		Quiet:       quiet,
		Debug:       debug,
		ForceUpdate: forceUpdate,
		MaxWorkers:  maxWorkers,
	}, nil
}

// defaultDeps wires the production collaborators. Tests inject their own
// updateDeps into runUpdate instead.
func defaultDeps(ctx context.Context, cmd *cobra.Command, opts updateOptions, log *logger.Logger) (updateDeps, error) {
	fs := afero.NewOsFs()

	meta := config.NewMetadata(opts.ConfigPath)
	cfg, err := config.ReadConfig(ctx, fs, meta)
	if err != nil {
		return updateDeps{}, err
	}

	workers := config.ValidateWorkers(opts.MaxWorkers, cfg.MaxWorkers)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	limiter := rate.NewLimiter(rate.Inf, 0)
	client := httpclient.NewRLClient(limiter)
	dbClient := moddb.NewClient(client, log, workers, timeout)

	modsScanner := &scanner.Scanner{Fs: fs, Log: log}
	backupManager := &backup.Manager{
		Fs:         fs,
		Folder:     meta.BackupFolderPath(cfg),
		ModsFolder: meta.ModsFolderPath(cfg),
		MaxBackups: cfg.MaxBackups,
		Log:        log,
	}
	updateExecutor := &executor.Executor{
		Fs:         fs,
		Client:     client,
		ModsFolder: meta.ModsFolderPath(cfg),
		Workers:    workers,
		Timeout:    timeout,
		Log:        log,
	}

	return updateDeps{
		fs:        fs,
		logger:    log,
		scan:      modsScanner.Scan,
		fetch:     dbClient.FetchAvailability,
		latest:    dbClient.LatestStableGameVersion,
		backup:    backupManager.Backup,
		execute:   updateExecutor.Execute,
		now:       time.Now,
		telemetry: telemetry.CaptureRun,
	}, nil
}

var errUpdateFailures = errors.New("one or more mods failed to update")

func runUpdate(ctx context.Context, cmd *cobra.Command, opts updateOptions, deps updateDeps) (int, int, error) {
	meta := config.NewMetadata(opts.ConfigPath)

	cfg, err := config.ReadConfig(ctx, deps.fs, meta)
	if err != nil {
		return 0, 0, err
	}

	workers := config.ValidateWorkers(opts.MaxWorkers, cfg.MaxWorkers)
	colorize := tui.IsTerminalWriter(cmd.OutOrStdout())

	gameVersion := strings.TrimSpace(cfg.GameVersion)
	if gameVersion == "" {
		gameVersion, err = deps.latest(ctx)
		if err != nil {
			return 0, 0, err
		}
	}
	deps.logger.Log(i18n.T("cmd.update.game_version", i18n.Tvars{
		Data: &i18n.TData{"version": gameVersion},
	}), false)

	installed, err := deps.scan(ctx, meta.ModsFolderPath(cfg))
	if err != nil {
		return 0, 0, err
	}
	if len(installed) == 0 {
		deps.logger.Log(i18n.T("cmd.update.no_mods"), true)
		return 0, 0, nil
	}

	annotated, err := deps.fetch(ctx, gameVersion, installed)
	if err != nil {
		return 0, 0, err
	}

	exclusions := exclusion.NewFilter(cfg.ExclusionList())
	modPlanner := &planner.Planner{
		Classifier: &classifier.Classifier{GameVersion: gameVersion, Log: deps.logger},
		Exclusions: exclusions,
		Workers:    workers,
	}

	plan, err := modPlanner.Plan(ctx, annotated, opts.ForceUpdate)
	if err != nil {
		return 0, 0, err
	}

	reportIncompatible(deps.logger, plan.IncompatibleMods, colorize)
	reportExcluded(deps.logger, exclusions.Records())

	tasks := pairTasks(plan.ModsToUpdate, annotated)

	var outcomes []executor.Outcome
	if len(tasks) > 0 {
		// The whole batch is archived before the first artifact changes.
		bundlePath, backupErr := deps.backup(ctx, taskMods(tasks))
		if backupErr != nil {
			return 0, 0, backupErr
		}
		deps.logger.Debug(i18n.T("cmd.update.backup_done", i18n.Tvars{
			Data: &i18n.TData{"path": bundlePath},
		}))

		outcomes = deps.execute(ctx, tasks)
	}

	updated, failed := summarize(deps.logger, tasks, outcomes, opts.Quiet, colorize)

	if updated == 0 && failed == 0 {
		deps.logger.Log(messageWithIcon(tui.SuccessIcon(colorize), i18n.T("cmd.update.no_updates")), true)
	}

	if err := writeReports(deps, meta, gameVersion, tasks, outcomes, plan, exclusions.Records()); err != nil {
		return updated, failed, err
	}

	if failed > 0 {
		return updated, failed, errUpdateFailures
	}
	return updated, failed, nil
}

// pairTasks reunites each planned update with the installed artifact it
// replaces. Plan order (case-insensitive by name) is preserved.
func pairTasks(updates []models.UpdateAvailable, installed []models.InstalledMod) []executor.Task {
	byFilename := make(map[string]models.InstalledMod, len(installed))
	for _, mod := range installed {
		byFilename[mod.Filename] = mod
	}

	tasks := make([]executor.Task, 0, len(updates))
	for _, update := range updates {
		mod, ok := byFilename[update.Filename]
		if !ok {
			continue
		}
		tasks = append(tasks, executor.Task{Mod: mod, Update: update})
	}
	return tasks
}

func taskMods(tasks []executor.Task) []models.InstalledMod {
	mods := make([]models.InstalledMod, 0, len(tasks))
	for _, task := range tasks {
		mods = append(mods, task.Mod)
	}
	return mods
}

func summarize(log *logger.Logger, tasks []executor.Task, outcomes []executor.Outcome, quiet bool, colorize bool) (int, int) {
	updated := 0
	failed := 0

	for i, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			key := "cmd.update.failed"
			if outcome.Critical {
				key = "cmd.update.failed_critical"
			}
			log.Error(messageWithIcon(tui.ErrorIcon(colorize), i18n.T(key, i18n.Tvars{
				Data: &i18n.TData{
					"name": outcome.Name,
					"err":  outcome.Err.Error(),
				},
			})))
			continue
		}

		updated++
		log.Log(messageWithIcon(tui.SuccessIcon(colorize), i18n.T("cmd.update.updated", i18n.Tvars{
			Data: &i18n.TData{
				"name": outcome.Name,
				"old":  outcome.OldVersion,
				"new":  outcome.NewVersion,
			},
		})), true)

		if !quiet && i < len(tasks) && strings.TrimSpace(tasks[i].Update.Changelog) != "" {
			changelogText := tasks[i].Update.Changelog
			if colorize {
				changelogText = tui.ChangelogStyle.Render(changelogText)
			}
			log.Log(changelogText, false)
		}
	}

	return updated, failed
}

func reportIncompatible(log *logger.Logger, incompatible []models.Incompatible, colorize bool) {
	for _, mod := range incompatible {
		log.Warn(messageWithIcon(tui.WarningIcon(colorize), i18n.T("cmd.update.incompatible", i18n.Tvars{
			Data: &i18n.TData{
				"name":        mod.Name,
				"version":     mod.OldVersion,
				"gameVersion": mod.OldVersionGameVersion,
			},
		})))
	}
}

func reportExcluded(log *logger.Logger, records []models.ExclusionRecord) {
	for _, record := range records {
		log.Debug(i18n.T("cmd.update.excluded", i18n.Tvars{
			Data: &i18n.TData{
				"filename": record.Filename,
				"reason":   record.Reason,
			},
		}))
	}
}

func writeReports(deps updateDeps, meta config.Metadata, gameVersion string, tasks []executor.Task, outcomes []executor.Outcome, plan models.UpdatePlan, excluded []models.ExclusionRecord) error {
	summary := report.NewSummary(gameVersion, deps.now(), tasks, outcomes, plan.IncompatibleMods, excluded)

	baseDir := filepath.Dir(meta.ConfigPath)
	if err := report.WriteJSON(deps.fs, filepath.Join(baseDir, "mods_updated.json"), summary); err != nil {
		return err
	}
	if err := report.WriteHTML(deps.fs, filepath.Join(baseDir, "mods_updated.html"), summary); err != nil {
		return err
	}

	deps.logger.Debug(i18n.T("cmd.update.reports_written", i18n.Tvars{
		Data: &i18n.TData{"dir": baseDir},
	}))
	return nil
}

func messageWithIcon(icon string, message string) string {
	return fmt.Sprintf("%s %s", icon, message)
}
