package install

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/laerinok/vs-mods-updater/internal/config"
	"github.com/laerinok/vs-mods-updater/internal/executor"
	"github.com/laerinok/vs-mods-updater/internal/httpclient"
	"github.com/laerinok/vs-mods-updater/internal/i18n"
	"github.com/laerinok/vs-mods-updater/internal/logger"
	"github.com/laerinok/vs-mods-updater/internal/perf"
	"github.com/laerinok/vs-mods-updater/internal/telemetry"
	"github.com/laerinok/vs-mods-updater/internal/tui"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type installOptions struct {
	ConfigPath  string
	ModlistPath string
	Quiet       bool
	Debug       bool
	MaxWorkers  int
}

type installDeps struct {
	fs        afero.Fs
	logger    *logger.Logger
	client    httpclient.Doer
	download  downloadFunc
	telemetry func(telemetry.RunTelemetry)
}

type downloadFunc func(context.Context, string, string, httpclient.Doer, afero.Fs) (int64, error)

// Modlist is the modlist.json document: a flat list of mods with the
// download URL each was installed from.
type Modlist struct {
	Mods []ModlistEntry `json:"Mods"`
}

type ModlistEntry struct {
	Name        string `json:"Name"`
	DownloadURL string `json:"installed_download_url"`
}

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "install",
		Aliases: []string{"i"},
		Short:   i18n.T("cmd.install.short"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, span := perf.StartSpan(cmd.Context(), "app.command.install")

			opts, err := readOptions(cmd)
			if err != nil {
				span.SetAttributes(attribute.Bool("success", false))
				span.End()
				return err
			}

			log := logger.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.Quiet, opts.Debug)
			client := httpclient.NewRLClient(rate.NewLimiter(rate.Inf, 0))

			deps := installDeps{
				fs:        afero.NewOsFs(),
				logger:    log,
				client:    client,
				download:  httpclient.DownloadFile,
				telemetry: telemetry.CaptureRun,
			}

			downloaded, failed, err := runInstall(ctx, cmd, opts, deps)

			span.SetAttributes(attribute.Bool("success", err == nil))
			span.End()

			if err != nil {
				cmd.SilenceUsage = true
			}

			deps.telemetry(telemetry.RunTelemetry{
				Command: "install",
				Success: err == nil,
				Error:   err,
				Extra: map[string]interface{}{
					"downloadedMods": downloaded,
					"failedMods":     failed,
				},
			})

			return err
		},
	}

	cmd.Flags().StringP("config", "c", "", i18n.T("cmd.flag.config"))
	cmd.Flags().StringP("modlist", "m", "modlist.json", i18n.T("cmd.flag.modlist"))
	cmd.Flags().BoolP("quiet", "q", false, i18n.T("cmd.flag.quiet"))
	cmd.Flags().Bool("debug", false, i18n.T("cmd.flag.debug"))
	cmd.Flags().Int("max-workers", 0, i18n.T("cmd.flag.max_workers"))

	return cmd
}

func readOptions(cmd *cobra.Command) (installOptions, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return installOptions{}, err
	}
	modlistPath, err := cmd.Flags().GetString("modlist")
	if err != nil {
		return installOptions{}, err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return installOptions{}, err
	}
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return installOptions{}, err
	}
	maxWorkers, err := cmd.Flags().GetInt("max-workers")
	if err != nil {
		return installOptions{}, err
	}

	return installOptions{
		ConfigPath:  configPath,
		ModlistPath: modlistPath,
		Quiet:       quiet,
		Debug:       debug,
		MaxWorkers:  maxWorkers,
	}, nil
}

var errInstallFailures = errors.New("one or more mods failed to download")

func runInstall(ctx context.Context, cmd *cobra.Command, opts installOptions, deps installDeps) (int, int, error) {
	meta := config.NewMetadata(opts.ConfigPath)

	cfg, err := config.ReadConfig(ctx, deps.fs, meta)
	if err != nil {
		return 0, 0, err
	}

	modlist, err := readModlist(deps.fs, opts.ModlistPath)
	if err != nil {
		return 0, 0, err
	}
	if len(modlist.Mods) == 0 {
		deps.logger.Log(i18n.T("cmd.install.empty"), true)
		return 0, 0, nil
	}

	modsFolder := meta.ModsFolderPath(cfg)
	if err := deps.fs.MkdirAll(modsFolder, 0755); err != nil {
		return 0, 0, fmt.Errorf("failed to create mods folder: %w", err)
	}

	colorize := tui.IsTerminalWriter(cmd.OutOrStdout())
	workers := config.ValidateWorkers(opts.MaxWorkers, cfg.MaxWorkers)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	failures := make([]error, len(modlist.Mods))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i := range modlist.Mods {
		group.Go(func() error {
			failures[i] = deps.installOne(groupCtx, modlist.Mods[i], modsFolder, timeout, colorize)
			return nil
		})
	}

	_ = group.Wait()

	downloaded := 0
	failed := 0
	for _, failure := range failures {
		if failure != nil {
			failed++
			continue
		}
		downloaded++
	}

	deps.logger.Log(i18n.T("cmd.install.summary", i18n.Tvars{
		Data: &i18n.TData{
			"downloaded": downloaded,
			"failed":     failed,
		},
	}), true)

	if failed > 0 {
		return downloaded, failed, errInstallFailures
	}
	return downloaded, failed, nil
}

func (deps installDeps) installOne(ctx context.Context, entry ModlistEntry, modsFolder string, timeout time.Duration, colorize bool) error {
	if strings.TrimSpace(entry.DownloadURL) == "" {
		err := fmt.Errorf("modlist entry %q has no download url", entry.Name)
		deps.logFailure(entry.Name, err, colorize)
		return err
	}

	filename := executor.FilenameFromURL(entry.DownloadURL)
	if filename == "" {
		err := fmt.Errorf("cannot derive a filename from %s", entry.DownloadURL)
		deps.logFailure(entry.Name, err, colorize)
		return err
	}

	downloadCtx, cancel := httpclient.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := deps.download(downloadCtx, entry.DownloadURL, filepath.Join(modsFolder, filename), deps.client, deps.fs); err != nil {
		deps.logFailure(entry.Name, err, colorize)
		return err
	}

	deps.logger.Log(fmt.Sprintf("%s %s", tui.SuccessIcon(colorize), i18n.T("cmd.install.downloaded", i18n.Tvars{
		Data: &i18n.TData{
			"name":     entry.Name,
			"filename": filename,
		},
	})), false)
	return nil
}

func (deps installDeps) logFailure(name string, err error, colorize bool) {
	deps.logger.Error(fmt.Sprintf("%s %s", tui.ErrorIcon(colorize), i18n.T("cmd.install.failed", i18n.Tvars{
		Data: &i18n.TData{
			"name": name,
			"err":  err.Error(),
		},
	})))
}

func readModlist(fs afero.Fs, path string) (Modlist, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return Modlist{}, err
	}
	if !exists {
		return Modlist{}, fmt.Errorf("modlist file %s not found", path)
	}

	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Modlist{}, fmt.Errorf("failed to read modlist: %w", err)
	}

	var modlist Modlist
	if err := json.Unmarshal(raw, &modlist); err != nil {
		return Modlist{}, fmt.Errorf("failed to parse modlist: %w", err)
	}
	return modlist, nil
}
