// Package executor applies an update plan to the mods folder. Each mod runs
// its own download/validate/remove/install pipeline; one mod failing never
// stops the others.
package executor

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/laerinok/vs-mods-updater/internal/httpclient"
	"github.com/laerinok/vs-mods-updater/internal/i18n"
	"github.com/laerinok/vs-mods-updater/internal/logger"
	"github.com/laerinok/vs-mods-updater/internal/models"
	"github.com/laerinok/vs-mods-updater/internal/perf"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Task pairs a planned update with the installed artifact it replaces.
type Task struct {
	Mod    models.InstalledMod
	Update models.UpdateAvailable
}

// Outcome is the per-mod result. Critical marks failures that happened after
// the old artifact was already removed; the backup bundle is the recovery
// path for those.
type Outcome struct {
	Name        string
	OldVersion  string
	NewVersion  string
	OldFilename string
	NewFilename string
	Path        string
	Err         error
	Critical    bool
}

func (outcome Outcome) Succeeded() bool {
	return outcome.Err == nil
}

type Executor struct {
	Fs         afero.Fs
	Client     httpclient.Doer
	ModsFolder string
	// Workers bounds the download pool; callers pass the already clamped
	// value (config.ValidateWorkers).
	Workers int
	// Timeout caps each mod's download; zero falls back to
	// httpclient.DefaultDownloadTimeout.
	Timeout time.Duration
	Log     *logger.Logger
}

// Execute runs every task through the update pipeline with a bounded worker
// pool and returns one outcome per task, in task order.
func (executor *Executor) Execute(ctx context.Context, tasks []Task) []Outcome {
	ctx, span := perf.StartSpan(ctx, "app.execute",
		perf.WithAttributes(attribute.Int("tasks", len(tasks))),
	)
	defer span.End()

	outcomes := make([]Outcome, len(tasks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(executor.workerLimit())

	for i := range tasks {
		group.Go(func() error {
			outcomes[i] = executor.updateOne(groupCtx, tasks[i])
			// Errors stay inside the outcome so a failing sibling never
			// cancels the group.
			return nil
		})
	}

	_ = group.Wait()

	failed := 0
	for i := range outcomes {
		if outcomes[i].Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	return outcomes
}

func (executor *Executor) updateOne(ctx context.Context, task Task) Outcome {
	outcome := Outcome{
		Name:        task.Update.Name,
		OldVersion:  task.Update.OldVersion,
		NewVersion:  task.Update.NewVersion,
		OldFilename: task.Mod.Filename,
	}

	tempFile, err := afero.TempFile(executor.Fs, executor.ModsFolder, "vsmu-*.download")
	if err != nil {
		outcome.Err = fmt.Errorf("failed to create temp file: %w", err)
		return outcome
	}
	tempPath := tempFile.Name()
	if err := tempFile.Close(); err != nil {
		outcome.Err = err
		return outcome
	}
	defer func() {
		// The rename install path consumes the temp file; removal of a
		// consumed temp is a no-op.
		if exists, _ := afero.Exists(executor.Fs, tempPath); exists {
			_ = executor.Fs.Remove(tempPath)
		}
	}()

	downloadCtx, cancel := httpclient.WithTimeout(ctx, executor.downloadTimeout())
	defer cancel()

	written, err := httpclient.DownloadFile(downloadCtx, task.Update.DownloadURL, tempPath, executor.Client, executor.Fs)
	if err != nil {
		outcome.Err = err
		executor.warnFailed(outcome)
		return outcome
	}
	if written == 0 {
		outcome.Err = &EmptyDownloadError{URL: task.Update.DownloadURL}
		executor.warnFailed(outcome)
		return outcome
	}

	outcome.NewFilename = executor.newFilename(task)

	if err := executor.removeOld(task.Mod); err != nil {
		outcome.Err = fmt.Errorf("failed to remove old artifact: %w", err)
		executor.warnFailed(outcome)
		return outcome
	}

	installedPath, err := executor.install(task, tempPath, outcome.NewFilename)
	if err != nil {
		// The old artifact is already gone; only the backup bundle has it.
		outcome.Err = err
		outcome.Critical = true
		executor.warnFailed(outcome)
		return outcome
	}

	outcome.Path = installedPath
	if executor.Log != nil {
		executor.Log.Debug(i18n.T("executor.debug.updated", i18n.Tvars{
			Data: &i18n.TData{
				"name":    outcome.Name,
				"version": outcome.NewVersion,
			},
		}))
	}
	return outcome
}

// newFilename derives the on-disk name of the replacement artifact from the
// download URL; directory mods keep their directory name, and a URL that
// yields nothing usable keeps the old filename.
func (executor *Executor) newFilename(task Task) string {
	if task.Mod.Type == models.DIR {
		return task.Mod.Filename
	}
	if name := FilenameFromURL(task.Update.DownloadURL); name != "" {
		return name
	}
	return task.Mod.Filename
}

func (executor *Executor) removeOld(mod models.InstalledMod) error {
	exists, err := afero.Exists(executor.Fs, mod.Path)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if mod.Type == models.DIR {
		return executor.Fs.RemoveAll(mod.Path)
	}
	return executor.Fs.Remove(mod.Path)
}

func (executor *Executor) install(task Task, tempPath string, newFilename string) (string, error) {
	if task.Mod.Type == models.DIR {
		if err := executor.extractZip(tempPath, task.Mod.Path); err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", task.Update.Name, err)
		}
		return task.Mod.Path, nil
	}

	destination := filepath.Join(executor.ModsFolder, newFilename)
	if err := executor.Fs.Rename(tempPath, destination); err != nil {
		return "", fmt.Errorf("failed to install %s: %w", task.Update.Name, err)
	}
	return destination, nil
}

func (executor *Executor) extractZip(archivePath string, destination string) error {
	raw, err := afero.ReadFile(executor.Fs, archivePath)
	if err != nil {
		return err
	}

	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return err
	}

	if err := executor.Fs.MkdirAll(destination, 0755); err != nil {
		return err
	}

	for _, entry := range reader.File {
		target, err := sanitizeArchivePath(destination, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := executor.Fs.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := executor.Fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := executor.writeArchiveEntry(entry, target); err != nil {
			return err
		}
	}

	return nil
}

func (executor *Executor) writeArchiveEntry(entry *zip.File, target string) (err error) {
	source, err := entry.Open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return afero.WriteReader(executor.Fs, target, source)
}

// sanitizeArchivePath rejects entries that would escape the destination
// directory (zip slip).
func sanitizeArchivePath(destination string, name string) (string, error) {
	target := filepath.Join(destination, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destination)+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

// FilenameFromURL extracts the artifact filename from a ModDB download URL.
// The CDN serves files as /download?dl=<filename>&...; older URLs carry the
// filename in the path instead.
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if dl := parsed.Query().Get("dl"); dl != "" {
		return path.Base(dl)
	}

	base := path.Base(parsed.Path)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return base
}

func (executor *Executor) workerLimit() int {
	if executor.Workers < 1 {
		return 1
	}
	return executor.Workers
}

func (executor *Executor) downloadTimeout() time.Duration {
	if executor.Timeout > 0 {
		return executor.Timeout
	}
	return httpclient.DefaultDownloadTimeout
}

func (executor *Executor) warnFailed(outcome Outcome) {
	if executor.Log == nil {
		return
	}
	executor.Log.Warn(i18n.T("executor.warn.failed", i18n.Tvars{
		Data: &i18n.TData{
			"name": outcome.Name,
			"err":  outcome.Err.Error(),
		},
	}))
}

type EmptyDownloadError struct {
	URL string
}

func (emptyDownload *EmptyDownloadError) Error() string {
	return fmt.Sprintf("download of %s produced an empty file", emptyDownload.URL)
}
