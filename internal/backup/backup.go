// Package backup archives mod artifacts into timestamped bundles before the
// executor mutates anything. There is no rollback downstream; the bundle is
// the only recovery path, so a run's backup must complete for the whole
// batch before the first artifact is touched.
package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/laerinok/vs-mods-updater/internal/i18n"
	"github.com/laerinok/vs-mods-updater/internal/logger"
	"github.com/laerinok/vs-mods-updater/internal/models"
	"github.com/laerinok/vs-mods-updater/internal/perf"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

const bundlePrefix = "backup_"

type Manager struct {
	Fs         afero.Fs
	Folder     string
	ModsFolder string
	MaxBackups int
	Log        *logger.Logger

	// Now is overridable for deterministic bundle names in tests.
	Now func() time.Time
}

// Backup writes one zip bundle containing the current bytes of every given
// mod, then prunes old bundles past the retention count. Missing artifact
// paths are logged and skipped; a run with some already-deleted mods still
// backs up the rest.
func (manager *Manager) Backup(ctx context.Context, mods []models.InstalledMod) (string, error) {
	_, span := perf.StartSpan(ctx, "app.backup",
		perf.WithAttributes(attribute.Int("mods", len(mods))),
	)
	defer span.End()

	if err := manager.Fs.MkdirAll(manager.Folder, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup folder: %w", err)
	}

	bundlePath := filepath.Join(manager.Folder, fmt.Sprintf("%s%s.zip", bundlePrefix, manager.timestamp()))

	if err := manager.writeBundle(bundlePath, mods); err != nil {
		return "", err
	}

	// The bundle is already intact at this point; a retention failure must
	// not abort the batch it was written for.
	if pruneErr := manager.prune(); pruneErr != nil {
		manager.warnPruneFailed(pruneErr)
	}

	span.SetAttributes(attribute.String("bundle", bundlePath))
	return bundlePath, nil
}

func (manager *Manager) writeBundle(bundlePath string, mods []models.InstalledMod) (err error) {
	bundle, err := manager.Fs.Create(bundlePath)
	if err != nil {
		return fmt.Errorf("failed to create backup bundle: %w", err)
	}
	defer func() {
		if closeErr := bundle.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	zipWriter := zip.NewWriter(bundle)
	defer func() {
		if closeErr := zipWriter.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, mod := range mods {
		exists, statErr := afero.Exists(manager.Fs, mod.Path)
		if statErr != nil {
			return statErr
		}
		if !exists {
			manager.warnMissing(mod)
			continue
		}

		switch mod.Type {
		case models.DIR:
			if dirErr := manager.addDirectory(zipWriter, mod.Path); dirErr != nil {
				return dirErr
			}
		default:
			if fileErr := manager.addFile(zipWriter, mod.Path, filepath.Base(mod.Path)); fileErr != nil {
				return fileErr
			}
		}
	}

	return nil
}

// addDirectory stores every file under dir with a path relative to the mods
// root, so extracting the bundle into the mods folder restores the original
// layout without collisions.
func (manager *Manager) addDirectory(zipWriter *zip.Writer, dir string) error {
	root := filepath.Dir(dir)
	if manager.ModsFolder != "" {
		root = manager.ModsFolder
	}

	return afero.Walk(manager.Fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		arcname, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		return manager.addFile(zipWriter, path, filepath.ToSlash(arcname))
	})
}

func (manager *Manager) addFile(zipWriter *zip.Writer, path string, arcname string) (err error) {
	file, err := manager.Fs.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	entry, err := zipWriter.Create(arcname)
	if err != nil {
		return err
	}

	_, err = io.Copy(entry, file)
	return err
}

// prune deletes the oldest bundles (by mtime) beyond MaxBackups. MaxBackups
// of zero or below keeps everything.
func (manager *Manager) prune() error {
	if manager.MaxBackups <= 0 {
		return nil
	}

	entries, err := afero.ReadDir(manager.Fs, manager.Folder)
	if err != nil {
		return err
	}

	bundles := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), bundlePrefix) && strings.HasSuffix(entry.Name(), ".zip") {
			bundles = append(bundles, entry)
		}
	}

	if len(bundles) <= manager.MaxBackups {
		return nil
	}

	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].ModTime().After(bundles[j].ModTime())
	})

	for _, stale := range bundles[manager.MaxBackups:] {
		stalePath := filepath.Join(manager.Folder, stale.Name())
		if removeErr := manager.Fs.Remove(stalePath); removeErr != nil {
			return removeErr
		}
		if manager.Log != nil {
			manager.Log.Debug(i18n.T("backup.debug.pruned", i18n.Tvars{
				Data: &i18n.TData{"path": stalePath},
			}))
		}
	}

	return nil
}

func (manager *Manager) timestamp() string {
	now := time.Now
	if manager.Now != nil {
		now = manager.Now
	}
	return now().Format("20060102150405")
}

func (manager *Manager) warnPruneFailed(err error) {
	if manager.Log == nil {
		return
	}
	manager.Log.Warn(i18n.T("backup.warn.prune_failed", i18n.Tvars{
		Data: &i18n.TData{"err": err.Error()},
	}))
}

func (manager *Manager) warnMissing(mod models.InstalledMod) {
	if manager.Log == nil {
		return
	}
	manager.Log.Warn(i18n.T("backup.warn.missing_path", i18n.Tvars{
		Data: &i18n.TData{
			"name": mod.Name,
			"path": mod.Path,
		},
	}))
}
