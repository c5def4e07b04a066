// Package classifier decides, per installed mod, whether it is up to date,
// has an update available, or is incompatible with the target game version.
package classifier

import (
	"github.com/laerinok/vs-mods-updater/internal/changelog"
	"github.com/laerinok/vs-mods-updater/internal/i18n"
	"github.com/laerinok/vs-mods-updater/internal/logger"
	"github.com/laerinok/vs-mods-updater/internal/models"
	"github.com/laerinok/vs-mods-updater/internal/semver"
)

type Classifier struct {
	// GameVersion is the user's configured target game version.
	GameVersion string
	// Convert renders the remote changelog HTML; defaults to
	// changelog.ToMarkdown when nil.
	Convert changelog.Converter
	// Log receives skip-with-warning notices for unparseable versions.
	Log *logger.Logger
}

// Classify implements the per-mod decision. It never returns an error:
// anything that cannot be proven is treated as UpToDate so a single odd mod
// can never abort the run.
func (classifier *Classifier) Classify(mod models.InstalledMod, forceUpdate bool) models.Classification {
	if forceUpdate {
		return classifier.forced(mod)
	}

	if mod.Remote != nil && mod.Remote.LatestVersionForGame != nil {
		return classifier.compareVersions(mod, *mod.Remote.LatestVersionForGame)
	}

	return classifier.withoutCompatibleRelease(mod)
}

// forced re-installs the currently installed version: old and new versions
// are identical, the download URL is the one the installed artifact came
// from, and there is no changelog to show.
func (classifier *Classifier) forced(mod models.InstalledMod) models.Classification {
	downloadURL := ""
	if mod.Remote != nil {
		downloadURL = mod.Remote.InstalledVersionDownloadURL
	}

	return models.UpdateAvailable{
		Name:        mod.Name,
		OldVersion:  mod.LocalVersion,
		NewVersion:  mod.LocalVersion,
		Changelog:   "",
		Filename:    mod.Filename,
		DownloadURL: downloadURL,
	}
}

func (classifier *Classifier) compareVersions(mod models.InstalledMod, bestRemote string) models.Classification {
	relation, err := semver.Compare(mod.LocalVersion, bestRemote)
	if err != nil {
		classifier.warnInvalidVersion(mod, err)
		return models.UpToDate{}
	}

	if relation == semver.Identical {
		return models.UpToDate{}
	}

	// Behind and Ahead both produce an update offer: ahead means the user
	// runs a version the ModDB no longer serves for this game version, and
	// the compatible release is the one on offer.
	return models.UpdateAvailable{
		Name:        mod.Name,
		OldVersion:  mod.LocalVersion,
		NewVersion:  bestRemote,
		Changelog:   classifier.convert(mod.Remote.RawChangelog),
		Filename:    mod.Filename,
		DownloadURL: mod.Remote.LatestVersionDownloadURL,
	}
}

// withoutCompatibleRelease handles mods for which the fetch step found no
// release compatible with the target game version. That alone is not
// evidence of incompatibility: only a mod whose own declared game-version
// family differs from the target's is flagged.
func (classifier *Classifier) withoutCompatibleRelease(mod models.InstalledMod) models.Classification {
	if mod.GameVersionAPI == nil || *mod.GameVersionAPI == "" {
		return models.UpToDate{}
	}

	sameFamily, err := semver.SameFamily(*mod.GameVersionAPI, classifier.GameVersion)
	if err != nil {
		classifier.warnInvalidVersion(mod, err)
		return models.UpToDate{}
	}

	if sameFamily {
		return models.UpToDate{}
	}

	return models.Incompatible{
		Name:                  mod.Name,
		OldVersion:            mod.LocalVersion,
		OldVersionGameVersion: *mod.GameVersionAPI,
	}
}

func (classifier *Classifier) convert(rawHTML string) string {
	convert := classifier.Convert
	if convert == nil {
		convert = changelog.ToMarkdown
	}
	return convert(rawHTML)
}

func (classifier *Classifier) warnInvalidVersion(mod models.InstalledMod, err error) {
	if classifier.Log == nil {
		return
	}
	classifier.Log.Warn(i18n.T("classifier.warn.invalid_version", i18n.Tvars{
		Data: &i18n.TData{
			"name": mod.Name,
			"err":  err.Error(),
		},
	}))
}
