// Package report renders the results of an update run as JSON and HTML
// files next to the mods folder.
package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"github.com/laerinok/vs-mods-updater/internal/executor"
	"github.com/laerinok/vs-mods-updater/internal/models"
	"github.com/spf13/afero"
)

type Summary struct {
	GeneratedAt  string              `json:"generatedAt"`
	GameVersion  string              `json:"gameVersion"`
	Updated      []UpdatedEntry      `json:"updatedMods"`
	Failed       []FailedEntry       `json:"failedMods"`
	Incompatible []IncompatibleEntry `json:"incompatibleMods"`
	Excluded     []ExcludedEntry     `json:"excludedMods"`
}

type UpdatedEntry struct {
	Name       string `json:"name"`
	OldVersion string `json:"oldVersion"`
	NewVersion string `json:"newVersion"`
	Filename   string `json:"filename"`
	Changelog  string `json:"changelog,omitempty"`
}

type FailedEntry struct {
	Name     string `json:"name"`
	Error    string `json:"error"`
	Critical bool   `json:"critical,omitempty"`
}

type IncompatibleEntry struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	GameVersion string `json:"gameVersion"`
}

type ExcludedEntry struct {
	Filename string `json:"filename"`
	Name     string `json:"name,omitempty"`
}

// NewSummary folds the run's results into the export shape. Tasks and
// outcomes pair by index, the order the executor guarantees.
func NewSummary(gameVersion string, generatedAt time.Time, tasks []executor.Task, outcomes []executor.Outcome, incompatible []models.Incompatible, excluded []models.ExclusionRecord) Summary {
	summary := Summary{
		GeneratedAt:  generatedAt.Format(time.RFC3339),
		GameVersion:  gameVersion,
		Updated:      []UpdatedEntry{},
		Failed:       []FailedEntry{},
		Incompatible: []IncompatibleEntry{},
		Excluded:     []ExcludedEntry{},
	}

	for i, outcome := range outcomes {
		if outcome.Err != nil {
			summary.Failed = append(summary.Failed, FailedEntry{
				Name:     outcome.Name,
				Error:    outcome.Err.Error(),
				Critical: outcome.Critical,
			})
			continue
		}

		entry := UpdatedEntry{
			Name:       outcome.Name,
			OldVersion: outcome.OldVersion,
			NewVersion: outcome.NewVersion,
			Filename:   outcome.NewFilename,
		}
		if i < len(tasks) {
			entry.Changelog = tasks[i].Update.Changelog
		}
		summary.Updated = append(summary.Updated, entry)
	}

	for _, mod := range incompatible {
		summary.Incompatible = append(summary.Incompatible, IncompatibleEntry{
			Name:        mod.Name,
			Version:     mod.OldVersion,
			GameVersion: mod.OldVersionGameVersion,
		})
	}

	for _, record := range excluded {
		summary.Excluded = append(summary.Excluded, ExcludedEntry{
			Filename: record.Filename,
			Name:     record.Name,
		})
	}

	return summary
}

// WriteJSON writes the machine-readable export.
func WriteJSON(fs afero.Fs, path string, summary Summary) error {
	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return afero.WriteFile(fs, path, append(encoded, '\n'), 0644)
}

//go:embed report.html.tmpl
var htmlTemplate string

// WriteHTML writes the human-readable export.
func WriteHTML(fs afero.Fs, path string, summary Summary) (err error) {
	parsed, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse report template: %w", err)
	}

	file, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := parsed.Execute(file, summary); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
