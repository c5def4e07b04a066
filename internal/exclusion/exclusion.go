// Package exclusion skips mods the user listed in the configuration.
package exclusion

import (
	"sort"
	"strings"
	"sync"

	"github.com/laerinok/vs-mods-updater/internal/i18n"
	"github.com/laerinok/vs-mods-updater/internal/models"
)

// Filter matches installed filenames against the user's exclusion set.
// Matching is exact on the filename: the user excludes one specific installed
// file, not every version of a mod.
type Filter struct {
	mu       sync.Mutex
	excluded map[string]struct{}
	recorded map[string]struct{}
	records  []models.ExclusionRecord
}

// NewFilter builds a filter from the already-split exclusion list
// (see config.Config.ExclusionList).
func NewFilter(filenames []string) *Filter {
	excluded := make(map[string]struct{}, len(filenames))
	for _, filename := range filenames {
		trimmed := strings.TrimSpace(filename)
		if trimmed == "" {
			continue
		}
		excluded[trimmed] = struct{}{}
	}

	return &Filter{
		excluded: excluded,
		recorded: make(map[string]struct{}),
	}
}

// IsExcluded reports whether the filename is excluded and, on the first
// positive match for a given filename, appends one ExclusionRecord.
func (filter *Filter) IsExcluded(filename string, name string) bool {
	if _, ok := filter.excluded[filename]; !ok {
		return false
	}

	filter.mu.Lock()
	defer filter.mu.Unlock()

	if _, seen := filter.recorded[filename]; !seen {
		filter.recorded[filename] = struct{}{}
		filter.records = append(filter.records, models.ExclusionRecord{
			Filename: filename,
			Name:     name,
			Reason:   i18n.T("exclusion.reason.user_config"),
		})
	}

	return true
}

// Records returns a copy of the accumulated records, sorted by filename for
// stable report output.
func (filter *Filter) Records() []models.ExclusionRecord {
	filter.mu.Lock()
	defer filter.mu.Unlock()

	out := make([]models.ExclusionRecord, len(filter.records))
	copy(out, filter.records)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Filename < out[j].Filename
	})
	return out
}
