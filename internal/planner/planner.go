// Package planner reconciles the installed mod set against the remote
// availability data and produces the update plan for a run.
package planner

import (
	"context"
	"sort"
	"strings"

	"github.com/laerinok/vs-mods-updater/internal/classifier"
	"github.com/laerinok/vs-mods-updater/internal/exclusion"
	"github.com/laerinok/vs-mods-updater/internal/models"
	"github.com/laerinok/vs-mods-updater/internal/perf"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type Planner struct {
	Classifier *classifier.Classifier
	Exclusions *exclusion.Filter
	// Workers bounds the classification pool; callers pass the already
	// clamped value (config.ValidateWorkers).
	Workers int
}

// Plan filters exclusions, classifies every remaining mod concurrently and
// aggregates the results. Classification of one mod never blocks on or sees
// another's outcome; the only shared state is the exclusion record list,
// which is guarded inside the filter.
func (planner *Planner) Plan(ctx context.Context, installed []models.InstalledMod, forceUpdate bool) (models.UpdatePlan, error) {
	ctx, span := perf.StartSpan(ctx, "app.plan",
		perf.WithAttributes(
			attribute.Int("installed", len(installed)),
			attribute.Bool("force_update", forceUpdate),
		),
	)
	defer span.End()

	candidates := make([]models.InstalledMod, 0, len(installed))
	for _, mod := range installed {
		if planner.Exclusions != nil && planner.Exclusions.IsExcluded(mod.Filename, mod.Name) {
			continue
		}
		candidates = append(candidates, mod)
	}

	results := make([]models.Classification, len(candidates))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(planner.workerLimit())

	for i := range candidates {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			results[i] = planner.Classifier.Classify(candidates[i], forceUpdate)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return models.UpdatePlan{}, err
	}

	plan := aggregate(results)
	span.SetAttributes(
		attribute.Int("mods_to_update", len(plan.ModsToUpdate)),
		attribute.Int("incompatible", len(plan.IncompatibleMods)),
	)
	return plan, nil
}

func (planner *Planner) workerLimit() int {
	if planner.Workers < 1 {
		return 1
	}
	return planner.Workers
}

func aggregate(results []models.Classification) models.UpdatePlan {
	var plan models.UpdatePlan

	for _, result := range results {
		switch classified := result.(type) {
		case models.UpdateAvailable:
			plan.ModsToUpdate = append(plan.ModsToUpdate, classified)
		case models.Incompatible:
			plan.IncompatibleMods = append(plan.IncompatibleMods, classified)
		case models.UpToDate:
			// dropped
		}
	}

	sortByName(plan.ModsToUpdate, func(m models.UpdateAvailable) string { return m.Name })
	sortByName(plan.IncompatibleMods, func(m models.Incompatible) string { return m.Name })
	return plan
}

// sortByName orders case-insensitively so repeated runs over the same mod
// set produce byte-identical reports.
func sortByName[T any](items []T, name func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(name(items[i])) < strings.ToLower(name(items[j]))
	})
}
