package models

// UpdatePlan is built once per run. Both lists are sorted case-insensitively
// by mod name so repeated runs over the same input produce identical output.
type UpdatePlan struct {
	ModsToUpdate     []UpdateAvailable `json:"modsToUpdate"`
	IncompatibleMods []Incompatible    `json:"incompatibleMods"`
}
