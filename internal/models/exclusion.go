package models

// ExclusionRecord remembers why a mod was skipped for the reporting layer.
type ExclusionRecord struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}
