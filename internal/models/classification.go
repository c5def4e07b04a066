package models

// Classification is the per-mod decision of the classifier. It is a closed
// set: UpToDate, UpdateAvailable or Incompatible. Callers are expected to
// switch over all three.
type Classification interface {
	classification()
}

type UpToDate struct{}

// UpdateAvailable carries everything the executor and the reports need to
// replace the installed artifact.
type UpdateAvailable struct {
	Name        string
	OldVersion  string
	NewVersion  string
	Changelog   string
	Filename    string
	DownloadURL string
}

// Incompatible marks a mod with no compatible remote release whose own
// declared game version belongs to a different family than the target.
type Incompatible struct {
	Name                  string
	OldVersion            string
	OldVersionGameVersion string
}

func (UpToDate) classification()        {}
func (UpdateAvailable) classification() {}
func (Incompatible) classification()    {}
