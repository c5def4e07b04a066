package models

// InstalledMod is a mod found in the mods folder. The scanner owns creation;
// everything downstream treats it as read-only except for the filename/path
// rewrite after a successful install.
type InstalledMod struct {
	ModID          string  `json:"modId"`
	Name           string  `json:"name"`
	Filename       string  `json:"filename"`
	LocalVersion   string  `json:"localVersion"`
	Type           ModType `json:"type"`
	Path           string  `json:"path"`
	Side           string  `json:"side,omitempty"`
	GameVersionAPI *string `json:"gameVersionApi,omitempty"`

	Remote *RemoteAvailability `json:"remote,omitempty"`
}

// RemoteAvailability is attached by the ModDB fetch step.
type RemoteAvailability struct {
	AssetID                     string  `json:"assetId"`
	LatestVersionForGame        *string `json:"latestVersionForGameVersion,omitempty"`
	LatestVersionDownloadURL    string  `json:"latestVersionDownloadUrl,omitempty"`
	InstalledVersionDownloadURL string  `json:"installedVersionDownloadUrl,omitempty"`
	RawChangelog                string  `json:"rawChangelog,omitempty"`
}
