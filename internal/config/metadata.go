package config

import (
	"path/filepath"
)

// Metadata locates the configuration file and everything addressed relative
// to it.
type Metadata struct {
	ConfigPath string
}

func NewMetadata(configPath string) Metadata {
	if configPath == "" {
		configPath = "vsmu.json"
	}
	return Metadata{ConfigPath: configPath}
}

func (meta Metadata) baseDir() string {
	return filepath.Dir(meta.ConfigPath)
}

// ModsFolderPath resolves the configured mods folder; relative values are
// anchored at the config file's directory.
func (meta Metadata) ModsFolderPath(cfg Config) string {
	if filepath.IsAbs(cfg.ModsFolder) {
		return cfg.ModsFolder
	}
	return filepath.Join(meta.baseDir(), cfg.ModsFolder)
}

func (meta Metadata) BackupFolderPath(cfg Config) string {
	if filepath.IsAbs(cfg.BackupFolder) {
		return cfg.BackupFolder
	}
	return filepath.Join(meta.baseDir(), cfg.BackupFolder)
}
