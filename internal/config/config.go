package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/laerinok/vs-mods-updater/internal/perf"
	"github.com/spf13/afero"
)

// Config is the persisted vsmu.json document.
type Config struct {
	GameVersion    string `json:"gameVersion"`
	ModsFolder     string `json:"modsFolder"`
	Exclusions     string `json:"exclusions,omitempty"`
	MaxWorkers     int    `json:"maxWorkers"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	BackupFolder   string `json:"backupFolder"`
	MaxBackups     int    `json:"maxBackups"`
}

const (
	DefaultTimeoutSeconds = 10
	DefaultMaxBackups     = 3
	DefaultBackupFolder   = "backup_mods"
)

func ReadConfig(ctx context.Context, fs afero.Fs, meta Metadata) (Config, error) {
	_, span := perf.StartSpan(ctx, "io.config.read")
	defer span.End()

	exists, _ := afero.Exists(fs, meta.ConfigPath)
	if !exists {
		return Config{}, &FileNotFoundError{Path: meta.ConfigPath}
	}

	data, err := afero.ReadFile(fs, meta.ConfigPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, &FileInvalidError{Err: err}
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func WriteConfig(ctx context.Context, fs afero.Fs, meta Metadata, cfg Config) error {
	_, span := perf.StartSpan(ctx, "io.config.write")
	defer span.End()

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return afero.WriteFile(fs, meta.ConfigPath, data, 0644)
}

func InitConfig(ctx context.Context, fs afero.Fs, meta Metadata, gameVersion string) (Config, error) {
	_, span := perf.StartSpan(ctx, "io.config.init")
	defer span.End()

	cfg := Config{
		GameVersion:    gameVersion,
		ModsFolder:     "Mods",
		MaxWorkers:     DefaultWorkerLimit,
		TimeoutSeconds: DefaultTimeoutSeconds,
		BackupFolder:   DefaultBackupFolder,
		MaxBackups:     DefaultMaxBackups,
	}

	if err := WriteConfig(ctx, fs, meta, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultMaxBackups
	}
	if strings.TrimSpace(cfg.BackupFolder) == "" {
		cfg.BackupFolder = DefaultBackupFolder
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultWorkerLimit
	}
}

// ExclusionList splits the comma-separated exclusion value, trimming entries
// and dropping empties.
func (cfg Config) ExclusionList() []string {
	if strings.TrimSpace(cfg.Exclusions) == "" {
		return nil
	}

	parts := strings.Split(cfg.Exclusions, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
