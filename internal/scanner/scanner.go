// Package scanner discovers installed mods in the mods folder and extracts
// their identity and version from the artifact itself.
package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/laerinok/vs-mods-updater/internal/i18n"
	"github.com/laerinok/vs-mods-updater/internal/logger"
	"github.com/laerinok/vs-mods-updater/internal/models"
	"github.com/laerinok/vs-mods-updater/internal/perf"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

type Scanner struct {
	Fs  afero.Fs
	Log *logger.Logger
}

// Scan reads the top level of the mods folder. Zip artifacts carry a
// modinfo.json inside the archive, code mods declare themselves in .cs
// attributes, and unpacked mods are directories with a modinfo.json file.
// Artifacts that cannot be identified are logged and skipped; they never
// abort the scan.
func (scanner *Scanner) Scan(ctx context.Context, modsFolder string) ([]models.InstalledMod, error) {
	_, span := perf.StartSpan(ctx, "app.scan",
		perf.WithAttributes(attribute.String("folder", modsFolder)),
	)
	defer span.End()

	entries, err := afero.ReadDir(scanner.Fs, modsFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to read mods folder: %w", err)
	}

	mods := make([]models.InstalledMod, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(modsFolder, entry.Name())

		var mod *models.InstalledMod
		switch {
		case entry.IsDir():
			mod = scanner.scanDirectory(path, entry.Name())
		case strings.EqualFold(filepath.Ext(entry.Name()), ".zip"):
			mod = scanner.scanZip(path, entry.Name())
		case strings.EqualFold(filepath.Ext(entry.Name()), ".cs"):
			mod = scanner.scanCodeFile(path, entry.Name())
		default:
			continue
		}

		if mod != nil {
			mods = append(mods, *mod)
		}
	}

	sort.SliceStable(mods, func(i, j int) bool {
		return strings.ToLower(mods[i].Name) < strings.ToLower(mods[j].Name)
	})

	span.SetAttributes(attribute.Int("mods", len(mods)))
	return mods, nil
}

func (scanner *Scanner) scanZip(path string, filename string) *models.InstalledMod {
	raw, err := afero.ReadFile(scanner.Fs, path)
	if err != nil {
		scanner.warnSkipped(filename, err)
		return nil
	}

	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		scanner.warnSkipped(filename, err)
		return nil
	}

	entry := findModinfoEntry(reader)
	if entry == nil {
		scanner.warnSkipped(filename, fmt.Errorf("no modinfo.json in archive"))
		return nil
	}

	info, err := readModinfoEntry(entry)
	if err != nil {
		scanner.warnSkipped(filename, err)
		return nil
	}

	return scanner.fromModinfo(info, filename, path, models.ZIP)
}

func (scanner *Scanner) scanDirectory(path string, dirname string) *models.InstalledMod {
	raw, err := afero.ReadFile(scanner.Fs, filepath.Join(path, "modinfo.json"))
	if err != nil {
		// Not every directory in the mods folder is a mod.
		return nil
	}

	info, err := parseModinfo(raw)
	if err != nil {
		scanner.warnSkipped(dirname, err)
		return nil
	}

	return scanner.fromModinfo(info, dirname, path, models.DIR)
}

var (
	csVersionPattern   = regexp.MustCompile(`Version\s*=\s*"([^"]+)"`)
	csSidePattern      = regexp.MustCompile(`Side\s*=\s*"([^"]+)"`)
	csNamespacePattern = regexp.MustCompile(`namespace\s+([A-Za-z0-9_]+)`)
)

// scanCodeFile extracts the ModInfo attribute values a single-file code mod
// declares in its source.
func (scanner *Scanner) scanCodeFile(path string, filename string) *models.InstalledMod {
	raw, err := afero.ReadFile(scanner.Fs, path)
	if err != nil {
		scanner.warnSkipped(filename, err)
		return nil
	}
	content := string(raw)

	version := firstGroup(csVersionPattern, content)
	namespace := firstGroup(csNamespacePattern, content)
	if version == "" || namespace == "" {
		scanner.warnSkipped(filename, fmt.Errorf("missing Version or namespace declaration"))
		return nil
	}

	return &models.InstalledMod{
		ModID:        strings.ReplaceAll(strings.ToLower(namespace), " ", ""),
		Name:         namespace,
		Filename:     filename,
		LocalVersion: version,
		Type:         models.CS,
		Path:         path,
		Side:         firstGroup(csSidePattern, content),
	}
}

func (scanner *Scanner) fromModinfo(info modinfo, filename string, path string, modType models.ModType) *models.InstalledMod {
	if info.ModID == "" || info.Name == "" || info.Version == "" {
		scanner.warnSkipped(filename, fmt.Errorf("modinfo.json is missing modid, name or version"))
		return nil
	}

	return &models.InstalledMod{
		ModID:        info.ModID,
		Name:         info.Name,
		Filename:     filename,
		LocalVersion: info.Version,
		Type:         modType,
		Path:         path,
		Side:         info.Side,
	}
}

type modinfo struct {
	ModID   string
	Name    string
	Version string
	Side    string
}

func findModinfoEntry(reader *zip.Reader) *zip.File {
	var nested *zip.File
	for _, entry := range reader.File {
		if entry.Name == "modinfo.json" {
			return entry
		}
		if nested == nil && strings.HasSuffix(entry.Name, "/modinfo.json") {
			nested = entry
		}
	}
	return nested
}

func readModinfoEntry(entry *zip.File) (info modinfo, err error) {
	source, err := entry.Open()
	if err != nil {
		return modinfo{}, err
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	raw, err := io.ReadAll(source)
	if err != nil {
		return modinfo{}, err
	}
	return parseModinfo(raw)
}

var (
	lineCommentPattern   = regexp.MustCompile(`(?m)^\s*//[^\n]*$`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// parseModinfo tolerates the quirks real modinfo.json files ship with: a
// UTF-8 BOM, full-line // comments, trailing commas, and keys in any casing.
func parseModinfo(raw []byte) (modinfo, error) {
	cleaned := bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	cleaned = lineCommentPattern.ReplaceAll(cleaned, nil)
	cleaned = trailingCommaPattern.ReplaceAll(cleaned, []byte("$1"))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(cleaned, &fields); err != nil {
		return modinfo{}, fmt.Errorf("failed to parse modinfo.json: %w", err)
	}

	lowered := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		lowered[strings.ToLower(key)] = value
	}

	return modinfo{
		ModID:   stringField(lowered, "modid"),
		Name:    stringField(lowered, "name"),
		Version: stringField(lowered, "version"),
		Side:    stringField(lowered, "side"),
	}, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

func firstGroup(pattern *regexp.Regexp, content string) string {
	match := pattern.FindStringSubmatch(content)
	if match == nil {
		return ""
	}
	return match[1]
}

func (scanner *Scanner) warnSkipped(filename string, err error) {
	if scanner.Log == nil {
		return
	}
	scanner.Log.Warn(i18n.T("scanner.warn.skipped", i18n.Tvars{
		Data: &i18n.TData{
			"filename": filename,
			"err":      err.Error(),
		},
	}))
}
