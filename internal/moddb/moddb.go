// Package moddb talks to the Vintage Story mod database API.
package moddb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/laerinok/vs-mods-updater/internal/environment"
	"github.com/laerinok/vs-mods-updater/internal/httpclient"
	"github.com/laerinok/vs-mods-updater/internal/i18n"
	"github.com/laerinok/vs-mods-updater/internal/logger"
	"github.com/laerinok/vs-mods-updater/internal/models"
	"github.com/laerinok/vs-mods-updater/internal/perf"
	"github.com/laerinok/vs-mods-updater/internal/semver"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type Client struct {
	BaseURL   string
	HTTP      httpclient.Doer
	UserAgent string
	Log       *logger.Logger
	// Workers bounds the metadata fetch pool; callers pass the already
	// clamped value (config.ValidateWorkers).
	Workers int
	// Timeout caps each metadata request; zero falls back to
	// httpclient.DefaultMetadataTimeout.
	Timeout time.Duration
}

func NewClient(httpClient httpclient.Doer, log *logger.Logger, workers int, timeout time.Duration) *Client {
	return &Client{
		BaseURL:   environment.ModDBBaseURL(),
		HTTP:      httpClient,
		UserAgent: "vs-mods-updater/" + environment.AppVersion(),
		Log:       log,
		Workers:   workers,
		Timeout:   timeout,
	}
}

// ModInfo is the mod database's record for one mod.
type ModInfo struct {
	AssetID  string
	Name     string
	Side     string
	Releases []Release
}

type Release struct {
	ModVersion string
	MainFile   string
	Changelog  string
	Created    string
	Tags       []string
}

// NotListedError marks mods the mod database does not know about, typically
// local or hand-installed mods.
type NotListedError struct {
	ModID string
}

func (notListed *NotListedError) Error() string {
	return fmt.Sprintf("mod %s is not listed on the mod database", notListed.ModID)
}

// FetchAvailability looks up every mod on the mod database and attaches the
// remote availability snapshot used by classification. Mods the database does
// not know, and mods whose lookup fails, keep a nil Remote; a lookup failure
// for one mod never affects the others.
func (client *Client) FetchAvailability(ctx context.Context, gameVersion string, mods []models.InstalledMod) ([]models.InstalledMod, error) {
	ctx, span := perf.StartSpan(ctx, "net.moddb.availability",
		perf.WithAttributes(
			attribute.Int("mods", len(mods)),
			attribute.String("game_version", gameVersion),
		),
	)
	defer span.End()

	annotated := make([]models.InstalledMod, len(mods))
	copy(annotated, mods)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(client.workerLimit())

	for i := range annotated {
		group.Go(func() error {
			client.annotate(groupCtx, &annotated[i], gameVersion)
			return nil
		})
	}

	_ = group.Wait()
	return annotated, nil
}

func (client *Client) annotate(ctx context.Context, mod *models.InstalledMod, gameVersion string) {
	info, err := client.ModInfo(ctx, mod.ModID)
	if err != nil {
		var notListed *NotListedError
		if errors.As(err, &notListed) {
			client.info("moddb.info.not_listed", mod.Name)
		} else {
			client.warnFetchFailed(mod.Name, err)
		}
		return
	}

	if info.Side != "" {
		mod.Side = info.Side
	}

	remote := &models.RemoteAvailability{AssetID: info.AssetID}

	if best := bestCompatibleRelease(info.Releases, gameVersion); best != nil {
		remote.LatestVersionForGame = &best.ModVersion
		remote.LatestVersionDownloadURL = encodeMainFile(best.MainFile)
		remote.RawChangelog = best.Changelog
	}

	if installed := releaseForVersion(info.Releases, mod.LocalVersion); installed != nil {
		remote.InstalledVersionDownloadURL = encodeMainFile(installed.MainFile)
		if tag := highestTag(installed.Tags); tag != "" {
			mod.GameVersionAPI = &tag
		}
	}

	mod.Remote = remote
}

// ModInfo fetches one mod's database record.
func (client *Client) ModInfo(ctx context.Context, modID string) (*ModInfo, error) {
	var payload struct {
		StatusCode string `json:"statuscode"`
		Mod        struct {
			AssetID  json.Number  `json:"assetid"`
			Name     string       `json:"name"`
			Side     string       `json:"side"`
			Releases []apiRelease `json:"releases"`
		} `json:"mod"`
	}

	if err := client.getJSON(ctx, "/api/mod/"+url.PathEscape(modID), &payload); err != nil {
		return nil, err
	}
	if payload.StatusCode == "404" {
		return nil, &NotListedError{ModID: modID}
	}
	if payload.StatusCode != "200" {
		return nil, fmt.Errorf("mod database returned status %s for mod %s", payload.StatusCode, modID)
	}

	info := &ModInfo{
		AssetID:  payload.Mod.AssetID.String(),
		Name:     payload.Mod.Name,
		Side:     payload.Mod.Side,
		Releases: make([]Release, 0, len(payload.Mod.Releases)),
	}
	for _, release := range payload.Mod.Releases {
		info.Releases = append(info.Releases, Release(release))
	}
	return info, nil
}

type apiRelease struct {
	ModVersion string   `json:"modversion"`
	MainFile   string   `json:"mainfile"`
	Changelog  string   `json:"changelog"`
	Created    string   `json:"created"`
	Tags       []string `json:"tags"`
}

// GameVersions returns the game versions the mod database knows, newest
// first as served.
func (client *Client) GameVersions(ctx context.Context) ([]string, error) {
	var payload struct {
		StatusCode   string `json:"statuscode"`
		GameVersions []struct {
			Name string `json:"name"`
		} `json:"gameversions"`
	}

	if err := client.getJSON(ctx, "/api/gameversions", &payload); err != nil {
		return nil, err
	}
	if payload.StatusCode != "200" {
		return nil, fmt.Errorf("game version listing returned status %s", payload.StatusCode)
	}

	versions := make([]string, 0, len(payload.GameVersions))
	for _, version := range payload.GameVersions {
		versions = append(versions, version.Name)
	}
	return versions, nil
}

// LatestStableGameVersion resolves the newest non-prerelease game version,
// for configs that do not pin one.
func (client *Client) LatestStableGameVersion(ctx context.Context) (string, error) {
	versions, err := client.GameVersions(ctx)
	if err != nil {
		return "", err
	}

	latest := ""
	for _, candidate := range versions {
		prerelease, parseErr := semver.IsPrerelease(candidate)
		if parseErr != nil || prerelease {
			continue
		}
		if latest == "" {
			latest = candidate
			continue
		}
		relation, cmpErr := semver.Compare(candidate, latest)
		if cmpErr == nil && relation == semver.Ahead {
			latest = candidate
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no stable game version in mod database listing")
	}
	return latest, nil
}

func (client *Client) getJSON(ctx context.Context, path string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, client.metadataTimeout())
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(client.BaseURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build mod database request: %w", err)
	}
	request.Header.Set("User-Agent", client.UserAgent)
	request.Header.Set("Accept", "application/json")

	response, err := client.HTTP.Do(request)
	if err != nil {
		return httpclient.WrapTimeoutError(fmt.Errorf("mod database request failed: %w", err))
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("mod database returned HTTP %d for %s", response.StatusCode, path)
	}

	if err := json.NewDecoder(response.Body).Decode(payload); err != nil {
		return fmt.Errorf("failed to decode mod database response: %w", err)
	}
	return nil
}

// bestCompatibleRelease picks the newest release carrying at least one game
// tag in the target's major.minor family that is not newer than the target.
func bestCompatibleRelease(releases []Release, gameVersion string) *Release {
	compatible := make([]Release, 0, len(releases))
	for _, release := range releases {
		if releaseIsCompatible(release, gameVersion) {
			compatible = append(compatible, release)
		}
	}
	if len(compatible) == 0 {
		return nil
	}

	sort.SliceStable(compatible, func(i, j int) bool {
		relation, err := semver.Compare(compatible[i].ModVersion, compatible[j].ModVersion)
		if err == nil && relation != semver.Identical {
			return relation == semver.Ahead
		}
		return compatible[i].Created > compatible[j].Created
	})
	return &compatible[0]
}

func releaseIsCompatible(release Release, gameVersion string) bool {
	for _, tag := range release.Tags {
		if tag == "" {
			continue
		}
		sameFamily, err := semver.SameFamily(tag, gameVersion)
		if err != nil || !sameFamily {
			continue
		}
		relation, err := semver.Compare(tag, gameVersion)
		if err == nil && relation != semver.Ahead {
			return true
		}
	}
	return false
}

func releaseForVersion(releases []Release, localVersion string) *Release {
	for i := range releases {
		relation, err := semver.Compare(releases[i].ModVersion, localVersion)
		if err == nil && relation == semver.Identical {
			return &releases[i]
		}
	}
	return nil
}

func highestTag(tags []string) string {
	highest := ""
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if highest == "" {
			highest = tag
			continue
		}
		relation, err := semver.Compare(tag, highest)
		if err == nil && relation == semver.Ahead {
			highest = tag
		}
	}
	return highest
}

// encodeMainFile normalizes download URLs the database serves with raw
// spaces or unencoded characters.
func encodeMainFile(mainFile string) string {
	parsed, err := url.Parse(mainFile)
	if err != nil {
		return mainFile
	}
	return parsed.String()
}

func (client *Client) workerLimit() int {
	if client.Workers < 1 {
		return 1
	}
	return client.Workers
}

func (client *Client) metadataTimeout() time.Duration {
	if client.Timeout > 0 {
		return client.Timeout
	}
	return httpclient.DefaultMetadataTimeout
}

func (client *Client) info(key string, name string) {
	if client.Log == nil {
		return
	}
	client.Log.Debug(i18n.T(key, i18n.Tvars{
		Data: &i18n.TData{"name": name},
	}))
}

func (client *Client) warnFetchFailed(name string, err error) {
	if client.Log == nil {
		return
	}
	client.Log.Warn(i18n.T("moddb.warn.fetch_failed", i18n.Tvars{
		Data: &i18n.TData{
			"name": name,
			"err":  err.Error(),
		},
	}))
}
