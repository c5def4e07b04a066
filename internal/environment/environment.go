// Package environment reads runtime environment configuration.
package environment

import (
	"os"
)

var (
	posthogAPIKeyDefault = "REPL_POSTHOG_API_KEY" // #nosec G101 -- build-time placeholder replaced in release builds.
	appVersionDefault    = "REPL_VERSION"
)

func PosthogAPIKey() string {
	key, present := os.LookupEnv("POSTHOG_API_KEY")
	if present {
		return key
	}

	return posthogAPIKeyDefault
}

// ModDBBaseURL allows tests and self-hosted mirrors to redirect API traffic.
func ModDBBaseURL() string {
	url, present := os.LookupEnv("VSMU_MODDB_URL")
	if present {
		return url
	}

	return "https://mods.vintagestory.at"
}

func TelemetryDisabled() bool {
	_, present := os.LookupEnv("VSMU_NO_TELEMETRY")
	return present
}

func AppVersion() string {
	return appVersionDefault
}
