// Package telemetry reports anonymous usage events. Reporting is best
// effort: failures are swallowed and the VSMU_NO_TELEMETRY environment
// variable disables it entirely.
package telemetry

import (
	"io"
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/laerinok/vs-mods-updater/internal/config"
	"github.com/laerinok/vs-mods-updater/internal/environment"
	"github.com/posthog/posthog-go"
)

type Client interface {
	io.Closer
	Enqueue(posthog.Message) error
}

var singleClient Client
var machineID string

// RunTelemetry describes one finished command invocation.
type RunTelemetry struct {
	Command string                 `json:"command"`
	Success bool                   `json:"success"`
	Config  *config.Config         `json:"config,omitempty"`
	Error   error                  `json:"error,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

func getMachineID() string {
	envMachineID, hasEnvID := os.LookupEnv("MACHINE_ID")

	if hasEnvID {
		return envMachineID
	}

	machineID, _ = machineid.ID()
	return machineID
}

func initClient() Client {
	if singleClient != nil {
		return singleClient
	}
	machineID = getMachineID()

	posthogClient, _ := posthog.NewWithConfig(
		environment.PosthogAPIKey(),
		posthog.Config{
			Endpoint: "https://eu.i.posthog.com",
		},
	)
	singleClient = posthogClient
	return singleClient
}

func Capture(event string, properties map[string]interface{}) {
	if environment.TelemetryDisabled() {
		return
	}

	client := initClient()
	if client == nil {
		return
	}
	_ = client.Enqueue(posthog.Capture{
		Event:      event,
		DistinctId: machineID,
		Properties: properties,
	})
	_ = client.Close()
}

// CaptureRun records a command's outcome. The config snapshot is only
// attached on failure, to help reproduce the run.
func CaptureRun(run RunTelemetry) {
	properties := map[string]interface{}{
		"type":    "command",
		"success": run.Success,
	}

	if !run.Success {
		properties["config"] = run.Config
	}

	if run.Error != nil {
		properties["error"] = run.Error.Error()
	}

	if run.Extra != nil {
		properties["extra"] = run.Extra
	}

	Capture(run.Command, properties)
}

// SetClientForTesting swaps the posthog client; returns a restore func.
func SetClientForTesting(client Client) func() {
	previous := singleClient
	singleClient = client
	return func() {
		singleClient = previous
	}
}
