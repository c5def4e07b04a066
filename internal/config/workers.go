package config

// Worker-pool clamp. The effective worker count is always forced into
// [MinWorkerLimit, MaxWorkerLimit] no matter what the flag or config says.
const (
	MinWorkerLimit     = 1
	MaxWorkerLimit     = 10
	DefaultWorkerLimit = 4
)

// ValidateWorkers picks the flag value when set (>0), otherwise the config
// value, and clamps the result.
func ValidateWorkers(flagValue int, configValue int) int {
	requested := configValue
	if flagValue > 0 {
		requested = flagValue
	}

	if requested < MinWorkerLimit {
		return MinWorkerLimit
	}
	if requested > MaxWorkerLimit {
		return MaxWorkerLimit
	}
	return requested
}
