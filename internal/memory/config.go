package memory

import (
	"os"
	"runtime/debug"
	"strconv"

	"github.com/dustin/go-humanize"

	"media-streamer/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go heap.
const DefaultMemoryRatio = 0.75

// ConfigResult describes what ConfigureFromEnv decided.
type ConfigResult struct {
	Configured     bool
	Source         string // "GOMEMLIMIT", "MEMORY_LIMIT" or "none"
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
	Warnings       []string
}

// Plan computes the heap limit from an environment lookup without applying it.
func Plan(getenv func(string) string) ConfigResult {
	if v := getenv("GOMEMLIMIT"); v != "" {
		return ConfigResult{Source: "GOMEMLIMIT"}
	}

	result := ConfigResult{Source: "none"}
	raw := getenv("MEMORY_LIMIT")
	if raw == "" {
		return result
	}

	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		result.Warnings = append(result.Warnings, "invalid MEMORY_LIMIT "+strconv.Quote(raw))
		return result
	}

	ratio := DefaultMemoryRatio
	if rawRatio := getenv("MEMORY_RATIO"); rawRatio != "" {
		parsed, err := strconv.ParseFloat(rawRatio, 64)
		if err == nil && parsed > 0 && parsed <= 1 {
			ratio = parsed
		} else {
			result.Warnings = append(result.Warnings, "invalid MEMORY_RATIO "+strconv.Quote(rawRatio)+", using default")
		}
	}

	result.Configured = true
	result.Source = "MEMORY_LIMIT"
	result.ContainerLimit = limit
	result.Ratio = ratio
	result.GoMemLimit = int64(float64(limit) * ratio)
	return result
}

// ConfigureFromEnv applies Plan(os.Getenv) to the runtime and logs the result.
func ConfigureFromEnv() ConfigResult {
	result := Plan(os.Getenv)
	for _, w := range result.Warnings {
		logging.Warn("Memory configuration: %s", w)
	}

	switch result.Source {
	case "GOMEMLIMIT":
		// The runtime has already parsed it; report the effective value.
		result.GoMemLimit = debug.SetMemoryLimit(-1)
		result.Configured = true
		logging.Info("GOMEMLIMIT set via environment: %s", os.Getenv("GOMEMLIMIT"))
	case "MEMORY_LIMIT":
		debug.SetMemoryLimit(result.GoMemLimit)
		logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
			humanize.IBytes(uint64(result.GoMemLimit)),
			result.Ratio*100,
			humanize.IBytes(uint64(result.ContainerLimit)))
	default:
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left at runtime default")
	}
	return result
}
