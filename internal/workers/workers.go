package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns a worker count of GOMAXPROCS*multiplier, at least 1 and at
// most limit (0 means no limit). A positive integer in the environment
// variable named by override replaces the computed value, still subject to
// limit.
func Count(override string, multiplier float64, limit int) int {
	if override != "" {
		if raw := os.Getenv(override); raw != "" {
			if count, err := strconv.Atoi(raw); err == nil && count > 0 {
				return capAt(count, limit)
			}
		}
	}

	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if n < 1 {
		n = 1
	}
	return capAt(n, limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns one worker per CPU.
func ForCPU(override string, limit int) int {
	return Count(override, 1.0, limit)
}

// ForIO returns two workers per CPU.
func ForIO(override string, limit int) int {
	return Count(override, 2.0, limit)
}

// ForMixed returns 1.5 workers per CPU.
func ForMixed(override string, limit int) int {
	return Count(override, 1.5, limit)
}
