package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "ASREPORTED_TEST_MODE"

var testMode struct {
	sync.RWMutex
	loaded  bool
	enabled bool
}

// InTestMode reports whether binaries should skip starting servers and
// workers. ASREPORTED_TEST_MODE is read on first use.
func InTestMode() bool {
	testMode.RLock()
	loaded, enabled := testMode.loaded, testMode.enabled
	testMode.RUnlock()
	if loaded {
		return enabled
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the environment and returns the new value.
func RefreshTestMode() bool {
	enabled, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Lock()
	testMode.loaded, testMode.enabled = true, enabled
	testMode.Unlock()
	return enabled
}
