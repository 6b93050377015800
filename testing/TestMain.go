// Package testing switches binaries into test mode when blank-imported by a
// package's tests.
package testing

import (
	"os"
	stdtesting "testing"
)

var defaults = map[string]string{
	"ASREPORTED_TEST_MODE": "1",
	"LOG_FORMAT":           "json",
	"LOG_LEVEL":            "warn",
}

func init() {
	for key, value := range defaults {
		if _, ok := os.LookupEnv(key); ok && key != "ASREPORTED_TEST_MODE" {
			continue
		}
		_ = os.Setenv(key, value)
	}
}

// TestMain runs the package tests with the test-mode environment applied.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
