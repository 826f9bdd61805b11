package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// GREENPASS_TEST_MODE lets test binaries and CI smoke runs link cmd/greenpass
// and cmd/worker without a database: both mains return before LoadConfig.
// internal/testing/guard switches it on for every package test.
const testModeEnv = "GREENPASS_TEST_MODE"

var testMode struct {
	sync.Mutex
	loaded bool
	on     bool
}

func readTestMode() bool {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(testModeEnv)))
	return err == nil && on
}

// InTestMode reports whether the API and worker should exit before dialling
// Postgres, Redis or the job queue. The variable accepts any strconv.ParseBool
// true value and is read once.
func InTestMode() bool {
	testMode.Lock()
	defer testMode.Unlock()
	if !testMode.loaded {
		testMode.on = readTestMode()
		testMode.loaded = true
	}
	return testMode.on
}

// RefreshTestMode re-reads GREENPASS_TEST_MODE and returns the new value.
func RefreshTestMode() bool {
	testMode.Lock()
	defer testMode.Unlock()
	testMode.on = readTestMode()
	testMode.loaded = true
	return testMode.on
}
