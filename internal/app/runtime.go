package app

import (
	"os"
	"sync/atomic"
)

// TestModeEnv marks a process as running under go test. Binaries exit
// before binding listeners or opening pools when it is set to "1".
const TestModeEnv = "LYCEUM_TEST_MODE"

// 0 = not read yet, 1 = off, 2 = on.
var testMode atomic.Int32

// InTestMode reports whether the process runs inside a test harness.
// The environment is read on first use and cached.
func InTestMode() bool {
	if v := testMode.Load(); v != 0 {
		return v == 2
	}
	v := int32(1)
	if os.Getenv(TestModeEnv) == "1" {
		v = 2
	}
	testMode.Store(v)
	return v == 2
}

// RefreshTestMode drops the cached value so the next InTestMode call
// rereads the environment. Tests that flip the flag after package
// initialisation call this first.
func RefreshTestMode() {
	testMode.Store(0)
}
