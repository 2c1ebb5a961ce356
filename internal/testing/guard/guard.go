// Package guard pins the test-mode flag for packages whose tests touch
// runtime wiring. Blank-import it so LYCEUM_TEST_MODE is set before any
// code caches the flag.
package guard

import (
	"os"
	"sync"
)

const envVar = "LYCEUM_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(envVar) == "" {
			_ = os.Setenv(envVar, "1")
		}
	})
}

// Active reports whether the test-mode flag is set for this process.
func Active() bool {
	return os.Getenv(envVar) == "1"
}
