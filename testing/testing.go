// Package testing forces test mode for the whole module. Test files
// blank-import it so the flag is already in the environment before any
// package under test reads configuration or caches runtime state.
package testing

import "os"

// Binaries check this flag and refuse to bind listeners, open pools,
// or start workers inside a test run.
func init() {
	_ = os.Setenv("LYCEUM_TEST_MODE", "1")
}
