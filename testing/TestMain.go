// Package testing switches binaries into test mode when blank-imported by tests, so
// main packages and runtime bootstrap skip network side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("FINVERSE_TEST_MODE", "1")
		for key, value := range map[string]string{
			"ENTITY_STORE": "memory",
			"ENV_FILE":     os.DevNull,
		} {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain is available to packages that want test mode applied explicitly.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
