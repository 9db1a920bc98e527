package buildmode_test

import (
	"testing"

	"github.com/corewire/di/internal/buildmode"
)

func TestDebugDefaultsFalse(t *testing.T) {
	// The default build (no dicontainer_debug tag) must report release mode.
	if buildmode.Debug() {
		t.Fatalf("Debug() = true without the dicontainer_debug build tag")
	}
}
