// Package buildmode exposes the debug/release switch that gates
// operations like Reset() that the façade only permits outside
// production builds. Selected at compile time via the
// dicontainer_debug build tag, not read from configuration, so a
// release binary can never be coaxed into allowing a reset at runtime.
package buildmode

// Debug reports whether the binary was built with the dicontainer_debug tag.
func Debug() bool { return debug }
