//go:build !dicontainer_debug

package buildmode

const debug = false
