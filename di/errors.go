package di

import "errors"

// Sentinel errors returned by the façade's Resolve family. Callers use
// errors.Is to distinguish a true miss (nothing registered) from a
// resolution attempted in the wrong calling context (e.g. sync Resolve
// against an AsyncFactory-only registration).
var (
	// ErrNotRegistered means no factory of any variant exists for the
	// requested type.
	ErrNotRegistered = errors.New("di: no registration for requested type")

	// ErrWrongContext means a registration exists but requires a
	// suspension-capable caller (ResolveAsync), not Resolve.
	ErrWrongContext = errors.New("di: registration requires ResolveAsync")

	// ErrNotBootstrapped names the state before Bootstrap has run.
	// Nothing in this package returns it: Default returns nil instead.
	ErrNotBootstrapped = errors.New("di: default container not bootstrapped")

	// ErrResetDisabled is returned by Reset outside debug builds.
	ErrResetDisabled = errors.New("di: Reset is only available in debug builds")
)
