package automation

import "errors"

// ErrNoSuchElement is returned by FindElement and the selector engine
// when a strategy finds nothing — absence is a value, not a panic.
var ErrNoSuchElement = errors.New("automation: no such element")

// ErrSessionExhausted is returned by the session pool when it cannot
// satisfy a new session request: either no port in the pool's
// configured port range is free, or the pool is already at its maximum
// number of live sessions (spec.md §7's explicit error code for pool
// exhaustion).
var ErrSessionExhausted = errors.New("automation: session pool exhausted")
