// Package registry maps component kind names to factories that build leaf
// behavior from a declaration. Registering the same kind twice is a
// programmer error and panics; the built-in kinds are registered on every new
// registry.
package registry
