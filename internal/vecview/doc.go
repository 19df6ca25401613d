/*
Package vecview implements the distributed vector-view layer.

One contiguous backing array per vector kind (unknowns, residuals, and their
per-quantity-of-interest directional counterparts) is allocated at the root of
the model tree and laid out in depth-first declaration order, so the variables
of any subtree occupy a single contiguous window. Every subsystem holds views:
non-owning aliases described by offset/length pairs into the root allocation.
Views never resize or reallocate backing storage.

Views over the unknowns and residuals vectors are live aliases; a write
through one holder is visible to every other holder. Parameter views are
transfer targets: each connected parameter holds a staging slice filled by an
explicit transfer step that applies the connection's index subset and cached
unit conversion. A parameter whose connection is a pure passthrough (no index
subset, no conversion) aliases the source unknown's storage directly.

A View begins life as a placeholder: introspection works uniformly, while
value access produces a descriptive "not yet set up" error instead of a nil
dereference.
*/
package vecview
