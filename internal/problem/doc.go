// Package problem orchestrates one model: a single setup pass that turns the
// subsystem tree into validated connections, backing vectors, and live views,
// a run-once sweep over the leaf components, and the derivative query surface
// in forward, adjoint, and finite-difference flavors.
//
// Driver loops, optimizers, and persistence are external collaborators; the
// problem only exposes the operations they consume.
package problem
