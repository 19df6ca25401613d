/*
Package deriv is the derivative engine.

It computes Jacobians two ways: by finite differencing a model-evaluation
callback across each parameter index (FD), and by applying cached per-leaf
partial Jacobian blocks as a linear operator in forward or adjoint mode
(ApplyLinear).

Finite differencing obeys a strict collective-call discipline: a process that
holds zero local elements of a parameter still invokes the evaluation
callback once per globally-held index, so every rank in a communicator issues
the same number of collective calls. A Jacobian produced under that rule is
locally incomplete and is reconciled across the group by Combined.
*/
package deriv
