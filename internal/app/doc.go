// Package app wires the pieces into a runnable application: it configures
// logging, loads and builds the model, runs the problem once, and prints the
// recorded snapshot and any requested derivatives.
package app
