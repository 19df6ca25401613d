// Package cli parses command-line arguments into an app configuration and
// maps usage errors to exit codes.
package cli
