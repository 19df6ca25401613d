// Package config loads declarative model definitions from HCL files into a
// format-agnostic structure. It only parses and decodes; turning the model
// into a subsystem tree is the builder's job.
package config
