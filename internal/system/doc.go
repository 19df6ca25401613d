// Package system defines the tree of subsystems a model is composed of.
//
// A Node is either a group (it has children) or a leaf (it has a Component
// that declares variables and evaluates residuals). Pathnames are assigned
// top-down during setup; variables are collected bottom-up, with each group
// re-keying its children's variables under either a promoted short name or a
// child-prefixed name. Promotion patterns are globs matched once per setup
// pass, never per access.
package system
