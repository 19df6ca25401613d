// Package connect resolves declared and promotion-implied connections into a
// flat source-to-target table keyed by absolute target pathname.
//
// Resolution runs once per setup pass, after variable collection. It
// validates index-subset sizes and unit compatibility, caches unit
// conversions on the target metadata, and derives a deterministic execution
// order for the leaf components from the resulting data-flow graph.
package connect
