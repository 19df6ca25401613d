package connect

import (
	"context"
	"fmt"

	"github.com/briantomko/OpenMDAO/internal/ctxlog"
	"github.com/briantomko/OpenMDAO/internal/graphorder"
	"github.com/briantomko/OpenMDAO/internal/system"
	"github.com/briantomko/OpenMDAO/internal/units"
	"github.com/briantomko/OpenMDAO/internal/varreg"
	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// Table is the resolved connection map for one setup pass.
type Table struct {
	// Bindings maps each connected target's absolute pathname to how it is
	// fed. Targets with no connection are absent.
	Bindings map[string]*vecview.Binding
	// Order holds the leaf subsystems in data-flow execution order.
	Order []*system.Node

	ownerOf map[string]*system.Node
}

// SourceOf returns the absolute pathname of the source feeding a target, if
// the target is connected.
func (t *Table) SourceOf(targetPath string) (string, bool) {
	b, ok := t.Bindings[targetPath]
	if !ok {
		return "", false
	}
	return b.SrcPath, true
}

// OwnerOf returns the leaf subsystem that declared the variable at the given
// absolute pathname.
func (t *Table) OwnerOf(varPath string) (*system.Node, bool) {
	n, ok := t.ownerOf[varPath]
	return n, ok
}

// Resolve builds the connection table for the tree rooted at root. Variable
// collection must already have run. Every failure is a configuration error;
// setup aborts before any evaluation.
func Resolve(ctx context.Context, root *system.Node) (*Table, error) {
	logger := ctxlog.FromContext(ctx)

	t := &Table{
		Bindings: make(map[string]*vecview.Binding),
		ownerOf:  make(map[string]*system.Node),
	}
	for _, leaf := range root.Leaves() {
		for _, reg := range []*varreg.Registry{leaf.Params, leaf.Unknowns} {
			reg.Each(func(_ string, m *varreg.Meta) {
				t.ownerOf[m.Pathname] = leaf
			})
		}
	}

	// Explicit connections first, then promotion-implied ones. An implicit
	// connection that restates an explicit one is harmless; a conflicting
	// source is a structural error either way.
	var walkErr error
	root.Walk(func(n *system.Node) {
		if walkErr != nil || n.Component != nil {
			return
		}
		for _, conn := range n.Connections() {
			if err := t.addExplicit(n, conn); err != nil {
				walkErr = err
				return
			}
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}

	root.Walk(func(n *system.Node) {
		if walkErr != nil || n.Component != nil {
			return
		}
		if err := t.addImplicit(n); err != nil {
			walkErr = err
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if err := t.orderLeaves(root); err != nil {
		return nil, err
	}

	logger.Debug("resolved connections", "root", root.Pathname,
		"targets", len(t.Bindings), "leaves", len(t.Order))
	return t, nil
}

// lookupUnknown resolves a source name in a group's scope: either a registry
// key or a path relative to the group.
func lookupUnknown(g *system.Node, name string) (*varreg.Meta, bool) {
	if m, ok := g.Unknowns.Get(name); ok {
		return m, true
	}
	abs := g.Pathname + "." + name
	for _, key := range g.Unknowns.Names() {
		m, _ := g.Unknowns.Get(key)
		if m.Pathname == abs {
			return m, true
		}
	}
	return nil, false
}

// lookupParams resolves a target name in a group's scope. A promoted name may
// address several parameters at once; all of them become targets.
func lookupParams(g *system.Node, name string) []*varreg.Meta {
	if ms := g.Params.All(name); len(ms) > 0 {
		return ms
	}
	abs := g.Pathname + "." + name
	for _, key := range g.Params.Names() {
		for _, m := range g.Params.All(key) {
			if m.Pathname == abs {
				return []*varreg.Meta{m}
			}
		}
	}
	return nil
}

func (t *Table) addExplicit(g *system.Node, conn system.Connection) error {
	src, ok := lookupUnknown(g, conn.Source)
	if !ok {
		return fmt.Errorf("'%s': source '%s' of connection to '%s' is not an unknown of this group",
			conn.Owner, conn.Source, conn.Target)
	}
	tgts := lookupParams(g, conn.Target)
	if len(tgts) == 0 {
		return fmt.Errorf("'%s': target '%s' of connection from '%s' is not a parameter of this group",
			conn.Owner, conn.Target, conn.Source)
	}

	for _, tgt := range tgts {
		if err := t.bind(src, tgt, conn.Source, conn.Target, conn.Indices); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) addImplicit(g *system.Node) error {
	for _, key := range g.Unknowns.Names() {
		if !g.Params.Has(key) {
			continue
		}
		src, _ := g.Unknowns.Get(key)
		for _, tgt := range g.Params.All(key) {
			if b, ok := t.Bindings[tgt.Pathname]; ok && b.SrcPath == src.Pathname {
				continue
			}
			if err := t.bind(src, tgt, key, key, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// bind validates one (source, target) pair and records it. srcName and
// tgtName are the names as declared, used verbatim in size errors.
func (t *Table) bind(src, tgt *varreg.Meta, srcName, tgtName string, indices []int) error {
	if b, ok := t.Bindings[tgt.Pathname]; ok {
		return fmt.Errorf("target '%s' is already connected to source '%s'; cannot also connect it to '%s'",
			tgt.Pathname, b.SrcPath, src.Pathname)
	}

	if len(indices) > 0 {
		for _, idx := range indices {
			if idx < 0 || idx >= src.Size {
				return fmt.Errorf("index %d into source '%s' is out of range for its size %d",
					idx, srcName, src.Size)
			}
		}
		if len(indices) != tgt.Size {
			return fmt.Errorf("Size %d of the indexed sub-part of source '%s' must match the size '%d' of the target '%s'",
				len(indices), srcName, tgt.Size, tgtName)
		}
	} else if src.Size != tgt.Size {
		return fmt.Errorf("cannot connect source '%s' of size %d to target '%s' of size %d",
			srcName, src.Size, tgtName, tgt.Size)
	}

	conv, err := units.Convert(src.Units, tgt.Units)
	if err != nil {
		return fmt.Errorf("connecting '%s' to '%s': %w", srcName, tgtName, err)
	}
	tgt.Conv = conv

	t.Bindings[tgt.Pathname] = &vecview.Binding{
		SrcPath: src.Pathname,
		Indices: indices,
		Conv:    conv,
	}
	return nil
}

// orderLeaves topologically sorts the leaves along the data-flow edges the
// bindings induce. Declaration order is preserved among independent leaves.
func (t *Table) orderLeaves(root *system.Node) error {
	g := graphorder.New()
	leaves := root.Leaves()
	for _, leaf := range leaves {
		g.AddNode(leaf.Pathname)
	}
	for tgtPath, b := range t.Bindings {
		srcLeaf, ok := t.ownerOf[b.SrcPath]
		if !ok {
			continue
		}
		tgtLeaf, ok := t.ownerOf[tgtPath]
		if !ok || srcLeaf == tgtLeaf {
			continue
		}
		if err := g.AddEdge(srcLeaf.Pathname, tgtLeaf.Pathname); err != nil {
			return err
		}
	}

	sorted, err := g.Sort()
	if err != nil {
		return err
	}
	byPath := make(map[string]*system.Node, len(leaves))
	for _, leaf := range leaves {
		byPath[leaf.Pathname] = leaf
	}
	t.Order = make([]*system.Node, 0, len(sorted))
	for _, p := range sorted {
		t.Order = append(t.Order, byPath[p])
	}
	return nil
}
