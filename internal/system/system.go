package system

import (
	"context"
	"fmt"
	"path"

	"github.com/briantomko/OpenMDAO/internal/comm"
	"github.com/briantomko/OpenMDAO/internal/ctxlog"
	"github.com/briantomko/OpenMDAO/internal/deriv"
	"github.com/briantomko/OpenMDAO/internal/varreg"
	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// Connection is one declared source to target wiring, recorded at the group
// where it was declared. Names are in that group's scope; resolution to
// absolute pathnames happens during setup.
type Connection struct {
	Source  string
	Target  string
	Indices []int
	// Owner is the pathname of the declaring group, for error reporting.
	Owner string
}

// DerivViews is one quantity-of-interest's set of directional vectors.
type DerivViews struct {
	Params   *vecview.View
	Unknowns *vecview.View
	Resids   *vecview.View
}

// Node is one subsystem in the model tree. A node with a Component is a leaf;
// a node without one is a group whose variables are aggregated from its
// children each setup pass.
type Node struct {
	Name     string
	Pathname string

	// Comm is the communicator partition assigned to this subtree. Nil is the
	// "no processes" sentinel.
	Comm comm.Communicator

	// Component is the leaf behavior; nil for groups.
	Component Component

	// FD holds this subsystem's finite-difference defaults. Per-variable
	// metadata overrides take precedence.
	FD deriv.Options

	// Params and Unknowns are keyed by this node's scope names. Group
	// registries share the leaf Meta records, so a conversion attached at the
	// root is visible at the owning leaf.
	Params   *varreg.Registry
	Unknowns *varreg.Registry

	// Views bound during problem setup. They start as placeholders so that
	// pre-setup access produces a descriptive error.
	ParamsView   *vecview.View
	UnknownsView *vecview.View
	ResidsView   *vecview.View

	// DViews holds one directional vector set per active quantity of interest.
	DViews map[string]*DerivViews

	// JacCache is the partial Jacobian from the last Linearize call.
	JacCache deriv.Jacobian

	promotes    []string
	children    []*Node
	connections []Connection
}

// NewGroup returns a group node.
func NewGroup(name string) *Node {
	return newNode(name, nil)
}

// NewComponent returns a leaf node wrapping the given behavior.
func NewComponent(name string, c Component) *Node {
	return newNode(name, c)
}

func newNode(name string, c Component) *Node {
	return &Node{
		Name:         name,
		Component:    c,
		FD:           deriv.DefaultOptions(),
		Params:       varreg.New(),
		Unknowns:     varreg.New(),
		ParamsView:   vecview.Placeholder("params"),
		UnknownsView: vecview.Placeholder("unknowns"),
		ResidsView:   vecview.Placeholder("resids"),
		DViews:       make(map[string]*DerivViews),
	}
}

// AddChild appends a child subsystem. Child names must be unique within the
// group and groups only; leaves cannot hold children.
func (n *Node) AddChild(child *Node) error {
	if n.Component != nil {
		return fmt.Errorf("component '%s' cannot contain subsystem '%s'", n.Name, child.Name)
	}
	for _, c := range n.children {
		if c.Name == child.Name {
			return fmt.Errorf("group '%s' already contains a subsystem named '%s'", n.Name, child.Name)
		}
	}
	n.children = append(n.children, child)
	return nil
}

// Children returns the child subsystems in declaration order.
func (n *Node) Children() []*Node { return n.children }

// Child returns the direct child with the given name.
func (n *Node) Child(name string) (*Node, bool) {
	for _, c := range n.children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Promote registers promotion glob patterns on this node. Taking the patterns
// variadically keeps a lone string from being iterated as characters.
func (n *Node) Promote(patterns ...string) {
	n.promotes = append(n.promotes, patterns...)
}

// Promotes returns the registered promotion patterns.
func (n *Node) Promotes() []string { return n.promotes }

// Connect declares a source to target wiring in this group's scope.
func (n *Node) Connect(source, target string, indices ...int) {
	n.connections = append(n.connections, Connection{
		Source:  source,
		Target:  target,
		Indices: indices,
	})
}

// Connections returns this node's declared connections with Owner filled in.
func (n *Node) Connections() []Connection {
	out := make([]Connection, len(n.connections))
	for i, c := range n.connections {
		c.Owner = n.Pathname
		out[i] = c
	}
	return out
}

// Leaves returns the leaf subsystems of this subtree in declaration order.
func (n *Node) Leaves() []*Node {
	if n.Component != nil {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Walk calls fn for this node and every descendant, top-down.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// SetupPaths assigns dotted pathnames top-down from this node. Re-runnable;
// every setup pass reassigns the whole subtree.
func (n *Node) SetupPaths(parentPath string) {
	if parentPath == "" {
		n.Pathname = n.Name
	} else {
		n.Pathname = parentPath + "." + n.Name
	}
	for _, c := range n.children {
		c.SetupPaths(n.Pathname)
	}
}

// Promoted reports whether name is visible under its own name in the parent's
// scope: some promotion pattern glob-matches it and some variable of this
// subtree actually carries it as its promoted name.
func (n *Node) Promoted(name string) (bool, error) {
	for _, pat := range n.promotes {
		ok, err := path.Match(pat, name)
		if err != nil {
			return false, fmt.Errorf("'%s' has invalid promotes pattern '%s'", n.Pathname, pat)
		}
		if !ok {
			continue
		}
		if n.Params.Has(name) || n.Unknowns.Has(name) {
			return true, nil
		}
	}
	return false, nil
}

// CheckPromotes validates that every promotion pattern matches at least one
// variable of this node. Runs after variable collection; failures are
// configuration errors that abort setup.
func (n *Node) CheckPromotes() error {
	for _, pat := range n.promotes {
		matched := false
		for _, reg := range []*varreg.Registry{n.Params, n.Unknowns} {
			for _, name := range reg.Names() {
				ok, err := path.Match(pat, name)
				if err != nil {
					return fmt.Errorf("'%s' has invalid promotes pattern '%s'", n.Pathname, pat)
				}
				if ok {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			return fmt.Errorf("'%s' promotes '%s' but has no variables matching that specification",
				n.Pathname, pat)
		}
	}
	return nil
}

// CollectVariables rebuilds the params/unknowns registries of this subtree,
// bottom-up. Leaves re-declare through their Component; groups re-key each
// child's variables under the promoted name when the child promotes it, or
// under "<child>.<name>" otherwise. Metadata records are shared, not copied,
// and their Promoted field tracks the name at the highest scope collected.
func (n *Node) CollectVariables(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	n.Params = varreg.New()
	n.Unknowns = varreg.New()

	if n.Component != nil {
		if err := n.Component.Setup(&Decl{node: n}); err != nil {
			return fmt.Errorf("setting up component '%s': %w", n.Pathname, err)
		}
		for _, reg := range []*varreg.Registry{n.Params, n.Unknowns} {
			reg.Each(func(key string, m *varreg.Meta) {
				m.Promoted = key
			})
		}
		logger.Debug("collected leaf variables", "path", n.Pathname,
			"params", n.Params.Len(), "unknowns", n.Unknowns.Len())
		return nil
	}

	for _, child := range n.children {
		if err := child.CollectVariables(ctx); err != nil {
			return err
		}
		if err := child.CheckPromotes(); err != nil {
			return err
		}

		for _, name := range child.Params.Names() {
			key, err := n.scopeKey(child, name)
			if err != nil {
				return err
			}
			for _, m := range child.Params.All(name) {
				m.Promoted = key
				n.Params.Add(key, m)
			}
		}
		for _, name := range child.Unknowns.Names() {
			key, err := n.scopeKey(child, name)
			if err != nil {
				return err
			}
			m, _ := child.Unknowns.Get(name)
			m.Promoted = key
			if err := n.Unknowns.AddUnique(key, m); err != nil {
				return fmt.Errorf("group '%s': %w", n.Pathname, err)
			}
		}
	}

	logger.Debug("aggregated group variables", "path", n.Pathname,
		"params", n.Params.Len(), "unknowns", n.Unknowns.Len())
	return nil
}

func (n *Node) scopeKey(child *Node, name string) (string, error) {
	promoted, err := child.Promoted(name)
	if err != nil {
		return "", err
	}
	if promoted {
		return name, nil
	}
	return child.Name + "." + name, nil
}

// AllMeta returns the shared metadata record for a scope name, searching
// params first, then unknowns.
func (n *Node) AllMeta(name string) (*varreg.Meta, bool) {
	if m, ok := n.Params.Get(name); ok {
		return m, true
	}
	return n.Unknowns.Get(name)
}
