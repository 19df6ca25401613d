package connect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briantomko/OpenMDAO/internal/system"
	"github.com/briantomko/OpenMDAO/internal/varreg"
	"github.com/briantomko/OpenMDAO/internal/vecview"
)

// comp declares fixed params and outputs, in order, and evaluates nothing.
type comp struct {
	params  []decl
	outputs []decl
}

type decl struct {
	name string
	spec varreg.Spec
}

func (c *comp) Setup(d *system.Decl) error {
	for _, p := range c.params {
		if err := d.AddParam(p.name, p.spec); err != nil {
			return err
		}
	}
	for _, o := range c.outputs {
		if err := d.AddOutput(o.name, o.spec); err != nil {
			return err
		}
	}
	return nil
}

func (c *comp) Apply(ctx context.Context, params, unknowns, resids *vecview.View) error {
	return nil
}

func setup(t *testing.T, root *system.Node) {
	t.Helper()
	root.SetupPaths("")
	require.NoError(t, root.CollectVariables(context.Background()))
}

func out(name string, spec varreg.Spec) *comp {
	return &comp{outputs: []decl{{name, spec}}}
}

func in(name string, spec varreg.Spec) *comp {
	return &comp{params: []decl{{name, spec}}}
}

func TestResolveExplicitConnection(t *testing.T) {
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{}))))
	require.NoError(t, root.AddChild(system.NewComponent("c2", in("x", varreg.Spec{}))))
	setup(t, root)
	root.Connect("c1.y", "c2.x")

	tab, err := Resolve(context.Background(), root)
	require.NoError(t, err)

	b, ok := tab.Bindings["top.c2.x"]
	require.True(t, ok)
	assert.Equal(t, "top.c1.y", b.SrcPath)
	assert.Empty(t, b.Indices)
	assert.Nil(t, b.Conv)
}

func TestResolveImplicitConnectionByPromotedName(t *testing.T) {
	root := system.NewGroup("top")
	src := system.NewComponent("c1", out("a", varreg.Spec{}))
	src.Promote("a")
	tgt := system.NewComponent("c2", in("a", varreg.Spec{}))
	tgt.Promote("a")
	require.NoError(t, root.AddChild(src))
	require.NoError(t, root.AddChild(tgt))
	setup(t, root)

	tab, err := Resolve(context.Background(), root)
	require.NoError(t, err)

	b, ok := tab.Bindings["top.c2.a"]
	require.True(t, ok)
	assert.Equal(t, "top.c1.a", b.SrcPath)
}

func TestResolvePromotionEquivalence(t *testing.T) {
	// Connecting to the promoted alias and to the path under it must resolve
	// to the identical binding.
	build := func(target string) *system.Node {
		root := system.NewGroup("top")
		require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{
			Shape: []int{4}, Val: []float64{1, 2, 3, 4},
		}))))
		tgt := system.NewComponent("c2", in("x", varreg.Spec{Shape: []int{2}}))
		tgt.Promote("x")
		require.NoError(t, root.AddChild(tgt))
		setup(t, root)
		root.Connect("c1.y", target, 1, 3)
		return root
	}

	for _, target := range []string{"x", "c2.x"} {
		tab, err := Resolve(context.Background(), build(target))
		require.NoError(t, err, "target %q", target)
		b, ok := tab.Bindings["top.c2.x"]
		require.True(t, ok, "target %q", target)
		assert.Equal(t, "top.c1.y", b.SrcPath, "target %q", target)
		assert.Equal(t, []int{1, 3}, b.Indices, "target %q", target)
	}
}

func TestResolveIndexSizeMismatchMessage(t *testing.T) {
	for _, tc := range []struct {
		name    string
		target  string
		promote bool
		want    string
	}{
		{
			name:   "absolute target name",
			target: "c2.x",
			want:   "Size 2 of the indexed sub-part of source 'c1.y' must match the size '3' of the target 'c2.x'",
		},
		{
			name:    "promoted target name",
			target:  "x",
			promote: true,
			want:    "Size 2 of the indexed sub-part of source 'c1.y' must match the size '3' of the target 'x'",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			root := system.NewGroup("top")
			require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{
				Shape: []int{4},
			}))))
			tgt := system.NewComponent("c2", in("x", varreg.Spec{Shape: []int{3}}))
			if tc.promote {
				tgt.Promote("x")
			}
			require.NoError(t, root.AddChild(tgt))
			setup(t, root)
			root.Connect("c1.y", tc.target, 0, 2)

			_, err := Resolve(context.Background(), root)
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}

func TestResolveIndexOutOfRange(t *testing.T) {
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{Shape: []int{2}}))))
	require.NoError(t, root.AddChild(system.NewComponent("c2", in("x", varreg.Spec{}))))
	setup(t, root)
	root.Connect("c1.y", "c2.x", 5)

	_, err := Resolve(context.Background(), root)
	require.Error(t, err)
	assert.ErrorContains(t, err, "index 5 into source 'c1.y' is out of range for its size 2")
}

func TestResolvePlainSizeMismatch(t *testing.T) {
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{Shape: []int{4}}))))
	require.NoError(t, root.AddChild(system.NewComponent("c2", in("x", varreg.Spec{Shape: []int{3}}))))
	setup(t, root)
	root.Connect("c1.y", "c2.x")

	_, err := Resolve(context.Background(), root)
	require.Error(t, err)
	assert.ErrorContains(t, err, "cannot connect source 'c1.y' of size 4 to target 'c2.x' of size 3")
}

func TestResolveAttachesUnitConversion(t *testing.T) {
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{Units: "degC"}))))
	require.NoError(t, root.AddChild(system.NewComponent("c2", in("x", varreg.Spec{Units: "degF"}))))
	setup(t, root)
	root.Connect("c1.y", "c2.x")

	tab, err := Resolve(context.Background(), root)
	require.NoError(t, err)

	b := tab.Bindings["top.c2.x"]
	require.NotNil(t, b.Conv)
	assert.InDelta(t, 212.0, b.Conv.Apply(100.0), 1e-6)
	assert.InDelta(t, 1.8, b.Conv.ApplyDeriv(1.0), 1e-12)

	// The conversion is cached on the target's metadata record too.
	m, ok := root.Params.Get("c2.x")
	require.True(t, ok)
	assert.Same(t, b.Conv, m.Conv)
}

func TestResolveIdenticalUnitsAttachNothing(t *testing.T) {
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{Units: "m"}))))
	require.NoError(t, root.AddChild(system.NewComponent("c2", in("x", varreg.Spec{Units: "m"}))))
	setup(t, root)
	root.Connect("c1.y", "c2.x")

	tab, err := Resolve(context.Background(), root)
	require.NoError(t, err)

	assert.Nil(t, tab.Bindings["top.c2.x"].Conv)
	m, _ := root.Params.Get("c2.x")
	assert.Nil(t, m.Conv)
}

func TestResolveIncompatibleUnits(t *testing.T) {
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{Units: "m"}))))
	require.NoError(t, root.AddChild(system.NewComponent("c2", in("x", varreg.Spec{Units: "s"}))))
	setup(t, root)
	root.Connect("c1.y", "c2.x")

	_, err := Resolve(context.Background(), root)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connecting 'c1.y' to 'c2.x'")
	assert.ErrorContains(t, err, "unit 'm' is not compatible with unit 's'")
}

func TestResolveRejectsSecondSource(t *testing.T) {
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{}))))
	require.NoError(t, root.AddChild(system.NewComponent("c2", out("z", varreg.Spec{}))))
	require.NoError(t, root.AddChild(system.NewComponent("c3", in("x", varreg.Spec{}))))
	setup(t, root)
	root.Connect("c1.y", "c3.x")
	root.Connect("c2.z", "c3.x")

	_, err := Resolve(context.Background(), root)
	require.Error(t, err)
	assert.ErrorContains(t, err, "target 'top.c3.x' is already connected to source 'top.c1.y'")
}

func TestResolveUnknownEndpoints(t *testing.T) {
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{}))))
	require.NoError(t, root.AddChild(system.NewComponent("c2", in("x", varreg.Spec{}))))
	setup(t, root)

	root.Connect("c1.nope", "c2.x")
	_, err := Resolve(context.Background(), root)
	require.Error(t, err)
	assert.ErrorContains(t, err, "source 'c1.nope'")
}

func TestResolvePromotedTargetFansOut(t *testing.T) {
	// One promoted name addressing two parameters connects both of them.
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("src", out("y", varreg.Spec{}))))
	for _, name := range []string{"c1", "c2"} {
		c := system.NewComponent(name, in("x", varreg.Spec{}))
		c.Promote("x")
		require.NoError(t, root.AddChild(c))
	}
	setup(t, root)
	root.Connect("src.y", "x")

	tab, err := Resolve(context.Background(), root)
	require.NoError(t, err)

	for _, path := range []string{"top.c1.x", "top.c2.x"} {
		b, ok := tab.Bindings[path]
		require.True(t, ok, path)
		assert.Equal(t, "top.src.y", b.SrcPath, path)
	}
}

func TestResolveExecutionOrderFollowsDataFlow(t *testing.T) {
	// Declared out of order: c2 consumes c1's output but is added first.
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c2", &comp{
		params:  []decl{{"x", varreg.Spec{}}},
		outputs: []decl{{"z", varreg.Spec{}}},
	})))
	require.NoError(t, root.AddChild(system.NewComponent("c1", out("y", varreg.Spec{}))))
	require.NoError(t, root.AddChild(system.NewComponent("c3", in("w", varreg.Spec{}))))
	setup(t, root)
	root.Connect("c1.y", "c2.x")
	root.Connect("c2.z", "c3.w")

	tab, err := Resolve(context.Background(), root)
	require.NoError(t, err)

	var names []string
	for _, n := range tab.Order {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, names)
}

func TestResolveDetectsCycle(t *testing.T) {
	root := system.NewGroup("top")
	require.NoError(t, root.AddChild(system.NewComponent("c1", &comp{
		params:  []decl{{"x", varreg.Spec{}}},
		outputs: []decl{{"y", varreg.Spec{}}},
	})))
	require.NoError(t, root.AddChild(system.NewComponent("c2", &comp{
		params:  []decl{{"p", varreg.Spec{}}},
		outputs: []decl{{"q", varreg.Spec{}}},
	})))
	setup(t, root)
	root.Connect("c1.y", "c2.p")
	root.Connect("c2.q", "c1.x")

	_, err := Resolve(context.Background(), root)
	require.Error(t, err)
	assert.ErrorContains(t, err, "cycle detected")
}
