package vecview

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briantomko/OpenMDAO/internal/units"
	"github.com/briantomko/OpenMDAO/internal/varreg"
)

func mustMeta(t *testing.T, name, path string, spec varreg.Spec) *varreg.Meta {
	t.Helper()
	m, err := varreg.NewMeta(name, path, spec)
	require.NoError(t, err)
	return m
}

// buildRegistry declares three unknowns the way a small two-leaf tree would.
func buildRegistry(t *testing.T) *varreg.Registry {
	t.Helper()
	reg := varreg.New()
	reg.Add("src.x", mustMeta(t, "x", "src.x", varreg.Spec{Shape: []int{3}, Val: []float64{1, 2, 3}}))
	reg.Add("src.y", mustMeta(t, "y", "src.y", varreg.Spec{Val: []float64{4}}))
	reg.Add("tgt.z", mustMeta(t, "z", "tgt.z", varreg.Spec{Shape: []int{2}, Val: []float64{5, 6}}))
	return reg
}

func TestPlaceholderView(t *testing.T) {
	v := Placeholder("unknowns")

	assert.False(t, v.Bound())
	assert.Empty(t, v.Names())
	assert.False(t, v.Has("x"))
	assert.Zero(t, v.Len())

	_, err := v.Flat("x")
	require.Error(t, err)
	assert.ErrorContains(t, err, "'unknowns' has not been initialized")

	_, err = v.Window()
	assert.ErrorContains(t, err, "has not been initialized")
}

func TestVectorLayoutAndInitialValues(t *testing.T) {
	reg := buildRegistry(t)
	vec, err := NewVector(reg)
	require.NoError(t, err)
	vec.LoadInitial(reg)

	assert.Len(t, vec.Data, 6)
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5, 6}, vec.Data); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceViewIsLiveAlias(t *testing.T) {
	reg := buildRegistry(t)
	vec, err := NewVector(reg)
	require.NoError(t, err)
	vec.LoadInitial(reg)

	v, err := NewSource("unknowns", vec, reg)
	require.NoError(t, err)
	require.True(t, v.Bound())

	x, err := v.Flat("src.x")
	require.NoError(t, err)
	x[1] = 42.0

	// The write is visible through the backing vector and the window.
	assert.Equal(t, 42.0, vec.Data[1])
	w, err := v.Window()
	require.NoError(t, err)
	assert.Equal(t, 42.0, w[1])

	off, n, err := v.Range("src.y")
	require.NoError(t, err)
	assert.Equal(t, 3, off)
	assert.Equal(t, 1, n)
}

func TestSubtreeViewWindow(t *testing.T) {
	reg := buildRegistry(t)
	vec, err := NewVector(reg)
	require.NoError(t, err)
	vec.LoadInitial(reg)

	// A subtree view over only the second leaf's variable.
	sub := varreg.New()
	m, _ := reg.Get("tgt.z")
	sub.Add("z", m)

	v, err := NewSource("unknowns", vec, sub)
	require.NoError(t, err)

	w, err := v.Window()
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, w)

	// Window writes land in the shared backing storage; tgt.z sits after
	// src.x (3 elements) and src.y (1 element).
	w[0] = -1
	assert.Equal(t, -1.0, vec.Data[4])
}

func TestRemoteVariableHasNoStorage(t *testing.T) {
	reg := varreg.New()
	local := mustMeta(t, "a", "c1.a", varreg.Spec{Shape: []int{2}})
	remote := mustMeta(t, "b", "c2.b", varreg.Spec{Shape: []int{4}})
	remote.Remote = true
	reg.Add("c1.a", local)
	reg.Add("c2.b", remote)

	vec, err := NewVector(reg)
	require.NoError(t, err)
	assert.Len(t, vec.Data, 2, "remote variables must not consume local storage")

	v, err := NewSource("unknowns", vec, reg)
	require.NoError(t, err)
	b, err := v.Flat("c2.b")
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestTargetViewPassthroughAliasing(t *testing.T) {
	srcReg := varreg.New()
	srcReg.Add("src.x", mustMeta(t, "x", "src.x", varreg.Spec{Shape: []int{2}, Val: []float64{7, 8}}))
	vec, err := NewVector(srcReg)
	require.NoError(t, err)
	vec.LoadInitial(srcReg)
	srcView, err := NewSource("unknowns", vec, srcReg)
	require.NoError(t, err)

	tgtReg := varreg.New()
	tgtReg.Add("x", mustMeta(t, "x", "tgt.x", varreg.Spec{Shape: []int{2}}))

	bindings := map[string]*Binding{
		"tgt.x": {SrcPath: "src.x"},
	}
	tgtView, err := NewTarget("params", tgtReg, bindings, srcView)
	require.NoError(t, err)

	// Pure passthrough aliases the source storage: no transfer required.
	x, err := tgtView.Flat("x")
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8}, x)

	vec.Data[0] = 70
	assert.Equal(t, 70.0, x[0])

	tr := NewTransfer(tgtView, srcView)
	assert.Empty(t, tr.items)
}

func TestTransferWithIndicesAndConversion(t *testing.T) {
	srcReg := varreg.New()
	srcReg.Add("src.temp", mustMeta(t, "temp", "src.temp",
		varreg.Spec{Shape: []int{4}, Val: []float64{0, 100, 50, 25}, Units: "degC"}))
	vec, err := NewVector(srcReg)
	require.NoError(t, err)
	vec.LoadInitial(srcReg)
	srcView, err := NewSource("unknowns", vec, srcReg)
	require.NoError(t, err)

	conv, err := units.Convert("degC", "degF")
	require.NoError(t, err)
	require.NotNil(t, conv)

	tgtReg := varreg.New()
	tgtReg.Add("temp", mustMeta(t, "temp", "tgt.temp", varreg.Spec{Shape: []int{2}, Units: "degF"}))

	bindings := map[string]*Binding{
		"tgt.temp": {SrcPath: "src.temp", Indices: []int{1, 3}, Conv: conv},
	}
	tgtView, err := NewTarget("params", tgtReg, bindings, srcView)
	require.NoError(t, err)

	NewTransfer(tgtView, srcView).Do()

	got, err := tgtView.Flat("temp")
	require.NoError(t, err)
	assert.InDelta(t, 212.0, got[0], 1e-6)
	assert.InDelta(t, 77.0, got[1], 1e-6)
}

func TestTransferDerivAndReverse(t *testing.T) {
	srcReg := varreg.New()
	srcReg.Add("src.x", mustMeta(t, "x", "src.x", varreg.Spec{Val: []float64{1}, Units: "degC"}))
	vec, err := NewVector(srcReg)
	require.NoError(t, err)
	vec.LoadInitial(srcReg)
	srcView, err := NewSource("dunknowns", vec, srcReg)
	require.NoError(t, err)

	conv, err := units.Convert("degC", "degF")
	require.NoError(t, err)

	tgtReg := varreg.New()
	tgtReg.Add("x", mustMeta(t, "x", "tgt.x", varreg.Spec{Units: "degF"}))
	bindings := map[string]*Binding{"tgt.x": {SrcPath: "src.x", Conv: conv}}
	tgtView, err := NewTarget("dparams", tgtReg, bindings, srcView)
	require.NoError(t, err)

	tr := NewTransfer(tgtView, srcView)

	// Forward: derivative conversion is the factor alone, no offset.
	tr.DoDeriv()
	d, err := tgtView.Flat("x")
	require.NoError(t, err)
	assert.InDelta(t, 1.8, d[0], 1e-12)

	// Reverse: adjoint accumulates back through the same factor.
	vec.Zero()
	d[0] = 1.0
	tr.Reverse()
	assert.InDelta(t, 1.8, vec.Data[0], 1e-12)
}

func TestSetAndFlatAll(t *testing.T) {
	reg := buildRegistry(t)
	vec, err := NewVector(reg)
	require.NoError(t, err)
	vec.LoadInitial(reg)
	v, err := NewSource("unknowns", vec, reg)
	require.NoError(t, err)

	require.NoError(t, v.Set("tgt.z", []float64{9, 10}))
	err = v.Set("tgt.z", []float64{1})
	assert.ErrorContains(t, err, "has 2 elements, got 1")

	all, err := v.FlatAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 9, 10}, all)
}

func TestSubviewSharesSlotsUnderLocalNames(t *testing.T) {
	reg := buildRegistry(t)
	vec, err := NewVector(reg)
	require.NoError(t, err)
	vec.LoadInitial(reg)
	parent, err := NewSource("unknowns", vec, reg)
	require.NoError(t, err)

	// A leaf sees src.x under its own promoted name.
	leafReg := varreg.New()
	leafReg.Add("x", mustMeta(t, "x", "src.x", varreg.Spec{Shape: []int{3}}))
	sub, err := Subview(parent, "params", leafReg)
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, sub.Names())
	got, err := sub.Flat("x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)

	// Writes through the subview land in the shared storage.
	got[0] = 42
	parentX, err := parent.Flat("src.x")
	require.NoError(t, err)
	assert.Equal(t, 42.0, parentX[0])
}

func TestSubviewErrors(t *testing.T) {
	reg := buildRegistry(t)

	leafReg := varreg.New()
	leafReg.Add("w", mustMeta(t, "w", "other.w", varreg.Spec{}))

	_, err := Subview(Placeholder("unknowns"), "params", leafReg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "has not been initialized")

	vec, err := NewVector(reg)
	require.NoError(t, err)
	parent, err := NewSource("unknowns", vec, reg)
	require.NoError(t, err)
	_, err = Subview(parent, "params", leafReg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "variable 'other.w' is missing from 'unknowns'")
}
