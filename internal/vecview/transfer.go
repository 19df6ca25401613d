package vecview

import "github.com/briantomko/OpenMDAO/internal/units"

// xferItem moves one connection's worth of data from source storage into a
// target staging slice.
type xferItem struct {
	src     []float64
	dst     []float64
	indices []int
	conv    *units.Conversion
}

// Transfer is the explicit source-to-target copy step for one target view.
// It is built once at setup and reused every iteration.
type Transfer struct {
	items []xferItem
}

// NewTransfer scans the target view's bindings and resolves each one against
// the source view. Aliased (passthrough) slots and slots with no local
// storage on either side need no copying and produce no items.
func NewTransfer(tgt, src *View) *Transfer {
	t := &Transfer{}
	for _, key := range tgt.order {
		slot := tgt.slots[key]
		if slot.Binding == nil || slot.aliased || len(slot.Val) == 0 {
			continue
		}
		srcSlot, ok := src.byPath[slot.Binding.SrcPath]
		if !ok || len(srcSlot.Val) == 0 {
			// Source is remote to this partition; the cross-partition move
			// belongs to the process-level exchange, not this transfer.
			continue
		}
		t.items = append(t.items, xferItem{
			src:     srcSlot.Val,
			dst:     slot.Val,
			indices: slot.Binding.Indices,
			conv:    slot.Binding.Conv,
		})
	}
	return t
}

// Do copies source values into target staging, applying index subsets and
// the full (factor, offset) unit conversion.
func (t *Transfer) Do() {
	for _, it := range t.items {
		if len(it.indices) > 0 {
			for i, idx := range it.indices {
				it.dst[i] = it.src[idx]
			}
		} else {
			copy(it.dst, it.src)
		}
		if it.conv != nil {
			for i := range it.dst {
				it.dst[i] = it.conv.Apply(it.dst[i])
			}
		}
	}
}

// DoDeriv is Do for directional-derivative vectors: unit conversion applies
// its factor only, since offsets vanish under differentiation.
func (t *Transfer) DoDeriv() {
	for _, it := range t.items {
		if len(it.indices) > 0 {
			for i, idx := range it.indices {
				it.dst[i] = it.src[idx]
			}
		} else {
			copy(it.dst, it.src)
		}
		if it.conv != nil {
			for i := range it.dst {
				it.dst[i] = it.conv.ApplyDeriv(it.dst[i])
			}
		}
	}
}

// Reverse accumulates target-side adjoint values back onto the source,
// scattering through the index subset and scaling by the conversion factor.
// Only derivative vectors flow backwards, so offsets never apply.
func (t *Transfer) Reverse() {
	for _, it := range t.items {
		factor := 1.0
		if it.conv != nil {
			factor = it.conv.Factor
		}
		if len(it.indices) > 0 {
			for i, idx := range it.indices {
				it.src[idx] += factor * it.dst[i]
			}
		} else {
			for i := range it.dst {
				it.src[i] += factor * it.dst[i]
			}
		}
	}
}
