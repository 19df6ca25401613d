package deriv

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Key identifies one Jacobian block: the derivative of an unknown with
// respect to a parameter (or implicit state).
type Key struct {
	Unknown string
	Param   string
}

// Block is a dense rectangular Jacobian block in row-major order. Zero-sized
// blocks are legal; the merge protocol uses them to mark pairs whose values
// live on another process.
type Block struct {
	Rows int
	Cols int
	Data []float64
}

// NewBlock allocates a zeroed block. Either dimension may be zero.
func NewBlock(rows, cols int) *Block {
	return &Block{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// NewBlockData wraps existing row-major data.
func NewBlockData(rows, cols int, data []float64) (*Block, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("block of %dx%d needs %d elements, got %d", rows, cols, rows*cols, len(data))
	}
	return &Block{Rows: rows, Cols: cols, Data: data}, nil
}

// Empty reports whether the block holds no values.
func (b *Block) Empty() bool {
	return b.Rows == 0 || b.Cols == 0
}

// At returns the element at (i, j).
func (b *Block) At(i, j int) float64 {
	return b.Data[i*b.Cols+j]
}

// Set assigns the element at (i, j).
func (b *Block) Set(i, j int, v float64) {
	b.Data[i*b.Cols+j] = v
}

// SetCol assigns one column of the block.
func (b *Block) SetCol(j int, col []float64) {
	for i, v := range col {
		b.Data[i*b.Cols+j] = v
	}
}

// Dense returns the block as a gonum matrix sharing the same storage.
// Empty blocks have no matrix representation and return nil.
func (b *Block) Dense() *mat.Dense {
	if b.Empty() {
		return nil
	}
	return mat.NewDense(b.Rows, b.Cols, b.Data)
}

// Clone deep-copies the block.
func (b *Block) Clone() *Block {
	data := make([]float64, len(b.Data))
	copy(data, b.Data)
	return &Block{Rows: b.Rows, Cols: b.Cols, Data: data}
}

// Jacobian maps (unknown, parameter) pairs to dense blocks.
type Jacobian map[Key]*Block

// Keys returns the Jacobian's keys ordered by unknown then parameter, so
// that cross-process exchanges are deterministic.
func (j Jacobian) Keys() []Key {
	keys := make([]Key, 0, len(j))
	for k := range j {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].Unknown != keys[b].Unknown {
			return keys[a].Unknown < keys[b].Unknown
		}
		return keys[a].Param < keys[b].Param
	})
	return keys
}

// Nested converts the flat pair map into the unknown -> parameter -> block
// form consumed by the derivative query surface.
func (j Jacobian) Nested() map[string]map[string]*Block {
	out := make(map[string]map[string]*Block)
	for k, b := range j {
		inner, ok := out[k.Unknown]
		if !ok {
			inner = make(map[string]*Block)
			out[k.Unknown] = inner
		}
		inner[k.Param] = b
	}
	return out
}
