package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is a trainable weight tensor and its gradient accumulator.
// W and G are row-major and back the matrices returned by Matrix and Grad.
type Param struct {
	Name       string
	Rows, Cols int
	W          []float64
	G          []float64

	// Decay marks kernels that carry the L2 penalty.
	Decay bool
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name: name,
		Rows: rows,
		Cols: cols,
		W:    make([]float64, rows*cols),
		G:    make([]float64, rows*cols),
	}
}

// Matrix returns a view of the weights.
func (p *Param) Matrix() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.W)
}

// Grad returns a view of the gradient accumulator.
func (p *Param) Grad() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.G)
}

// ZeroGrad clears the gradient accumulator.
func (p *Param) ZeroGrad() {
	for i := range p.G {
		p.G[i] = 0
	}
}

// glorotUniform fills p from U(-limit, limit) with limit = sqrt(6 / (fanIn + fanOut)).
func (p *Param) glorotUniform(fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range p.W {
		p.W[i] = (2*rng.Float64() - 1) * limit
	}
}
