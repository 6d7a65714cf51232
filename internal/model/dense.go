package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// dense is a fully-connected output layer followed by softmax.
type dense struct {
	in, out int
	kernel  *Param // out x in
	bias    *Param // out x 1
}

func newDense(name string, in, out int, rng *rand.Rand) *dense {
	d := &dense{
		in:     in,
		out:    out,
		kernel: newParam(name+"/kernel", out, in),
		bias:   newParam(name+"/bias", out, 1),
	}
	d.kernel.glorotUniform(in, out, rng)
	return d
}

func (d *dense) params() []*Param {
	return []*Param{d.kernel, d.bias}
}

// forward returns the softmax distribution for input x.
func (d *dense) forward(x []float64) []float64 {
	logits := make([]float64, d.out)
	mat.NewVecDense(d.out, logits).MulVec(d.kernel.Matrix(), mat.NewVecDense(d.in, x))
	floats.Add(logits, d.bias.W)
	return softmax(logits)
}

// backward accumulates gradients given dLogits and returns the gradient
// with respect to x.
func (d *dense) backward(x, dLogits []float64) []float64 {
	dv := mat.NewVecDense(d.out, dLogits)
	dKernel := d.kernel.Grad()
	dKernel.RankOne(dKernel, 1, dv, mat.NewVecDense(d.in, x))
	floats.Add(d.bias.G, dLogits)

	dx := make([]float64, d.in)
	mat.NewVecDense(d.in, dx).MulVec(d.kernel.Matrix().T(), dv)
	return dx
}

// softmax normalizes logits in place into a probability distribution.
func softmax(logits []float64) []float64 {
	m := floats.Max(logits)
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - m)
		logits[i] = e
		sum += e
	}
	floats.Scale(1/sum, logits)
	return logits
}
