package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// lstm is a single long short-term memory layer. Gate blocks inside the
// kernel, recurrent kernel and bias are ordered input, forget, cell, output.
type lstm struct {
	in, units int
	kernel    *Param // 4*units x in
	recurrent *Param // 4*units x units
	bias      *Param // 4*units x 1
}

// lstmStep caches everything the backward pass needs for one time step.
type lstmStep struct {
	x, hPrev, cPrev []float64
	i, f, g, o      []float64
	c, tc, h        []float64
}

func newLSTM(name string, in, units int, rng *rand.Rand) *lstm {
	l := &lstm{
		in:        in,
		units:     units,
		kernel:    newParam(name+"/kernel", 4*units, in),
		recurrent: newParam(name+"/recurrent_kernel", 4*units, units),
		bias:      newParam(name+"/bias", 4*units, 1),
	}
	l.kernel.Decay = true
	l.kernel.glorotUniform(in, 4*units, rng)
	l.recurrent.glorotUniform(units, 4*units, rng)

	// Forget gate starts open.
	for k := units; k < 2*units; k++ {
		l.bias.W[k] = 1
	}
	return l
}

func (l *lstm) params() []*Param {
	return []*Param{l.kernel, l.recurrent, l.bias}
}

// forward runs the layer over xs from a zero state and returns one cached
// step per input.
func (l *lstm) forward(xs [][]float64) ([]lstmStep, error) {
	u := l.units
	kernel := l.kernel.Matrix()
	recurrent := l.recurrent.Matrix()

	h := make([]float64, u)
	c := make([]float64, u)
	z := make([]float64, 4*u)
	rec := make([]float64, 4*u)

	steps := make([]lstmStep, len(xs))
	for t, x := range xs {
		if len(x) != l.in {
			return nil, fmt.Errorf("%w: step %d has width %d, want %d", ErrShape, t, len(x), l.in)
		}

		zv := mat.NewVecDense(4*u, z)
		zv.MulVec(kernel, mat.NewVecDense(l.in, x))
		rv := mat.NewVecDense(4*u, rec)
		rv.MulVec(recurrent, mat.NewVecDense(u, h))
		floats.Add(z, rec)
		floats.Add(z, l.bias.W)

		s := lstmStep{
			x:     x,
			hPrev: h,
			cPrev: c,
			i:     make([]float64, u),
			f:     make([]float64, u),
			g:     make([]float64, u),
			o:     make([]float64, u),
			c:     make([]float64, u),
			tc:    make([]float64, u),
			h:     make([]float64, u),
		}
		for k := 0; k < u; k++ {
			s.i[k] = sigmoid(z[k])
			s.f[k] = sigmoid(z[u+k])
			s.g[k] = math.Tanh(z[2*u+k])
			s.o[k] = sigmoid(z[3*u+k])
			s.c[k] = s.f[k]*c[k] + s.i[k]*s.g[k]
			s.tc[k] = math.Tanh(s.c[k])
			s.h[k] = s.o[k] * s.tc[k]
		}
		steps[t] = s
		h, c = s.h, s.c
	}
	return steps, nil
}

// backward accumulates parameter gradients by backpropagation through time.
// dhs[t] is the loss gradient with respect to the output of step t; nil
// entries are treated as zero. It returns the gradient for every input.
func (l *lstm) backward(steps []lstmStep, dhs [][]float64) [][]float64 {
	u := l.units
	kernel := l.kernel.Matrix()
	recurrent := l.recurrent.Matrix()
	dKernel := l.kernel.Grad()
	dRecurrent := l.recurrent.Grad()

	dhNext := make([]float64, u)
	dcNext := make([]float64, u)
	dz := make([]float64, 4*u)
	dxs := make([][]float64, len(steps))

	for t := len(steps) - 1; t >= 0; t-- {
		s := steps[t]

		dh := dhNext
		if dhs[t] != nil {
			floats.Add(dh, dhs[t])
		}

		for k := 0; k < u; k++ {
			do := dh[k] * s.tc[k]
			dc := dh[k]*s.o[k]*(1-s.tc[k]*s.tc[k]) + dcNext[k]
			di := dc * s.g[k]
			dg := dc * s.i[k]
			df := dc * s.cPrev[k]
			dcNext[k] = dc * s.f[k]

			dz[k] = di * s.i[k] * (1 - s.i[k])
			dz[u+k] = df * s.f[k] * (1 - s.f[k])
			dz[2*u+k] = dg * (1 - s.g[k]*s.g[k])
			dz[3*u+k] = do * s.o[k] * (1 - s.o[k])
		}

		dzv := mat.NewVecDense(4*u, dz)
		dKernel.RankOne(dKernel, 1, dzv, mat.NewVecDense(l.in, s.x))
		dRecurrent.RankOne(dRecurrent, 1, dzv, mat.NewVecDense(u, s.hPrev))
		floats.Add(l.bias.G, dz)

		dx := make([]float64, l.in)
		mat.NewVecDense(l.in, dx).MulVec(kernel.T(), dzv)
		dxs[t] = dx

		dhNext = make([]float64, u)
		mat.NewVecDense(u, dhNext).MulVec(recurrent.T(), dzv)
	}
	return dxs
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
