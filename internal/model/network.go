// Package model implements the stacked recurrent sequence classifier and its
// checkpoint format.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// ErrShape is returned when an input sequence does not match the bundle.
var ErrShape = errors.New("input shape mismatch")

// probability clipping applied to the cross-entropy loss
const epsilon = 1e-7

// Classifier maps a keypoint sequence to a distribution over labels.
type Classifier interface {
	// Predict returns one probability per label, summing to 1.
	Predict(seq [][]float64) ([]float64, error)
	// Classify returns the most probable label.
	Classify(seq [][]float64) (Prediction, error)
	// Bundle describes the labels and input shape the classifier expects.
	Bundle() Bundle
}

// Prediction is the arg-max of a predicted distribution.
type Prediction struct {
	Label      string  `json:"label"`
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
}

// Network is two stacked LSTM layers, each followed by dropout, and a dense
// softmax layer. The first recurrent layer feeds every step to the second;
// the second only passes on its last step.
type Network struct {
	bundle Bundle
	first  *lstm
	second *lstm
	out    *dense
}

// New creates a freshly initialized network for b. rng seeds the weights.
func New(b Bundle, rng *rand.Rand) (*Network, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	b.Labels = append([]string(nil), b.Labels...)
	return &Network{
		bundle: b,
		first:  newLSTM("lstm_1", b.FeatureWidth, b.HiddenUnits[0], rng),
		second: newLSTM("lstm_2", b.HiddenUnits[0], b.HiddenUnits[1], rng),
		out:    newDense("dense", b.HiddenUnits[1], len(b.Labels), rng),
	}, nil
}

// Bundle returns a copy of the network's bundle.
func (n *Network) Bundle() Bundle {
	b := n.bundle
	b.Labels = append([]string(nil), n.bundle.Labels...)
	return b
}

// Params returns every trainable tensor in a stable order.
func (n *Network) Params() []*Param {
	var ps []*Param
	ps = append(ps, n.first.params()...)
	ps = append(ps, n.second.params()...)
	ps = append(ps, n.out.params()...)
	return ps
}

// Predict runs inference with dropout disabled.
func (n *Network) Predict(seq [][]float64) ([]float64, error) {
	if err := n.checkShape(seq); err != nil {
		return nil, err
	}
	p, err := n.forward(seq, nil)
	if err != nil {
		return nil, err
	}
	return p.probs, nil
}

// Classify returns the arg-max label of Predict and its probability.
func (n *Network) Classify(seq [][]float64) (Prediction, error) {
	probs, err := n.Predict(seq)
	if err != nil {
		return Prediction{}, err
	}
	idx := floats.MaxIdx(probs)
	return Prediction{
		Label:      n.bundle.Labels[idx],
		Index:      idx,
		Confidence: probs[idx],
	}, nil
}

func (n *Network) checkShape(seq [][]float64) error {
	if len(seq) != n.bundle.SequenceLength {
		return fmt.Errorf("%w: got %d frames, want %d", ErrShape, len(seq), n.bundle.SequenceLength)
	}
	for t, x := range seq {
		if len(x) != n.bundle.FeatureWidth {
			return fmt.Errorf("%w: frame %d has width %d, want %d", ErrShape, t, len(x), n.bundle.FeatureWidth)
		}
	}
	return nil
}

// pass holds the activations of one forward pass.
type pass struct {
	steps1 []lstmStep
	mask1  [][]float64
	seq2   [][]float64
	steps2 []lstmStep
	mask2  []float64
	last   []float64
	probs  []float64
}

// forward runs the network. A nil rng disables dropout.
func (n *Network) forward(seq [][]float64, rng *rand.Rand) (*pass, error) {
	p := &pass{}

	var err error
	p.steps1, err = n.first.forward(seq)
	if err != nil {
		return nil, err
	}

	p.seq2 = make([][]float64, len(seq))
	if rng != nil && n.bundle.Dropout > 0 {
		p.mask1 = make([][]float64, len(seq))
	}
	for t := range p.steps1 {
		h := p.steps1[t].h
		if p.mask1 != nil {
			p.mask1[t] = dropoutMask(len(h), n.bundle.Dropout, rng)
			h = mulElem(h, p.mask1[t])
		}
		p.seq2[t] = h
	}

	p.steps2, err = n.second.forward(p.seq2)
	if err != nil {
		return nil, err
	}

	p.last = p.steps2[len(p.steps2)-1].h
	if rng != nil && n.bundle.Dropout > 0 {
		p.mask2 = dropoutMask(len(p.last), n.bundle.Dropout, rng)
		p.last = mulElem(p.last, p.mask2)
	}

	p.probs = n.out.forward(p.last)
	return p, nil
}

// backward accumulates gradients for one sample with one-hot target y.
func (n *Network) backward(p *pass, y []float64, scale float64) {
	dLogits := make([]float64, len(p.probs))
	for k := range dLogits {
		dLogits[k] = (p.probs[k] - y[k]) * scale
	}

	dLast := n.out.backward(p.last, dLogits)
	if p.mask2 != nil {
		dLast = mulElem(dLast, p.mask2)
	}

	dhs2 := make([][]float64, len(p.steps2))
	dhs2[len(dhs2)-1] = dLast
	dSeq2 := n.second.backward(p.steps2, dhs2)

	if p.mask1 != nil {
		for t := range dSeq2 {
			dSeq2[t] = mulElem(dSeq2[t], p.mask1[t])
		}
	}
	n.first.backward(p.steps1, dSeq2)
}

// Gradients runs forward and backward over a batch, leaving the mean
// gradient of the regularized loss in every Param's G. A nil rng disables
// dropout. It returns the regularized mean loss and the number of samples
// whose arg-max matches the target.
func (n *Network) Gradients(xs [][][]float64, ys [][]float64, rng *rand.Rand) (float64, int, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return 0, 0, fmt.Errorf("%w: %d inputs, %d targets", ErrShape, len(xs), len(ys))
	}

	params := n.Params()
	for _, p := range params {
		p.ZeroGrad()
	}

	scale := 1 / float64(len(xs))
	var loss float64
	var correct int
	for i, x := range xs {
		if err := n.checkShape(x); err != nil {
			return 0, 0, err
		}
		p, err := n.forward(x, rng)
		if err != nil {
			return 0, 0, err
		}
		loss += crossEntropy(p.probs, ys[i])
		if floats.MaxIdx(p.probs) == floats.MaxIdx(ys[i]) {
			correct++
		}
		n.backward(p, ys[i], scale)
	}

	if n.bundle.L2 > 0 {
		for _, p := range params {
			if p.Decay {
				floats.AddScaled(p.G, 2*n.bundle.L2, p.W)
			}
		}
	}
	return loss*scale + n.penalty(), correct, nil
}

// Evaluate returns the regularized mean loss and categorical accuracy of
// the batch with dropout disabled.
func (n *Network) Evaluate(xs [][][]float64, ys [][]float64) (float64, float64, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return 0, 0, fmt.Errorf("%w: %d inputs, %d targets", ErrShape, len(xs), len(ys))
	}

	var loss float64
	var correct int
	for i, x := range xs {
		probs, err := n.Predict(x)
		if err != nil {
			return 0, 0, err
		}
		loss += crossEntropy(probs, ys[i])
		if floats.MaxIdx(probs) == floats.MaxIdx(ys[i]) {
			correct++
		}
	}
	total := float64(len(xs))
	return loss/total + n.penalty(), float64(correct) / total, nil
}

// penalty is the L2 term added to the loss.
func (n *Network) penalty() float64 {
	if n.bundle.L2 == 0 {
		return 0
	}
	var sum float64
	for _, p := range n.Params() {
		if p.Decay {
			sum += floats.Dot(p.W, p.W)
		}
	}
	return n.bundle.L2 * sum
}

// Weights is a detached copy of every parameter, keyed by name.
type Weights map[string][]float64

// Snapshot copies the current weights.
func (n *Network) Snapshot() Weights {
	w := make(Weights)
	for _, p := range n.Params() {
		w[p.Name] = append([]float64(nil), p.W...)
	}
	return w
}

// Restore overwrites the weights from a snapshot.
func (n *Network) Restore(w Weights) error {
	for _, p := range n.Params() {
		data, ok := w[p.Name]
		if !ok {
			return fmt.Errorf("missing tensor %s", p.Name)
		}
		if len(data) != len(p.W) {
			return fmt.Errorf("tensor %s has %d values, want %d", p.Name, len(data), len(p.W))
		}
		copy(p.W, data)
	}
	return nil
}

func crossEntropy(probs, y []float64) float64 {
	var loss float64
	for k, t := range y {
		if t == 0 {
			continue
		}
		p := math.Min(math.Max(probs[k], epsilon), 1-epsilon)
		loss -= t * math.Log(p)
	}
	return loss
}

// dropoutMask draws an inverted-dropout mask: each unit is kept with
// probability 1-rate and scaled by 1/(1-rate).
func dropoutMask(n int, rate float64, rng *rand.Rand) []float64 {
	mask := make([]float64, n)
	keep := 1 / (1 - rate)
	for i := range mask {
		if rng.Float64() >= rate {
			mask[i] = keep
		}
	}
	return mask
}

func mulElem(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}
