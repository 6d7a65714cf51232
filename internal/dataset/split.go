package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrTooFewSamples is returned when a stratified split cannot give every
// label at least one sample on both sides.
var ErrTooFewSamples = errors.New("too few samples to split")

// StratifiedSplit partitions sample indices into a training and a
// validation set so that each label keeps roughly its share in both. The
// validation set holds ceil(fraction*len(ys)) samples. The result depends
// only on ys, fraction and seed.
func StratifiedSplit(ys []int, numClasses int, fraction float64, seed int64) (train, val []int, err error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction %v outside (0,1)", fraction)
	}

	byClass := make([][]int, numClasses)
	for i, y := range ys {
		if y < 0 || y >= numClasses {
			return nil, nil, fmt.Errorf("label index %d out of range", y)
		}
		byClass[y] = append(byClass[y], i)
	}

	n := len(ys)
	nVal := int(math.Ceil(fraction * float64(n)))
	nTrain := n - nVal
	if nVal < numClasses || nTrain < numClasses {
		return nil, nil, fmt.Errorf("%w: %d samples cannot cover %d labels in a %d/%d split", ErrTooFewSamples, n, numClasses, nTrain, nVal)
	}
	for c, idx := range byClass {
		if len(idx) < 2 {
			return nil, nil, fmt.Errorf("%w: label %d has %d samples, need at least 2", ErrTooFewSamples, c, len(idx))
		}
	}

	alloc := allocate(byClass, nVal, n)
	rng := rand.New(rand.NewSource(seed))
	for c, idx := range byClass {
		perm := append([]int(nil), idx...)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		val = append(val, perm[:alloc[c]]...)
		train = append(train, perm[alloc[c]:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(val), func(i, j int) { val[i], val[j] = val[j], val[i] })
	return train, val, nil
}

// allocate distributes nVal validation slots across classes in proportion
// to their size, handing leftovers to the largest remainders. Every class
// gets at least one slot and keeps at least one training sample.
func allocate(byClass [][]int, nVal, n int) []int {
	type rem struct {
		class int
		frac  float64
	}
	alloc := make([]int, len(byClass))
	var rems []rem
	assigned := 0
	for c, idx := range byClass {
		exact := float64(len(idx)) * float64(nVal) / float64(n)
		alloc[c] = int(math.Floor(exact))
		if alloc[c] < 1 {
			alloc[c] = 1
		}
		if alloc[c] > len(idx)-1 {
			alloc[c] = len(idx) - 1
		}
		assigned += alloc[c]
		rems = append(rems, rem{class: c, frac: exact - math.Floor(exact)})
	}

	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for assigned < nVal {
		progressed := false
		for _, r := range rems {
			if assigned == nVal {
				break
			}
			if alloc[r.class] < len(byClass[r.class])-1 {
				alloc[r.class]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	for assigned > nVal {
		progressed := false
		for i := len(rems) - 1; i >= 0 && assigned > nVal; i-- {
			c := rems[i].class
			if alloc[c] > 1 {
				alloc[c]--
				assigned--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return alloc
}

// Subset picks xs and ys at the given indices.
func Subset(xs [][][]float64, ys [][]float64, idx []int) ([][][]float64, [][]float64) {
	sx := make([][][]float64, len(idx))
	sy := make([][]float64, len(idx))
	for i, j := range idx {
		sx[i] = xs[j]
		sy[i] = ys[j]
	}
	return sx, sy
}

// AddNoise returns a copy of xs with independent Gaussian noise of the
// given standard deviation added to every value. xs is not modified.
func AddNoise(xs [][][]float64, stddev float64, seed int64) [][][]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][][]float64, len(xs))
	for i, seq := range xs {
		out[i] = make([][]float64, len(seq))
		for t, frame := range seq {
			noisy := make([]float64, len(frame))
			for k, v := range frame {
				noisy[k] = v + rng.NormFloat64()*stddev
			}
			out[i][t] = noisy
		}
	}
	return out
}
