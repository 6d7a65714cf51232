// Package testdata generates frames and keypoint datasets for tests.
package testdata

import (
	"fmt"
	"math/rand"

	"gocv.io/x/gocv"

	"github.com/mubayin/signseq/internal/dataset"
)

// JPEGFrame encodes a w x h frame filled with one gray shade.
func JPEGFrame(w, h int, shade uint8) ([]byte, error) {
	img := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(float64(shade), float64(shade), float64(shade), 0))

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Sequence returns rows frames of cols values, all equal to v.
func Sequence(rows, cols int, v float64) [][]float64 {
	seq := make([][]float64, rows)
	for t := range seq {
		seq[t] = make([]float64, cols)
		for k := range seq[t] {
			seq[t][k] = v
		}
	}
	return seq
}

// WriteDataset writes perLabel sequences for every label under root in the
// layout the dataset loader reads. Each label gets its own mean value plus
// a little seeded jitter, so the classes are separable.
func WriteDataset(root string, labels []string, perLabel, seqLen, width int, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for li, label := range labels {
		mean := float64(li+1) / float64(len(labels)+1)
		for i := 0; i < perLabel; i++ {
			seq := Sequence(seqLen, width, mean)
			for _, frame := range seq {
				for k := range frame {
					frame[k] += rng.NormFloat64() * 0.01
				}
			}
			if _, err := dataset.WriteSample(root, label, fmt.Sprint(i), seq); err != nil {
				return err
			}
		}
	}
	return nil
}
