package model

import (
	"errors"
	"fmt"

	"github.com/mubayin/signseq/internal/features"
)

// BundleVersion is the checkpoint format version written by Save.
const BundleVersion = 1

// Bundle ties a set of weights to the label table, keypoint layout and
// architecture they were trained with. Serving refuses input that does not
// match it.
type Bundle struct {
	Version        int             `json:"version"`
	Labels         []string        `json:"labels"`
	Layout         features.Layout `json:"layout"`
	FeatureWidth   int             `json:"feature_width"`
	SequenceLength int             `json:"sequence_length"`
	Normalize      bool            `json:"normalize"`
	HiddenUnits    [2]int          `json:"hidden_units"`
	Dropout        float64         `json:"dropout"`
	L2             float64         `json:"l2"`
}

// DefaultBundle returns the hands-only architecture: 5 frames of 126 values,
// two 64-unit recurrent layers, dropout 0.5 and an L2 factor of 0.001.
func DefaultBundle(labels []string) Bundle {
	return Bundle{
		Version:        BundleVersion,
		Labels:         append([]string(nil), labels...),
		Layout:         features.LayoutHands,
		FeatureWidth:   features.HandsWidth,
		SequenceLength: 5,
		HiddenUnits:    [2]int{64, 64},
		Dropout:        0.5,
		L2:             0.001,
	}
}

// Validate checks the bundle is internally consistent.
func (b Bundle) Validate() error {
	if b.Version != BundleVersion {
		return fmt.Errorf("unsupported bundle version %d", b.Version)
	}
	if len(b.Labels) < 2 {
		return errors.New("bundle needs at least two labels")
	}
	if _, err := features.ParseLayout(string(b.Layout)); err != nil {
		return err
	}
	if b.FeatureWidth != b.Layout.Width() {
		return fmt.Errorf("feature width %d does not match layout %s (%d)", b.FeatureWidth, b.Layout, b.Layout.Width())
	}
	if b.SequenceLength <= 0 {
		return errors.New("sequence length must be positive")
	}
	if b.HiddenUnits[0] <= 0 || b.HiddenUnits[1] <= 0 {
		return errors.New("hidden units must be positive")
	}
	if b.Dropout < 0 || b.Dropout >= 1 {
		return errors.New("dropout must be in [0,1)")
	}
	if b.L2 < 0 {
		return errors.New("l2 must not be negative")
	}
	return nil
}

// LabelIndex returns the output index of label, or -1.
func (b Bundle) LabelIndex(label string) int {
	for i, l := range b.Labels {
		if l == label {
			return i
		}
	}
	return -1
}
