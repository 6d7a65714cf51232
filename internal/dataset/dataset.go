// Package dataset loads labeled keypoint sequences from disk and prepares
// them for training.
package dataset

import (
	"sort"
)

// SkipReason classifies why a sample directory was not loaded.
type SkipReason string

const (
	// SkipMissing is a sample directory without a sequence file.
	SkipMissing SkipReason = "missing"
	// SkipCorrupt is a sequence file that could not be decoded.
	SkipCorrupt SkipReason = "corrupt"
	// SkipWidth is an array whose frame width differs from the layout width.
	SkipWidth SkipReason = "width"
	// SkipLength is an array whose frame count differs from the sequence length.
	SkipLength SkipReason = "length"
)

// Sample is one labeled keypoint sequence.
type Sample struct {
	Sequence [][]float64
	Label    int
	Source   string
}

// Dataset is the read-only result of a load. Samples are grouped by label
// in label order.
type Dataset struct {
	Labels  []string
	Samples []Sample
	Skipped map[SkipReason]int
}

func newDataset(labels []string) *Dataset {
	return &Dataset{
		Labels:  append([]string(nil), labels...),
		Skipped: make(map[SkipReason]int),
	}
}

// Len returns the number of loaded samples.
func (d *Dataset) Len() int {
	return len(d.Samples)
}

// SkippedTotal returns how many sample directories were rejected.
func (d *Dataset) SkippedTotal() int {
	var n int
	for _, c := range d.Skipped {
		n += c
	}
	return n
}

// Counts returns the number of samples per label index.
func (d *Dataset) Counts() []int {
	counts := make([]int, len(d.Labels))
	for _, s := range d.Samples {
		counts[s.Label]++
	}
	return counts
}

// Arrays returns the sequences and their label indices as parallel slices.
func (d *Dataset) Arrays() ([][][]float64, []int) {
	xs := make([][][]float64, len(d.Samples))
	ys := make([]int, len(d.Samples))
	for i, s := range d.Samples {
		xs[i] = s.Sequence
		ys[i] = s.Label
	}
	return xs, ys
}

// merge appends other's samples and skip counts, then regroups samples by
// label keeping each label's relative order.
func (d *Dataset) merge(other *Dataset) {
	d.Samples = append(d.Samples, other.Samples...)
	for r, c := range other.Skipped {
		d.Skipped[r] += c
	}
	sort.SliceStable(d.Samples, func(i, j int) bool {
		return d.Samples[i].Label < d.Samples[j].Label
	})
}

// OneHot encodes label indices as rows of a numClasses-wide indicator matrix.
func OneHot(ys []int, numClasses int) [][]float64 {
	out := make([][]float64, len(ys))
	for i, y := range ys {
		row := make([]float64, numClasses)
		if y >= 0 && y < numClasses {
			row[y] = 1
		}
		out[i] = row
	}
	return out
}
