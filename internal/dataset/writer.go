package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// WriteSample stores seq as <root>/<label>/<id>/sequence.npy, creating the
// directories as needed. It is the inverse of what Loader reads.
func WriteSample(root, label, id string, seq [][]float64) (string, error) {
	if len(seq) == 0 || len(seq[0]) == 0 {
		return "", errors.New("empty sequence")
	}
	cols := len(seq[0])
	data := make([]float64, 0, len(seq)*cols)
	for t, frame := range seq {
		if len(frame) != cols {
			return "", fmt.Errorf("frame %d has width %d, want %d", t, len(frame), cols)
		}
		data = append(data, frame...)
	}

	dir := filepath.Join(root, label, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create sample dir: %w", err)
	}
	path := filepath.Join(dir, SequenceFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := npyio.Write(f, mat.NewDense(len(seq), cols, data)); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}

// NextSampleID returns one past the largest numeric sample id under
// <root>/<label>, or "0" when there is none.
func NextSampleID(root, label string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(root, label))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "0", nil
		}
		return "", err
	}
	next := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil && n >= next {
			next = n + 1
		}
	}
	return strconv.Itoa(next), nil
}
