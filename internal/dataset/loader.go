package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sbinet/npyio"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mubayin/signseq/internal/features"
)

// SequenceFile is the per-sample array file name.
const SequenceFile = "sequence.npy"

// Config configures a Loader.
type Config struct {
	// Labels are the label directory names, in output order.
	Labels []string
	// Layout fixes the accepted frame width.
	Layout features.Layout
	// SequenceLength is the accepted number of frames per sample.
	SequenceLength int
	// Normalize applies wrist normalization to every frame.
	Normalize bool
	Logger    *zap.Logger
}

// Loader reads <root>/<label>/<sample-id>/sequence.npy trees.
type Loader struct {
	cfg   Config
	width int
	log   *zap.Logger
}

// NewLoader validates cfg and returns a Loader.
func NewLoader(cfg Config) (*Loader, error) {
	if len(cfg.Labels) == 0 {
		return nil, errors.New("dataset: no labels")
	}
	if _, err := features.ParseLayout(string(cfg.Layout)); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if cfg.SequenceLength <= 0 {
		return nil, errors.New("dataset: sequence length must be positive")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{cfg: cfg, width: cfg.Layout.Width(), log: log}, nil
}

// Load reads one dataset folder. Missing label directories are skipped
// silently; unreadable or mis-shaped samples are skipped and counted.
func (l *Loader) Load(ctx context.Context, root string) (*Dataset, error) {
	ds := newDataset(l.cfg.Labels)

	for idx, label := range l.cfg.Labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		labelDir := filepath.Join(root, label)
		entries, err := os.ReadDir(labelDir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read label dir %s: %w", labelDir, err)
		}

		var ids []string
		for _, e := range entries {
			if e.IsDir() {
				ids = append(ids, e.Name())
			}
		}
		sortSampleIDs(ids)

		for _, id := range ids {
			path := filepath.Join(labelDir, id, SequenceFile)
			seq, reason, err := l.readSequence(path)
			if err != nil {
				ds.Skipped[reason]++
				l.log.Debug("skipping sample", zap.String("path", path), zap.String("reason", string(reason)), zap.Error(err))
				continue
			}
			ds.Samples = append(ds.Samples, Sample{Sequence: seq, Label: idx, Source: path})
		}
	}

	l.log.Info("loaded dataset folder",
		zap.String("root", root),
		zap.Int("samples", ds.Len()),
		zap.Int("skipped", ds.SkippedTotal()),
	)
	return ds, nil
}

// LoadAll loads several folders concurrently and concatenates them in the
// order given.
func (l *Loader) LoadAll(ctx context.Context, roots ...string) (*Dataset, error) {
	parts := make([]*Dataset, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	for i, root := range roots {
		i, root := i, root
		g.Go(func() error {
			ds, err := l.Load(ctx, root)
			if err != nil {
				return err
			}
			parts[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := newDataset(l.cfg.Labels)
	for _, p := range parts {
		out.merge(p)
	}
	return out, nil
}

func (l *Loader) readSequence(path string) ([][]float64, SkipReason, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, SkipMissing, err
	}
	defer f.Close()

	raw, rows, cols, err := readMatrix(f)
	if err != nil {
		return nil, SkipCorrupt, err
	}
	if cols != l.width {
		return nil, SkipWidth, fmt.Errorf("width %d, want %d", cols, l.width)
	}
	if rows != l.cfg.SequenceLength {
		return nil, SkipLength, fmt.Errorf("length %d, want %d", rows, l.cfg.SequenceLength)
	}

	seq := make([][]float64, rows)
	for t := range seq {
		frame := raw[t*cols : (t+1)*cols]
		if l.cfg.Normalize {
			frame = features.NormalizeHands(l.cfg.Layout, frame)
		}
		seq[t] = frame
	}
	return seq, "", nil
}

// readMatrix decodes a two-dimensional float array in row-major order.
func readMatrix(f *os.File) ([]float64, int, int, error) {
	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, 0, 0, err
	}

	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, 0, 0, fmt.Errorf("array has %d dimensions, want 2", len(shape))
	}
	rows, cols := shape[0], shape[1]

	var raw []float64
	switch r.Header.Descr.Type {
	case "<f8", "f8", "float64":
		raw = make([]float64, rows*cols)
		if err := r.Read(&raw); err != nil {
			return nil, 0, 0, err
		}
	case "<f4", "f4", "float32":
		tmp := make([]float32, rows*cols)
		if err := r.Read(&tmp); err != nil {
			return nil, 0, 0, err
		}
		raw = make([]float64, len(tmp))
		for i, v := range tmp {
			raw[i] = float64(v)
		}
	default:
		return nil, 0, 0, fmt.Errorf("unsupported dtype %q", r.Header.Descr.Type)
	}

	if r.Header.Descr.Fortran {
		rowMajor := make([]float64, len(raw))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				rowMajor[i*cols+j] = raw[j*rows+i]
			}
		}
		raw = rowMajor
	}
	return raw, rows, cols, nil
}

// sortSampleIDs orders numeric ids numerically and the rest lexically after them.
func sortSampleIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return ids[i] < ids[j]
	})
}
