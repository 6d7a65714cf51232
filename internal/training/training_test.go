package training

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mubayin/signseq/internal/config"
	"github.com/mubayin/signseq/internal/dataset"
	"github.com/mubayin/signseq/internal/features"
	"github.com/mubayin/signseq/internal/model"
	"github.com/mubayin/signseq/internal/store"
)

func testBundle(labels ...string) model.Bundle {
	b := model.DefaultBundle(labels)
	b.HiddenUnits = [2]int{4, 4}
	return b
}

// writeClass writes n samples for label whose active block of features
// depends on the label index.
func writeClass(t *testing.T, root, label string, idx, n int, rng *rand.Rand) {
	t.Helper()
	for i := 0; i < n; i++ {
		seq := make([][]float64, 5)
		for f := range seq {
			seq[f] = make([]float64, features.HandsWidth)
			for k := idx * 20; k < idx*20+20; k++ {
				seq[f][k] = 0.5 + 0.1*rng.Float64()
			}
		}
		_, err := dataset.WriteSample(root, label, string(rune('a'+i)), seq)
		require.NoError(t, err)
	}
}

func testOptions(folders ...string) Options {
	fit := DefaultFitConfig()
	fit.Epochs = 3
	return Options{
		Folders:         folders,
		Bundle:          testBundle("hello", "yes"),
		Fit:             fit,
		NoiseStddev:     0.01,
		ValidationSplit: 0.1,
		SplitSeed:       42,
		InitSeed:        42,
		NoiseSeed:       43,
	}
}

func TestRun_TrainsAndSaves(t *testing.T) {
	root := t.TempDir()
	rng := rand.New(rand.NewSource(1))
	writeClass(t, root, "hello", 0, 10, rng)
	writeClass(t, root, "yes", 1, 10, rng)

	s, err := store.New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	var seen []int
	opts := testOptions(root, filepath.Join(root, "missing"))
	opts.Checkpoint = filepath.Join(t.TempDir(), "model", "ck.json")
	opts.Store = s
	opts.Fit.OnEpoch = func(e EpochStats) { seen = append(seen, e.Epoch) }

	rep, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 20, rep.Samples)
	assert.Len(t, rep.ValIdx, 2)
	assert.Len(t, rep.TrainIdx, 18)
	assert.Equal(t, []int{1, 2, 3}, seen)

	loaded, err := model.Load(opts.Checkpoint)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "yes"}, loaded.Bundle().Labels)

	run, err := s.Runs().GetByID(rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, 20, run.Samples)
	assert.Equal(t, rep.History.BestEpoch, run.BestEpoch)
	assert.Equal(t, opts.Checkpoint, run.Checkpoint)

	epochs, err := s.Epochs().ListByRun(rep.RunID)
	require.NoError(t, err)
	assert.Len(t, epochs, len(rep.History.Epochs))
}

func TestRun_ValidationIndependentOfNoiseSeed(t *testing.T) {
	root := t.TempDir()
	rng := rand.New(rand.NewSource(2))
	writeClass(t, root, "hello", 0, 12, rng)
	writeClass(t, root, "yes", 1, 8, rng)

	a := testOptions(root)
	a.Fit.Epochs = 1
	b := a
	b.NoiseSeed = 1234

	repA, err := Run(context.Background(), a)
	require.NoError(t, err)
	repB, err := Run(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, repA.ValIdx, repB.ValIdx)
	assert.Equal(t, repA.TrainIdx, repB.TrainIdx)

	// validation tensors are the untouched source samples
	loader, err := dataset.NewLoader(dataset.Config{
		Labels:         a.Bundle.Labels,
		Layout:         a.Bundle.Layout,
		SequenceLength: a.Bundle.SequenceLength,
	})
	require.NoError(t, err)
	ds, err := loader.LoadAll(context.Background(), root)
	require.NoError(t, err)
	xs, labels := ds.Arrays()
	wantX, wantY := dataset.Subset(xs, dataset.OneHot(labels, 2), repA.ValIdx)
	assert.Equal(t, wantX, repA.ValX)
	assert.Equal(t, wantX, repB.ValX)
	assert.Equal(t, wantY, repB.ValY)

	// so fixed weights score both runs' validation sets identically
	net, err := model.New(a.Bundle, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	lossA, accA, err := net.Evaluate(repA.ValX, repA.ValY)
	require.NoError(t, err)
	lossB, accB, err := net.Evaluate(repB.ValX, repB.ValY)
	require.NoError(t, err)
	assert.Equal(t, lossA, lossB)
	assert.Equal(t, accA, accB)
}

func TestRun_FailsFast(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	t.Run("empty dataset", func(t *testing.T) {
		_, err := Run(context.Background(), testOptions(t.TempDir()))
		assert.True(t, errors.Is(err, ErrEmptyDataset), "got %v", err)
	})

	t.Run("missing label", func(t *testing.T) {
		root := t.TempDir()
		writeClass(t, root, "hello", 0, 10, rng)
		_, err := Run(context.Background(), testOptions(root))
		assert.True(t, errors.Is(err, ErrMissingLabel), "got %v", err)
	})

	t.Run("too few samples", func(t *testing.T) {
		root := t.TempDir()
		writeClass(t, root, "hello", 0, 1, rng)
		writeClass(t, root, "yes", 1, 1, rng)
		_, err := Run(context.Background(), testOptions(root))
		assert.True(t, errors.Is(err, ErrTooFewSamples), "got %v", err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, testOptions(t.TempDir()))
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})
}

func TestRun_RecordsFailure(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	opts := testOptions(t.TempDir())
	opts.Store = s
	_, err = Run(context.Background(), opts)
	require.True(t, errors.Is(err, ErrEmptyDataset), "got %v", err)

	runs, err := s.Runs().List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestFit_RestoresBestWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	net, err := model.New(testBundle("a", "b"), rng)
	require.NoError(t, err)

	var xs [][][]float64
	var ys []int
	for i := 0; i < 24; i++ {
		seq := make([][]float64, 5)
		for f := range seq {
			seq[f] = make([]float64, features.HandsWidth)
			for k := range seq[f] {
				seq[f][k] = rng.Float64()
			}
		}
		xs = append(xs, seq)
		ys = append(ys, rng.Intn(2))
	}
	oneHot := dataset.OneHot(ys, 2)

	cfg := DefaultFitConfig()
	cfg.Epochs = 20
	cfg.Patience = 2
	cfg.LearningRate = 0.05
	hist, err := Fit(context.Background(), net, xs[:20], oneHot[:20], xs[20:], oneHot[20:], cfg)
	require.NoError(t, err)

	minLoss := math.Inf(1)
	for _, e := range hist.Epochs {
		minLoss = math.Min(minLoss, e.ValLoss)
	}
	best := hist.Best()
	assert.Equal(t, minLoss, best.ValLoss)
	assert.LessOrEqual(t, len(hist.Epochs), hist.BestEpoch+cfg.Patience)
	if hist.Stopped {
		assert.Equal(t, hist.BestEpoch+cfg.Patience, len(hist.Epochs))
	}

	valLoss, _, err := net.Evaluate(xs[20:], oneHot[20:])
	require.NoError(t, err)
	assert.InDelta(t, best.ValLoss, valLoss, 1e-12)
}

func TestFit_Cancelled(t *testing.T) {
	net, err := model.New(testBundle("a", "b"), nil)
	require.NoError(t, err)

	seq := make([][]float64, 5)
	for f := range seq {
		seq[f] = make([]float64, features.HandsWidth)
	}
	xs := [][][]float64{seq, seq}
	ys := dataset.OneHot([]int{0, 1}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Fit(ctx, net, xs, ys, xs, ys, DefaultFitConfig())
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestOptionsFromConfig(t *testing.T) {
	c := config.Default().Training
	opts, err := OptionsFromConfig(c)
	require.NoError(t, err)

	assert.Equal(t, features.HandsWidth, opts.Bundle.FeatureWidth)
	assert.Equal(t, 5, opts.Bundle.SequenceLength)
	assert.Equal(t, [2]int{64, 64}, opts.Bundle.HiddenUnits)
	assert.Equal(t, config.DefaultLabels, opts.Bundle.Labels)
	assert.Equal(t, 16, opts.Fit.BatchSize)
	assert.Equal(t, 10, opts.Fit.Patience)
	assert.Equal(t, int64(42), opts.SplitSeed)
	assert.NotEqual(t, opts.SplitSeed, opts.NoiseSeed)

	c.HiddenUnits = []int{64}
	_, err = OptionsFromConfig(c)
	assert.Error(t, err)

	c = config.Default().Training
	c.Layout = "face"
	_, err = OptionsFromConfig(c)
	assert.Error(t, err)
}
