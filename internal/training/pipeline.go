package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/config"
	"github.com/mubayin/signseq/internal/dataset"
	"github.com/mubayin/signseq/internal/features"
	"github.com/mubayin/signseq/internal/model"
	"github.com/mubayin/signseq/internal/store"
)

var (
	// ErrEmptyDataset is returned when no sample could be loaded.
	ErrEmptyDataset = errors.New("dataset is empty")
	// ErrMissingLabel is returned when a label has no samples.
	ErrMissingLabel = errors.New("label has no samples")
	// ErrTooFewSamples is returned when the validation split cannot be stratified.
	ErrTooFewSamples = dataset.ErrTooFewSamples
)

// Options configures Run.
type Options struct {
	// Folders are the dataset roots, loaded concurrently and concatenated in order.
	Folders []string
	// Checkpoint is where the trained network is saved. Empty skips saving.
	Checkpoint string
	// Bundle fixes the labels, input shape and architecture.
	Bundle model.Bundle
	Fit    FitConfig

	NoiseStddev     float64
	ValidationSplit float64

	// SplitSeed, InitSeed and NoiseSeed seed the stratified split, weight
	// initialization and training-set noise independently. Fit.Seed drives
	// shuffling and dropout.
	SplitSeed int64
	InitSeed  int64
	NoiseSeed int64

	// Store, when set, receives the run record and per-epoch metrics.
	Store  *store.Store
	Logger *zap.Logger
}

// OptionsFromConfig maps the training section of the config file onto Options.
func OptionsFromConfig(c config.Training) (Options, error) {
	layout, err := features.ParseLayout(c.Layout)
	if err != nil {
		return Options{}, err
	}
	if len(c.HiddenUnits) != 2 {
		return Options{}, fmt.Errorf("hidden_units needs two values, got %d", len(c.HiddenUnits))
	}

	b := model.DefaultBundle(c.Labels)
	b.Layout = layout
	b.FeatureWidth = layout.Width()
	b.SequenceLength = c.SequenceLength
	b.Normalize = c.Normalize
	b.HiddenUnits = [2]int{c.HiddenUnits[0], c.HiddenUnits[1]}
	b.Dropout = c.Dropout
	b.L2 = c.L2
	if err := b.Validate(); err != nil {
		return Options{}, err
	}

	return Options{
		Folders:    append([]string(nil), c.Folders...),
		Checkpoint: c.Checkpoint,
		Bundle:     b,
		Fit: FitConfig{
			Epochs:       c.Epochs,
			BatchSize:    c.BatchSize,
			LearningRate: c.LearningRate,
			Patience:     c.Patience,
			Seed:         c.Seed + 2,
		},
		NoiseStddev:     c.NoiseStddev,
		ValidationSplit: c.ValidationSplit,
		SplitSeed:       c.Seed,
		InitSeed:        c.Seed,
		NoiseSeed:       c.Seed + 1,
	}, nil
}

// Report summarizes a completed Run.
type Report struct {
	RunID    string
	Samples  int
	Skipped  map[dataset.SkipReason]int
	Counts   []int
	TrainIdx []int
	ValIdx   []int
	// ValX and ValY are the validation tensors the run scored against.
	ValX       [][][]float64
	ValY       [][]float64
	History    *History
	Checkpoint string
	Network    *model.Network
}

// Run loads the configured folders, splits off a stratified validation set,
// perturbs a copy of the training split with Gaussian noise, fits a fresh
// network and saves it.
func Run(ctx context.Context, opts Options) (rep *Report, err error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	b := opts.Bundle
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bundle: %w", err)
	}

	rep = &Report{RunID: uuid.New().String()}
	log = log.With(zap.String("run_id", rep.RunID))

	rec := &store.Run{
		ID:      rep.RunID,
		Labels:  b.Labels,
		Layout:  string(b.Layout),
		Folders: opts.Folders,
	}
	if opts.Store != nil {
		if err := opts.Store.Runs().Create(rec); err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
		defer func() {
			rec.Status = store.RunCompleted
			if err != nil {
				rec.Status = store.RunFailed
				rec.Error = err.Error()
			}
			if ferr := opts.Store.Runs().Finish(rec); ferr != nil {
				log.Warn("failed to record run outcome", zap.Error(ferr))
			}
		}()
	}

	loader, err := dataset.NewLoader(dataset.Config{
		Labels:         b.Labels,
		Layout:         b.Layout,
		SequenceLength: b.SequenceLength,
		Normalize:      b.Normalize,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	ds, err := loader.LoadAll(ctx, opts.Folders...)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	rep.Samples = ds.Len()
	rep.Skipped = ds.Skipped
	rep.Counts = ds.Counts()
	rec.Samples = ds.Len()
	rec.Skipped = ds.SkippedTotal()

	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w: no samples under %v", ErrEmptyDataset, opts.Folders)
	}
	for i, c := range rep.Counts {
		if c == 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingLabel, b.Labels[i])
		}
	}

	xs, labels := ds.Arrays()
	ys := dataset.OneHot(labels, len(b.Labels))
	trainIdx, valIdx, err := dataset.StratifiedSplit(labels, len(b.Labels), opts.ValidationSplit, opts.SplitSeed)
	if err != nil {
		return nil, err
	}
	rep.TrainIdx, rep.ValIdx = trainIdx, valIdx
	rec.TrainSamples, rec.ValSamples = len(trainIdx), len(valIdx)

	trainX, trainY := dataset.Subset(xs, ys, trainIdx)
	valX, valY := dataset.Subset(xs, ys, valIdx)
	rep.ValX, rep.ValY = valX, valY
	if opts.NoiseStddev > 0 {
		trainX = dataset.AddNoise(trainX, opts.NoiseStddev, opts.NoiseSeed)
	}

	log.Info("starting training",
		zap.Int("samples", ds.Len()),
		zap.Int("skipped", ds.SkippedTotal()),
		zap.Int("train", len(trainIdx)),
		zap.Int("validation", len(valIdx)),
	)

	net, err := model.New(b, rand.New(rand.NewSource(opts.InitSeed)))
	if err != nil {
		return nil, err
	}

	fit := opts.Fit
	if fit.Logger == nil {
		fit.Logger = log
	}
	if opts.Store != nil {
		next := fit.OnEpoch
		fit.OnEpoch = func(s EpochStats) {
			e := &store.Epoch{
				RunID:       rep.RunID,
				Epoch:       s.Epoch,
				Loss:        s.Loss,
				Accuracy:    s.Accuracy,
				ValLoss:     s.ValLoss,
				ValAccuracy: s.ValAccuracy,
			}
			if err := opts.Store.Epochs().Add(e); err != nil {
				log.Warn("failed to record epoch", zap.Int("epoch", s.Epoch), zap.Error(err))
			}
			if next != nil {
				next(s)
			}
		}
	}

	hist, err := Fit(ctx, net, trainX, trainY, valX, valY, fit)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	rep.History = hist
	rep.Network = net

	best := hist.Best()
	rec.BestEpoch = hist.BestEpoch
	rec.ValLoss = best.ValLoss
	rec.ValAccuracy = best.ValAccuracy

	if opts.Checkpoint != "" {
		if err := net.Save(opts.Checkpoint); err != nil {
			return nil, fmt.Errorf("save checkpoint: %w", err)
		}
		rep.Checkpoint = opts.Checkpoint
		rec.Checkpoint = opts.Checkpoint
	}

	log.Info("training finished",
		zap.Int("epochs", len(hist.Epochs)),
		zap.Int("best_epoch", hist.BestEpoch),
		zap.Float64("val_loss", best.ValLoss),
		zap.Float64("val_accuracy", best.ValAccuracy),
		zap.Bool("early_stopped", hist.Stopped),
	)
	return rep, nil
}
