// Package training fits the sequence classifier to a loaded dataset.
package training

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/model"
)

// EpochStats are the metrics reported after each epoch.
type EpochStats struct {
	Epoch       int
	Loss        float64
	Accuracy    float64
	ValLoss     float64
	ValAccuracy float64
}

// History is the outcome of Fit.
type History struct {
	Epochs []EpochStats
	// BestEpoch is the 1-based epoch whose weights the network holds on return.
	BestEpoch int
	// Stopped is set when early stopping ended training before the epoch limit.
	Stopped bool
}

// Best returns the stats of BestEpoch.
func (h *History) Best() EpochStats {
	if h.BestEpoch == 0 || h.BestEpoch > len(h.Epochs) {
		return EpochStats{}
	}
	return h.Epochs[h.BestEpoch-1]
}

// FitConfig holds the optimizer and schedule hyperparameters.
type FitConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	// Patience is the number of epochs without validation-loss improvement
	// tolerated before stopping.
	Patience int
	// Seed drives batch shuffling and dropout.
	Seed int64
	// OnEpoch, when set, is called after every epoch.
	OnEpoch func(EpochStats)
	Logger  *zap.Logger
}

// DefaultFitConfig returns 50 epochs of batch 16, Adam at 0.001 and patience 10.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Epochs:       50,
		BatchSize:    16,
		LearningRate: 0.001,
		Patience:     10,
		Seed:         42,
	}
}

// Fit trains net on (xs, ys) with Adam and mini-batches, tracking the loss
// on (valX, valY). Training stops early once the validation loss has not
// improved for Patience epochs. On return the network holds the weights of
// the epoch with the lowest validation loss. Cancellation is checked
// between batches.
func Fit(ctx context.Context, net *model.Network, xs [][][]float64, ys [][]float64, valX [][][]float64, valY [][]float64, cfg FitConfig) (*History, error) {
	if len(xs) == 0 || len(valX) == 0 {
		return nil, errors.New("training and validation sets must not be empty")
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return nil, errors.New("epochs and batch size must be positive")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	shuffle := rand.New(rand.NewSource(cfg.Seed))
	dropout := rand.New(rand.NewSource(cfg.Seed + 1))
	opt := model.NewAdam(cfg.LearningRate)
	params := net.Params()

	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}

	hist := &History{}
	bestLoss := math.Inf(1)
	var best model.Weights
	wait := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		shuffle.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		var correct int
		for start := 0; start < len(order); start += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			end := start + cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}

			bx := make([][][]float64, 0, end-start)
			by := make([][]float64, 0, end-start)
			for _, i := range order[start:end] {
				bx = append(bx, xs[i])
				by = append(by, ys[i])
			}

			loss, c, err := net.Gradients(bx, by, dropout)
			if err != nil {
				return hist, err
			}
			opt.Step(params)
			lossSum += loss * float64(len(bx))
			correct += c
		}

		valLoss, valAcc, err := net.Evaluate(valX, valY)
		if err != nil {
			return hist, err
		}
		stats := EpochStats{
			Epoch:       epoch,
			Loss:        lossSum / float64(len(xs)),
			Accuracy:    float64(correct) / float64(len(xs)),
			ValLoss:     valLoss,
			ValAccuracy: valAcc,
		}
		hist.Epochs = append(hist.Epochs, stats)
		log.Info("epoch",
			zap.Int("epoch", epoch),
			zap.Float64("loss", stats.Loss),
			zap.Float64("accuracy", stats.Accuracy),
			zap.Float64("val_loss", stats.ValLoss),
			zap.Float64("val_accuracy", stats.ValAccuracy),
		)
		if cfg.OnEpoch != nil {
			cfg.OnEpoch(stats)
		}

		if valLoss < bestLoss {
			bestLoss = valLoss
			best = net.Snapshot()
			hist.BestEpoch = epoch
			wait = 0
			continue
		}
		wait++
		if cfg.Patience > 0 && wait >= cfg.Patience {
			hist.Stopped = true
			log.Info("early stopping", zap.Int("epoch", epoch), zap.Int("best_epoch", hist.BestEpoch))
			break
		}
	}

	if best != nil {
		if err := net.Restore(best); err != nil {
			return hist, err
		}
	}
	return hist, nil
}
