// Command signseq-train fits the sequence classifier on keypoint datasets
// and writes the checkpoint the server loads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/config"
	"github.com/mubayin/signseq/internal/logging"
	"github.com/mubayin/signseq/internal/store"
	"github.com/mubayin/signseq/internal/training"
)

type args struct {
	Config     string   `arg:"-c,env:SIGNSEQ_CONFIG" help:"YAML config file"`
	Folders    []string `arg:"positional" help:"dataset roots, override training.folders"`
	Checkpoint string   `arg:"-o,env:SIGNSEQ_CHECKPOINT" help:"output checkpoint, overrides training.checkpoint"`
	Epochs     int      `help:"maximum epochs, overrides training.epochs"`
	Seed       *int64   `help:"random seed, overrides training.seed"`
	Store      string   `arg:"env:SIGNSEQ_STORE" help:"sqlite history database, overrides store.path"`
	LogLevel   string   `arg:"--log-level,env:SIGNSEQ_LOG_LEVEL" help:"log level, overrides log.level"`
}

func (args) Description() string {
	return "signseq-train trains the keypoint sequence classifier"
}

func main() {
	var a args
	arg.MustParse(&a)

	if err := run(a); err != nil {
		fmt.Fprintln(os.Stderr, "signseq-train:", err)
		os.Exit(1)
	}
}

func run(a args) error {
	cfg, err := config.Load(a.Config)
	if err != nil {
		return err
	}
	t := &cfg.Training
	if len(a.Folders) > 0 {
		t.Folders = a.Folders
	}
	if a.Checkpoint != "" {
		t.Checkpoint = a.Checkpoint
	}
	if a.Epochs > 0 {
		t.Epochs = a.Epochs
	}
	if a.Seed != nil {
		t.Seed = *a.Seed
	}
	if a.Store != "" {
		cfg.Store.Path = a.Store
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	opts, err := training.OptionsFromConfig(*t)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	opts.Logger = log

	if cfg.Store.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
		st, err := store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		opts.Store = st
	}
	if t.Checkpoint != "" {
		if err := os.MkdirAll(filepath.Dir(t.Checkpoint), 0755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := training.Run(ctx, opts)
	if err != nil {
		return err
	}

	best := rep.History.Best()
	log.Info("training finished",
		zap.String("run_id", rep.RunID),
		zap.Int("samples", rep.Samples),
		zap.Int("best_epoch", rep.History.BestEpoch),
		zap.Bool("early_stopped", rep.History.Stopped),
		zap.Float64("val_loss", best.ValLoss),
		zap.Float64("val_accuracy", best.ValAccuracy),
		zap.String("checkpoint", rep.Checkpoint),
	)
	for i, label := range opts.Bundle.Labels {
		fmt.Printf("%-20s %d samples\n", label, rep.Counts[i])
	}
	for reason, n := range rep.Skipped {
		fmt.Printf("skipped (%s): %d\n", reason, n)
	}
	fmt.Printf("best epoch %d: val_loss=%.4f val_accuracy=%.4f\n", rep.History.BestEpoch, best.ValLoss, best.ValAccuracy)
	return nil
}
