// Command signseq-capture feeds the serving pipeline from a local camera.
// By default it stages frames for /predict. With --record it collects
// labelled training sequences instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/capture"
	"github.com/mubayin/signseq/internal/config"
	"github.com/mubayin/signseq/internal/dataset"
	"github.com/mubayin/signseq/internal/detector"
	"github.com/mubayin/signseq/internal/features"
	"github.com/mubayin/signseq/internal/logging"
	"github.com/mubayin/signseq/internal/server"
)

type args struct {
	Config   string        `arg:"-c,env:SIGNSEQ_CONFIG" help:"YAML config file"`
	Device   int           `help:"camera device id"`
	Replay   string        `help:"replay the image files in this directory instead of opening a device"`
	Width    int           `help:"capture width"`
	Height   int           `help:"capture height"`
	Interval time.Duration `help:"delay between frames"`
	Limit    int           `help:"stop after staging this many frames, 0 runs until interrupted"`
	Motion   float64       `help:"only stage frames where more than this percentage of pixels changed, 0 disables"`
	Preview  string        `help:"address for an MJPEG preview at /api/stream"`
	Record   string        `help:"record training sequences for this label instead of staging frames"`
	Samples  int           `help:"number of sequences to record"`
	Out      string        `help:"dataset root for recorded sequences"`
	LogLevel string        `arg:"--log-level,env:SIGNSEQ_LOG_LEVEL" help:"log level, overrides log.level"`
}

func (args) Description() string {
	return "signseq-capture stages camera frames or records training sequences"
}

func main() {
	a := args{
		Interval: capture.DefaultInterval,
		Samples:  30,
		Out:      "data/hands",
	}
	arg.MustParse(&a)

	if err := run(a); err != nil {
		fmt.Fprintln(os.Stderr, "signseq-capture:", err)
		os.Exit(1)
	}
}

func run(a args) error {
	cfg, err := config.Load(a.Config)
	if err != nil {
		return err
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	var cam capture.Camera = capture.NewDeviceCamera(a.Device, a.Width, a.Height)
	if a.Replay != "" {
		pc, err := capture.LoadPlaybackCamera(a.Replay, false)
		if err != nil {
			return err
		}
		defer pc.Release()
		log.Info("replaying frames", zap.String("dir", a.Replay), zap.Int("frames", pc.Len()))
		cam = pc
	}
	if err := cam.Open(); err != nil {
		return err
	}
	defer cam.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.Preview != "" {
		preview := server.New(server.Config{Camera: cam, Logger: log.Named("preview")})
		go func() {
			log.Info("preview listening", zap.String("addr", a.Preview))
			if err := preview.ListenAndServe(ctx, a.Preview); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("preview server failed", zap.Error(err))
			}
		}()
	}

	if a.Record != "" {
		return record(ctx, a, cfg, cam, log)
	}
	return stageFrames(ctx, a, cfg.Staging, cam, log)
}

func stageFrames(ctx context.Context, a args, sc config.Staging, cam capture.Camera, log *zap.Logger) error {
	stage, err := capture.NewStage(sc.Dir)
	if err != nil {
		return err
	}

	rc := capture.RecorderConfig{
		Camera:   cam,
		Stage:    stage,
		Interval: a.Interval,
		Limit:    a.Limit,
		Logger:   log.Named("recorder"),
	}
	if a.Motion > 0 {
		gate := capture.NewMotionGate(a.Motion)
		defer gate.Close()
		rc.Gate = gate
	}
	rec, err := capture.NewRecorder(rc)
	if err != nil {
		return err
	}

	n, err := rec.Run(ctx)
	log.Info("capture stopped", zap.Int("staged", n), zap.String("dir", stage.Dir()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func record(ctx context.Context, a args, cfg *config.Config, cam capture.Camera, log *zap.Logger) error {
	tc := cfg.Training
	layout, err := features.ParseLayout(tc.Layout)
	if err != nil {
		return err
	}
	dc := detector.DefaultConfig()
	dc.ScriptPath = cfg.Detector.Script
	dc.Python = cfg.Detector.Python
	dc.MaxHands = cfg.Detector.MaxHands
	dc.MinConfidence = cfg.Detector.MinConfidence
	dc.StaticImageMode = false
	dc.Logger = log.Named("detector")
	dc.Holistic = layout == features.LayoutHolistic
	det, err := detector.NewMediaPipeDetector(dc)
	if err != nil {
		return err
	}
	defer det.Close()

	buf := capture.NewBuffer(tc.SequenceLength, layout.Width())
	for i := 0; i < a.Samples; i++ {
		seq, err := capture.Collect(ctx, cam, det, layout, buf, a.Interval)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		id, err := dataset.NextSampleID(a.Out, a.Record)
		if err != nil {
			return err
		}
		path, err := dataset.WriteSample(a.Out, a.Record, id, seq)
		if err != nil {
			return err
		}
		log.Info("recorded sequence", zap.String("label", a.Record), zap.Int("sample", i+1), zap.String("path", path))
	}
	return nil
}
