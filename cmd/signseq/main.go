// Command signseq serves sign predictions over HTTP from a trained
// checkpoint and the frames staged by upstream capture.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/app"
	"github.com/mubayin/signseq/internal/capture"
	"github.com/mubayin/signseq/internal/config"
	"github.com/mubayin/signseq/internal/detector"
	"github.com/mubayin/signseq/internal/features"
	"github.com/mubayin/signseq/internal/logging"
	"github.com/mubayin/signseq/internal/model"
	"github.com/mubayin/signseq/internal/relay"
	"github.com/mubayin/signseq/internal/server"
	"github.com/mubayin/signseq/internal/signs"
	"github.com/mubayin/signseq/internal/store"
)

type args struct {
	Config       string `arg:"-c,env:SIGNSEQ_CONFIG" help:"YAML config file"`
	Addr         string `arg:"env:SIGNSEQ_ADDR" help:"listen address, overrides server.addr"`
	Checkpoint   string `arg:"env:SIGNSEQ_CHECKPOINT" help:"model checkpoint, overrides model.checkpoint"`
	StagingDir   string `arg:"--staging-dir,env:SIGNSEQ_STAGING_DIR" help:"frame staging directory, overrides staging.dir"`
	ModelURL     string `arg:"--model-url,env:SIGNSEQ_MODEL_URL" help:"remote model for /upload, overrides relay.model_url"`
	StaticDir    string `arg:"--static-dir,env:SIGNSEQ_STATIC_DIR" help:"directory of static files served at /"`
	MockDetector bool   `arg:"--mock-detector" help:"use a detector that never finds hands instead of MediaPipe"`
	LogLevel     string `arg:"--log-level,env:SIGNSEQ_LOG_LEVEL" help:"log level, overrides log.level"`
}

func (args) Description() string {
	return "signseq serves sign-language predictions from staged camera frames"
}

func main() {
	var a args
	arg.MustParse(&a)

	if err := run(a); err != nil {
		fmt.Fprintln(os.Stderr, "signseq:", err)
		os.Exit(1)
	}
}

func run(a args) error {
	cfg, err := config.Load(a.Config)
	if err != nil {
		return err
	}
	applyOverrides(cfg, a)

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	network, err := model.Load(cfg.Model.Checkpoint)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	bundle := network.Bundle()
	log.Info("model loaded",
		zap.String("checkpoint", cfg.Model.Checkpoint),
		zap.Strings("labels", bundle.Labels),
		zap.String("layout", string(bundle.Layout)),
		zap.Int("sequence_length", bundle.SequenceLength),
	)

	det, err := newDetector(cfg.Detector, bundle.Layout, a.MockDetector, log)
	if err != nil {
		return err
	}
	defer det.Close()

	stage, err := capture.NewStage(cfg.Staging.Dir)
	if err != nil {
		return err
	}

	ac := capture.AssemblerConfig{
		Stage:          stage,
		Detector:       det,
		Layout:         bundle.Layout,
		Width:          bundle.FeatureWidth,
		SequenceLength: bundle.SequenceLength,
		Normalize:      bundle.Normalize,
		Logger:         log.Named("assembler"),
	}
	if cfg.Staging.SaveProcessed {
		ac.ProcessedDir = cfg.Staging.ProcessedPath()
	}
	assembler, err := capture.NewAssembler(ac)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		if dir := filepath.Dir(cfg.Store.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create store dir: %w", err)
			}
		}
		st, err = store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	svc, err := app.New(app.Config{
		Classifier: network,
		Source:     assembler,
		Store:      st,
		Logger:     log.Named("app"),
	})
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		Service:   svc,
		Stage:     stage,
		Store:     st,
		StaticDir: a.StaticDir,
		Logger:    log.Named("http"),
	}
	if cfg.Relay.ModelURL != "" {
		rs, err := newRelay(cfg.Relay, det, log)
		if err != nil {
			return err
		}
		srvCfg.Relay = rs
	}
	srv := server.New(srvCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("staging_dir", stage.Dir()))
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("shut down")
	return nil
}

func applyOverrides(cfg *config.Config, a args) {
	if a.Addr != "" {
		cfg.Server.Addr = a.Addr
	}
	if a.Checkpoint != "" {
		cfg.Model.Checkpoint = a.Checkpoint
	}
	if a.StagingDir != "" {
		cfg.Staging.Dir = a.StagingDir
	}
	if a.ModelURL != "" {
		cfg.Relay.ModelURL = a.ModelURL
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}
}

func newDetector(dcfg config.Detector, layout features.Layout, mock bool, log *zap.Logger) (detector.Detector, error) {
	if mock {
		return detector.NewMockDetector(), nil
	}
	dc := detector.DefaultConfig()
	dc.ScriptPath = dcfg.Script
	dc.Python = dcfg.Python
	dc.MaxHands = dcfg.MaxHands
	dc.MinConfidence = dcfg.MinConfidence
	dc.IdleTimeout = dcfg.IdleTimeout
	dc.Holistic = layout == features.LayoutHolistic
	dc.Logger = log.Named("detector")
	d, err := detector.NewMediaPipeDetector(dc)
	if err != nil {
		return nil, fmt.Errorf("start landmark detector (use --mock-detector to run without one): %w", err)
	}
	return d, nil
}

func newRelay(rc config.Relay, det detector.Detector, log *zap.Logger) (*relay.Service, error) {
	var table *signs.Table
	if rc.SignTable != "" {
		t, err := signs.Load(rc.SignTable)
		if err != nil {
			log.Warn("sign table unavailable, every sign maps to Unknown", zap.Error(err))
		} else {
			table = t
		}
	}
	return relay.NewService(relay.Config{
		Detector:  det,
		Model:     relay.NewClient(rc.ModelURL, rc.Timeout),
		Signs:     table,
		UploadDir: rc.UploadDir,
		Logger:    log.Named("relay"),
	})
}
