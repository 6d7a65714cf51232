package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mubayin/signseq/internal/detector"
	"github.com/mubayin/signseq/internal/features"
)

var (
	// ErrUnreadableFrame is returned when a staged file cannot be decoded as an image.
	ErrUnreadableFrame = errors.New("unreadable frame")
	// ErrNoBodyLandmarks is returned when a holistic sequence carries no
	// pose or face landmarks on any frame, so only the hand blocks are set.
	ErrNoBodyLandmarks = errors.New("holistic layout got no pose or face landmarks")
)

// ProcessedPrefix is prepended to the name of annotated frame copies.
const ProcessedPrefix = "processed_"

// AssemblerConfig configures an Assembler.
type AssemblerConfig struct {
	Stage    *Stage
	Detector detector.Detector
	Layout   features.Layout
	// Width is the vector width the classifier expects. Zero means the
	// layout width.
	Width int
	// SequenceLength is the number of frames consumed per sequence.
	SequenceLength int
	// Normalize applies wrist normalization to every vector.
	Normalize bool
	// ProcessedDir receives a copy of each frame with the hands drawn on
	// it. Empty disables it.
	ProcessedDir string
	Logger       *zap.Logger
}

// Assembler turns the oldest staged frames into one keypoint sequence.
type Assembler struct {
	cfg AssemblerConfig
	log *zap.Logger
}

// NewAssembler validates cfg and returns an Assembler.
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.Stage == nil {
		return nil, errors.New("assembler needs a stage")
	}
	if cfg.Detector == nil {
		return nil, errors.New("assembler needs a detector")
	}
	if cfg.Layout.Width() == 0 {
		return nil, fmt.Errorf("unknown keypoint layout %q", cfg.Layout)
	}
	if cfg.SequenceLength <= 0 {
		return nil, errors.New("sequence length must be positive")
	}
	if cfg.Width == 0 {
		cfg.Width = cfg.Layout.Width()
	}
	if cfg.ProcessedDir != "" {
		if err := os.MkdirAll(cfg.ProcessedDir, 0755); err != nil {
			return nil, fmt.Errorf("create processed dir: %w", err)
		}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{cfg: cfg, log: log}, nil
}

// Assemble claims the oldest SequenceLength frames and extracts one vector
// from each, in arrival order. Every frame it gets to is deleted, including
// an unreadable one; frames after a failure go back to the stage. Frames
// are never consumed when fewer than SequenceLength are staged.
func (a *Assembler) Assemble(ctx context.Context) ([][]float64, error) {
	frames, err := a.cfg.Stage.Take(a.cfg.SequenceLength)
	if err != nil {
		return nil, err
	}

	buf := NewBuffer(a.cfg.SequenceLength, a.cfg.Width)
	var body bool
	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			a.cfg.Stage.Release(frames[i:]...)
			return nil, err
		}

		vec, res, err := a.process(f)
		if rmErr := a.cfg.Stage.Remove(f); rmErr != nil {
			a.log.Warn("failed to remove frame", zap.String("frame", f.Name), zap.Error(rmErr))
		}
		if err != nil {
			a.cfg.Stage.Release(frames[i+1:]...)
			return nil, err
		}
		if err := buf.Push(vec); err != nil {
			a.cfg.Stage.Release(frames[i+1:]...)
			return nil, err
		}
		body = body || len(res.Pose) > 0 || len(res.Face) > 0
	}
	if a.cfg.Layout == features.LayoutHolistic && !body {
		return nil, ErrNoBodyLandmarks
	}
	return buf.Consume()
}

func (a *Assembler) process(f StagedFrame) ([]float64, *detector.Result, error) {
	img := gocv.IMRead(f.Path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnreadableFrame, f.Name)
	}

	res, err := a.cfg.Detector.Detect(&img)
	if err != nil {
		return nil, nil, fmt.Errorf("detect %s: %w", f.Name, err)
	}
	if res == nil {
		res = &detector.Result{}
	}

	vec := res.Keypoints(a.cfg.Layout)
	if len(vec) != a.cfg.Width {
		return nil, nil, fmt.Errorf("%w: frame %s gave %d values, want %d", ErrWidthMismatch, f.Name, len(vec), a.cfg.Width)
	}
	if a.cfg.Normalize {
		vec = features.NormalizeHands(a.cfg.Layout, vec)
	}

	if a.cfg.ProcessedDir != "" {
		detector.DrawHands(&img, res)
		out := filepath.Join(a.cfg.ProcessedDir, ProcessedPrefix+f.Name)
		if ok := gocv.IMWrite(out, img); !ok {
			a.log.Warn("failed to write processed frame", zap.String("path", out))
		}
	}

	a.log.Debug("frame processed",
		zap.String("frame", f.Name),
		zap.Int("hands", len(res.Hands)),
	)
	return vec, res, nil
}
