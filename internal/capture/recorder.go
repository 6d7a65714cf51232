package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mubayin/signseq/internal/detector"
	"github.com/mubayin/signseq/internal/features"
)

// DefaultInterval paces the recorder at five frames per second.
const DefaultInterval = 200 * time.Millisecond

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Camera Camera
	Stage  *Stage
	// Interval is the delay between reads. Zero means DefaultInterval.
	Interval time.Duration
	// Gate, when set, drops frames without motion.
	Gate *MotionGate
	// Limit stops the recorder after staging that many frames. Zero runs
	// until the context ends.
	Limit  int
	Logger *zap.Logger
}

// Recorder stages camera frames as JPEG files for the assembler.
type Recorder struct {
	cfg RecorderConfig
	log *zap.Logger
}

// NewRecorder returns a Recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Camera == nil || cfg.Stage == nil {
		return nil, errors.New("recorder needs a camera and a stage")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{cfg: cfg, log: log}, nil
}

// Run reads frames until ctx ends or Limit frames were staged and returns
// the number staged. The camera is opened if needed and left open.
func (r *Recorder) Run(ctx context.Context) (int, error) {
	if !r.cfg.Camera.IsOpen() {
		if err := r.cfg.Camera.Open(); err != nil {
			return 0, fmt.Errorf("open camera: %w", err)
		}
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	staged := 0
	for r.cfg.Limit == 0 || staged < r.cfg.Limit {
		name, err := r.stageOne()
		switch {
		case errors.Is(err, ErrNoMoreFrames):
			return staged, nil
		case err != nil:
			return staged, err
		case name != "":
			staged++
			r.log.Debug("frame staged", zap.String("frame", name))
		}

		select {
		case <-ctx.Done():
			return staged, nil
		case <-ticker.C:
		}
	}
	return staged, nil
}

func (r *Recorder) stageOne() (string, error) {
	frame, err := r.cfg.Camera.ReadFrame()
	if err != nil {
		return "", err
	}
	defer frame.Close()

	if r.cfg.Gate != nil {
		if moved, _ := r.cfg.Gate.Open(frame); !moved {
			return "", nil
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return r.cfg.Stage.Put(".jpg", bytes.NewReader(buf.GetBytes()))
}

// Collect reads frames from cam until buf is full, extracting one
// keypoint vector per frame with det. It returns the buffered sequence.
func Collect(ctx context.Context, cam Camera, det detector.Detector, layout features.Layout, buf *Buffer, interval time.Duration) ([][]float64, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	buf.Reset()
	for !buf.Full() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := cam.ReadFrame()
		if err != nil {
			return nil, err
		}
		res, err := det.Detect(frame)
		frame.Close()
		if err != nil {
			return nil, fmt.Errorf("detect: %w", err)
		}
		if err := buf.Push(res.Keypoints(layout)); err != nil {
			return nil, err
		}

		if !buf.Full() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return buf.Consume()
}
