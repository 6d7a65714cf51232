package detector

import (
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Detector defines the interface for landmark detection implementations.
type Detector interface {
	// Detect analyzes an image and returns the detected landmarks.
	// A result with no hands, pose or face is not an error.
	Detect(frame *gocv.Mat) (*Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for landmark detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// Holistic also requests pose and face landmarks.
	Holistic bool

	// StaticImageMode treats every frame as unrelated to the previous one.
	// Staged frames are independent stills, so the serving path enables it.
	StaticImageMode bool

	// ScriptPath and Python override where the service script and the
	// interpreter are looked up.
	ScriptPath string
	Python     string

	// IdleTimeout stops the subprocess after that long without requests.
	IdleTimeout time.Duration

	// Logger receives the subprocess stderr.
	Logger *zap.Logger
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		StaticImageMode: true,
		IdleTimeout:     30 * time.Second,
	}
}
