// Package config loads the YAML configuration shared by the signseq commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/mubayin/signseq/internal/features"
)

// DefaultLabels is the hands-only sign vocabulary, in classifier output order.
var DefaultLabels = []string{
	"hello", "thank_you", "yes", "no", "please",
	"help", "sorry", "nice_to_meet_you", "how_are_you", "Excuse_Me",
}

// Config is the root configuration document.
type Config struct {
	Server   Server   `yaml:"server"`
	Staging  Staging  `yaml:"staging"`
	Model    Model    `yaml:"model"`
	Training Training `yaml:"training"`
	Relay    Relay    `yaml:"relay"`
	Detector Detector `yaml:"detector"`
	Store    Store    `yaml:"store"`
	Log      Log      `yaml:"log"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr string `yaml:"addr"`
}

// Staging configures the directory upstream capture writes frames into.
// A relative ProcessedDir lives inside Dir.
type Staging struct {
	Dir           string `yaml:"dir"`
	ProcessedDir  string `yaml:"processed_dir"`
	SaveProcessed bool   `yaml:"save_processed"`
}

// ProcessedPath resolves ProcessedDir against the staging directory.
func (s Staging) ProcessedPath() string {
	if s.ProcessedDir == "" || filepath.IsAbs(s.ProcessedDir) {
		return s.ProcessedDir
	}
	return filepath.Join(s.Dir, s.ProcessedDir)
}

// Model points the serving process at a trained checkpoint.
type Model struct {
	Checkpoint string `yaml:"checkpoint"`
}

// Training holds the offline training hyperparameters and the model shape
// written into the checkpoint bundle.
type Training struct {
	Folders         []string `yaml:"folders"`
	Checkpoint      string   `yaml:"checkpoint"`
	Labels          []string `yaml:"labels"`
	Layout          string   `yaml:"layout"`
	SequenceLength  int      `yaml:"sequence_length"`
	Normalize       bool     `yaml:"normalize"`
	HiddenUnits     []int    `yaml:"hidden_units"`
	Dropout         float64  `yaml:"dropout"`
	L2              float64  `yaml:"l2"`
	Epochs          int      `yaml:"epochs"`
	BatchSize       int      `yaml:"batch_size"`
	LearningRate    float64  `yaml:"learning_rate"`
	Patience        int      `yaml:"patience"`
	NoiseStddev     float64  `yaml:"noise_stddev"`
	ValidationSplit float64  `yaml:"validation_split"`
	Seed            int64    `yaml:"seed"`
}

// Relay configures the /upload variant that forwards keypoints to a remote model.
type Relay struct {
	ModelURL  string        `yaml:"model_url"`
	SignTable string        `yaml:"sign_table"`
	UploadDir string        `yaml:"upload_dir"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Detector configures the MediaPipe subprocess. Empty paths fall back to
// the search under the working directory and ~/.signseq.
type Detector struct {
	Script        string        `yaml:"script"`
	Python        string        `yaml:"python"`
	MaxHands      int           `yaml:"max_hands"`
	MinConfidence float64       `yaml:"min_confidence"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

// Store configures the sqlite history database. An empty path disables it.
type Store struct {
	Path string `yaml:"path"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{Addr: ":5000"},
		Staging: Staging{
			Dir:           "frames",
			ProcessedDir:  "processed_frames",
			SaveProcessed: true,
		},
		Model: Model{Checkpoint: "model/hands_lstm.json"},
		Training: Training{
			Folders:         []string{"data/hands", "data/hands_only"},
			Checkpoint:      "model/hands_lstm.json",
			Labels:          append([]string(nil), DefaultLabels...),
			Layout:          string(features.LayoutHands),
			SequenceLength:  5,
			HiddenUnits:     []int{64, 64},
			Dropout:         0.5,
			L2:              0.001,
			Epochs:          50,
			BatchSize:       16,
			LearningRate:    0.001,
			Patience:        10,
			NoiseStddev:     0.01,
			ValidationSplit: 0.1,
			Seed:            42,
		},
		Relay: Relay{
			SignTable: "processed_features_ver2.csv",
			UploadDir: "upload",
			Timeout:   30 * time.Second,
		},
		Detector: Detector{
			MaxHands:      2,
			MinConfidence: 0.5,
			IdleTimeout:   30 * time.Second,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path on top of Default. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside training
// or serving.
func (c *Config) Validate() error {
	t := c.Training
	if len(t.Labels) == 0 {
		return errors.New("config: training.labels is empty")
	}
	seen := make(map[string]bool, len(t.Labels))
	for _, l := range t.Labels {
		if l == "" {
			return errors.New("config: empty label")
		}
		if seen[l] {
			return fmt.Errorf("config: duplicate label %q", l)
		}
		seen[l] = true
	}
	if _, err := features.ParseLayout(t.Layout); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if t.SequenceLength <= 0 {
		return errors.New("config: training.sequence_length must be positive")
	}
	if len(t.HiddenUnits) != 2 || t.HiddenUnits[0] <= 0 || t.HiddenUnits[1] <= 0 {
		return errors.New("config: training.hidden_units must hold two positive sizes")
	}
	if t.Dropout < 0 || t.Dropout >= 1 {
		return errors.New("config: training.dropout must be in [0,1)")
	}
	if t.ValidationSplit <= 0 || t.ValidationSplit >= 1 {
		return errors.New("config: training.validation_split must be in (0,1)")
	}
	if t.Epochs <= 0 || t.BatchSize <= 0 || t.Patience <= 0 {
		return errors.New("config: training.epochs, batch_size and patience must be positive")
	}
	if t.LearningRate <= 0 {
		return errors.New("config: training.learning_rate must be positive")
	}
	if t.NoiseStddev < 0 || t.L2 < 0 {
		return errors.New("config: training.noise_stddev and l2 must not be negative")
	}
	if c.Detector.MaxHands < 1 || c.Detector.MaxHands > 2 {
		return errors.New("config: detector.max_hands must be 1 or 2")
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return errors.New("config: detector.min_confidence must be in [0,1]")
	}
	if c.Staging.Dir == "" {
		return errors.New("config: staging.dir is empty")
	}
	return nil
}
