package relay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mubayin/signseq/internal/detector"
	"github.com/mubayin/signseq/internal/features"
	"github.com/mubayin/signseq/internal/signs"
)

// ErrUnreadableImage is returned when the upload cannot be decoded.
var ErrUnreadableImage = errors.New("failed to read image")

// Response messages.
const (
	MessageProcessed = "Image processed successfully"
	MessageNoHands   = "No hands detected!"
	// SignError is reported when the remote model cannot be reached.
	SignError = "Error"
)

// detectSize is the square resolution images are scaled to before detection.
const detectSize = 256

// Predictor classifies a hands keypoint vector remotely.
type Predictor interface {
	Predict(ctx context.Context, features []float64) (string, error)
}

// Config configures a Service.
type Config struct {
	Detector detector.Detector
	Model    Predictor
	// Signs maps predicted ids to Arabic names. Nil maps everything to Unknown.
	Signs *signs.Table
	// UploadDir receives the upload and its annotated copy.
	UploadDir string
	Logger    *zap.Logger
}

// Response is the /upload reply.
type Response struct {
	Message       string    `json:"message"`
	PredictedSign string    `json:"predicted_sign,omitempty"`
	SignArabic    string    `json:"sign_arabic,omitempty"`
	Keypoints     []float64 `json:"keypoints,omitempty"`
}

// Service handles single-image uploads.
type Service struct {
	cfg Config
	log *zap.Logger
}

// NewService creates the upload directory and returns a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Detector == nil || cfg.Model == nil {
		return nil, errors.New("relay needs a detector and a model client")
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "upload"
	}
	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, log: log}, nil
}

// Process stores the upload under name, extracts the two-hand keypoint
// vector from a 256x256 copy, saves an annotated processed_<name> copy and
// asks the remote model for the sign. Remote failures are reported in the
// response as the sign "Error" rather than as an error.
func (s *Service) Process(ctx context.Context, name string, data []byte) (*Response, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: invalid file name", ErrUnreadableImage)
	}
	path := filepath.Join(s.cfg.UploadDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, ErrUnreadableImage
	}

	small, err := scaled(img, detectSize)
	if err != nil {
		return nil, err
	}
	defer small.Close()

	res, err := s.cfg.Detector.Detect(&small)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	keypoints := res.Keypoints(features.LayoutHands)

	detector.DrawHands(&img, res)
	processed := filepath.Join(s.cfg.UploadDir, "processed_"+name)
	if ok := gocv.IMWrite(processed, img); !ok {
		s.log.Warn("failed to write processed image", zap.String("path", processed))
	}

	if features.IsZero(keypoints) {
		return &Response{Message: MessageNoHands}, nil
	}

	sign, err := s.cfg.Model.Predict(ctx, keypoints)
	if err != nil {
		s.log.Warn("remote model prediction failed", zap.Error(err))
		sign = SignError
	}

	return &Response{
		Message:       MessageProcessed,
		PredictedSign: sign,
		SignArabic:    s.cfg.Signs.Lookup(sign),
		Keypoints:     keypoints,
	}, nil
}

// scaled returns a size x size copy of img.
func scaled(img gocv.Mat, size int) (gocv.Mat, error) {
	src, err := img.ToImage()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("convert image: %w", err)
	}
	var dst image.Image = resize.Resize(uint(size), uint(size), src, resize.Bilinear)
	out, err := gocv.ImageToMatRGB(dst)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("convert image: %w", err)
	}
	return out, nil
}
