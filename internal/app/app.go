// Package app ties the sequence assembler to the loaded classifier.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mubayin/signseq/internal/model"
	"github.com/mubayin/signseq/internal/store"
)

// SequenceSource produces one keypoint sequence per call.
type SequenceSource interface {
	Assemble(ctx context.Context) ([][]float64, error)
}

// Config holds the collaborators of an App.
type Config struct {
	Classifier model.Classifier
	Source     SequenceSource
	// Store, when set, records every prediction.
	Store  *store.Store
	Logger *zap.Logger
}

// Result is a served prediction. Prediction is the label with underscores
// replaced by spaces.
type Result struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Event is published to subscribers after each prediction.
type Event struct {
	Type       string  `json:"type"`
	Label      string  `json:"label"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

// App serves predictions from staged frames. The classifier is fixed for
// the lifetime of the App.
type App struct {
	cfg Config
	log *zap.Logger

	// mu serializes Predict so one caller drains the stage at a time.
	mu sync.Mutex

	subMu  sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// New creates an App.
func New(cfg Config) (*App, error) {
	if cfg.Classifier == nil || cfg.Source == nil {
		return nil, errors.New("app needs a classifier and a sequence source")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &App{cfg: cfg, log: log, subs: make(map[int]func(Event))}, nil
}

// Bundle describes the loaded classifier.
func (a *App) Bundle() model.Bundle {
	return a.cfg.Classifier.Bundle()
}

// Predict assembles the next sequence and classifies it.
func (a *App) Predict(ctx context.Context) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seq, err := a.cfg.Source.Assemble(ctx)
	if err != nil {
		return Result{}, err
	}

	pred, err := a.cfg.Classifier.Classify(seq)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Prediction: DisplayLabel(pred.Label),
		Confidence: pred.Confidence,
	}

	a.log.Info("prediction",
		zap.String("label", pred.Label),
		zap.Float64("confidence", pred.Confidence),
	)

	now := time.Now()
	if a.cfg.Store != nil {
		rec := &store.Prediction{
			ID:         uuid.New().String(),
			Label:      pred.Label,
			Confidence: pred.Confidence,
			Source:     store.SourcePredict,
			CreatedAt:  now,
		}
		if err := a.cfg.Store.Predictions().Create(rec); err != nil {
			a.log.Warn("failed to record prediction", zap.Error(err))
		}
	}

	a.publish(Event{
		Type:       "prediction",
		Label:      pred.Label,
		Prediction: res.Prediction,
		Confidence: res.Confidence,
		Timestamp:  now.UnixMilli(),
	})
	return res, nil
}

// Subscribe registers fn to receive prediction events and returns a
// function that removes it. fn runs on the predicting goroutine and must
// not block.
func (a *App) Subscribe(fn func(Event)) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.subs, id)
	}
}

func (a *App) publish(e Event) {
	a.subMu.RLock()
	defer a.subMu.RUnlock()
	for _, fn := range a.subs {
		fn(e)
	}
}

// DisplayLabel turns a label identifier into display text.
func DisplayLabel(label string) string {
	return strings.ReplaceAll(label, "_", " ")
}
