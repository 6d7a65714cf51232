package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mubayin/signseq/internal/capture"
	"github.com/mubayin/signseq/internal/model"
	"github.com/mubayin/signseq/internal/store"
)

// fixedClassifier always returns the same distribution.
type fixedClassifier struct {
	bundle model.Bundle
	probs  []float64
	seen   [][][]float64
}

func (c *fixedClassifier) Predict(seq [][]float64) ([]float64, error) {
	c.seen = append(c.seen, seq)
	return c.probs, nil
}

func (c *fixedClassifier) Classify(seq [][]float64) (model.Prediction, error) {
	probs, _ := c.Predict(seq)
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return model.Prediction{Label: c.bundle.Labels[best], Index: best, Confidence: probs[best]}, nil
}

func (c *fixedClassifier) Bundle() model.Bundle { return c.bundle }

type fakeSource struct {
	seq [][]float64
	err error
}

func (s *fakeSource) Assemble(ctx context.Context) ([][]float64, error) {
	return s.seq, s.err
}

func excuseMeClassifier() *fixedClassifier {
	return &fixedClassifier{
		bundle: model.DefaultBundle([]string{"hello", "Excuse_Me"}),
		probs:  []float64{0.08, 0.92},
	}
}

func TestApp_Predict(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer s.Close()

	clf := excuseMeClassifier()
	seq := [][]float64{{1}, {2}}
	a, err := New(Config{Classifier: clf, Source: &fakeSource{seq: seq}, Store: s})
	require.NoError(t, err)

	var events []Event
	unsubscribe := a.Subscribe(func(e Event) { events = append(events, e) })

	res, err := a.Predict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Prediction: "Excuse Me", Confidence: 0.92}, res)
	assert.Equal(t, [][][]float64{seq}, clf.seen)

	require.Len(t, events, 1)
	assert.Equal(t, "Excuse_Me", events[0].Label)
	assert.Equal(t, "Excuse Me", events[0].Prediction)

	preds, err := s.Predictions().List(0)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "Excuse_Me", preds[0].Label)
	assert.Equal(t, 0.92, preds[0].Confidence)

	unsubscribe()
	_, err = a.Predict(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestApp_PredictPropagatesSourceErrors(t *testing.T) {
	clf := excuseMeClassifier()
	src := &fakeSource{err: capture.ErrInsufficientFrames}
	a, err := New(Config{Classifier: clf, Source: src})
	require.NoError(t, err)

	_, err = a.Predict(context.Background())
	assert.True(t, errors.Is(err, capture.ErrInsufficientFrames))
	assert.Empty(t, clf.seen)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Source: &fakeSource{}})
	assert.Error(t, err)
	_, err = New(Config{Classifier: excuseMeClassifier()})
	assert.Error(t, err)
}

func TestDisplayLabel(t *testing.T) {
	assert.Equal(t, "nice to meet you", DisplayLabel("nice_to_meet_you"))
	assert.Equal(t, "hello", DisplayLabel("hello"))
}
