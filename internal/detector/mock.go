package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector returns canned results. Queued results are served first,
// one per call; after that every call gets the fixed result or error.
type MockDetector struct {
	mu     sync.Mutex
	queue  []*Result
	result *Result
	err    error
	calls  int
}

func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands fixes the result to the given hands.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.SetResult(&Result{Hands: hands})
}

func (m *MockDetector) SetResult(r *Result) {
	m.mu.Lock()
	m.result = r
	m.mu.Unlock()
}

func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Enqueue appends results to serve, in order, before the fixed one.
// A nil entry reports an empty frame.
func (m *MockDetector) Enqueue(results ...*Result) {
	m.mu.Lock()
	m.queue = append(m.queue, results...)
	m.mu.Unlock()
}

// Calls returns how many times Detect has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect ignores the frame.
func (m *MockDetector) Detect(*gocv.Mat) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		if r == nil {
			r = &Result{}
		}
		return r, nil
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &Result{}, nil
	}
	return m.result, nil
}

func (m *MockDetector) Close() error { return nil }

// Mirrored returns a copy of h reflected horizontally with the opposite handedness.
func Mirrored(h HandLandmarks) HandLandmarks {
	m := h
	for i := range m.Points {
		m.Points[i].X = 1 - m.Points[i].X
	}
	if h.Handedness == Right {
		m.Handedness = Left
	} else {
		m.Handedness = Right
	}
	return m
}
