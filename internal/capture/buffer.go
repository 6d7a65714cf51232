package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrWidthMismatch is returned when a keypoint vector does not have the
	// width the classifier was trained on.
	ErrWidthMismatch = errors.New("keypoint width mismatch")
	// ErrBufferFull is returned by Push once the buffer holds a full sequence.
	ErrBufferFull = errors.New("sequence buffer is full")
)

// Buffer accumulates frame keypoint vectors until it holds one sequence.
type Buffer struct {
	frames   [][]float64
	capacity int
	width    int
}

// NewBuffer creates a buffer for sequences of capacity vectors of width values.
func NewBuffer(capacity, width int) *Buffer {
	return &Buffer{
		frames:   make([][]float64, 0, capacity),
		capacity: capacity,
		width:    width,
	}
}

// Push appends a copy of vec.
func (b *Buffer) Push(vec []float64) error {
	if len(vec) != b.width {
		return fmt.Errorf("%w: got %d, want %d", ErrWidthMismatch, len(vec), b.width)
	}
	if b.Full() {
		return ErrBufferFull
	}
	b.frames = append(b.frames, append([]float64(nil), vec...))
	return nil
}

// Len returns the number of buffered vectors.
func (b *Buffer) Len() int {
	return len(b.frames)
}

// Full reports whether the buffer holds a complete sequence.
func (b *Buffer) Full() bool {
	return len(b.frames) == b.capacity
}

// Consume returns the buffered sequence and empties the buffer. It fails
// with ErrInsufficientFrames unless the buffer is full.
func (b *Buffer) Consume() ([][]float64, error) {
	if !b.Full() {
		return nil, fmt.Errorf("%w (need %d, have %d)", ErrInsufficientFrames, b.capacity, len(b.frames))
	}
	seq := b.frames
	b.frames = make([][]float64, 0, b.capacity)
	return seq, nil
}

// Reset discards buffered vectors.
func (b *Buffer) Reset() {
	b.frames = b.frames[:0]
}
