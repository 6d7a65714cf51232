// Package features defines the frame keypoint vector layouts fed to the
// sequence classifier.
package features

import (
	"fmt"
	"math"
)

// Layout names the arrangement of landmark coordinates inside a frame vector.
type Layout string

const (
	// LayoutHands is left hand then right hand, 21 landmarks of x,y,z each.
	LayoutHands Layout = "hands"
	// LayoutHolistic is pose (x,y,z,visibility), face (x,y,z), left hand, right hand.
	LayoutHolistic Layout = "holistic"
)

// Landmark counts and sub-vector widths.
const (
	HandPoints = 21
	PosePoints = 33
	FacePoints = 468

	HandWidth = HandPoints * 3
	PoseWidth = PosePoints * 4
	FaceWidth = FacePoints * 3

	HandsWidth    = 2 * HandWidth
	HolisticWidth = PoseWidth + FaceWidth + 2*HandWidth
)

// Hand landmark indices used for normalization (MediaPipe numbering).
const (
	wristIndex     = 0
	middleMCPIndex = 9
)

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutHands, LayoutHolistic:
		return Layout(s), nil
	}
	return "", fmt.Errorf("unknown keypoint layout %q", s)
}

// Width returns the number of values in one frame vector.
func (l Layout) Width() int {
	switch l {
	case LayoutHands:
		return HandsWidth
	case LayoutHolistic:
		return HolisticWidth
	}
	return 0
}

// HandOffsets returns the start index of the left and right hand sub-vectors.
func (l Layout) HandOffsets() (left, right int) {
	if l == LayoutHolistic {
		left = PoseWidth + FaceWidth
		return left, left + HandWidth
	}
	return 0, HandWidth
}

// IsZero reports whether every value of v is zero.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// NormalizeHands returns a copy of vec in which each detected hand is
// translated so the wrist is at the origin and scaled so the wrist to
// middle-finger MCP distance is 1. Undetected (all-zero) hands stay zero.
func NormalizeHands(l Layout, vec []float64) []float64 {
	out := make([]float64, len(vec))
	copy(out, vec)
	if len(vec) != l.Width() {
		return out
	}

	left, right := l.HandOffsets()
	for _, off := range []int{left, right} {
		hand := out[off : off+HandWidth]
		if IsZero(hand) {
			continue
		}
		NormalizeHand(hand)
	}
	return out
}

// NormalizeHand normalizes one 63-value hand sub-vector in place.
func NormalizeHand(hand []float64) {
	if len(hand) != HandWidth {
		return
	}

	wx, wy, wz := hand[wristIndex*3], hand[wristIndex*3+1], hand[wristIndex*3+2]
	for i := 0; i < HandPoints; i++ {
		hand[i*3] -= wx
		hand[i*3+1] -= wy
		hand[i*3+2] -= wz
	}

	mx, my, mz := hand[middleMCPIndex*3], hand[middleMCPIndex*3+1], hand[middleMCPIndex*3+2]
	scale := math.Sqrt(mx*mx + my*my + mz*mz)

	// Avoid division by zero
	if scale < 1e-10 {
		return
	}
	for i := range hand {
		hand[i] /= scale
	}
}
