// Package detector provides landmark detection interfaces and types for sign recognition.
package detector

import "github.com/mubayin/signseq/internal/features"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = features.HandPoints
)

// Handedness labels reported by MediaPipe.
const (
	Left  = "Left"
	Right = "Right"
)

// HandConnections lists the landmark pairs joined when drawing a hand.
var HandConnections = [][2]int{
	{Wrist, ThumbCMC}, {ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	{Wrist, IndexMCP}, {IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	{IndexMCP, MiddleMCP}, {MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	{MiddleMCP, RingMCP}, {RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	{RingMCP, PinkyMCP}, {Wrist, PinkyMCP}, {PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP}, {PinkyDIP, PinkyTip},
}

// Point3D represents a 3D point in space with x, y, z coordinates.
// X and Y are normalized to the image size.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PosePoint is a body landmark with its visibility estimate.
type PosePoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Result is everything the detector found in one image.
type Result struct {
	Hands []HandLandmarks `json:"hands"`
	Pose  []PosePoint     `json:"pose,omitempty"`
	Face  []Point3D       `json:"face,omitempty"`
}

// Hand returns the first hand with the given handedness, or nil.
func (r *Result) Hand(handedness string) *HandLandmarks {
	if r == nil {
		return nil
	}
	for i := range r.Hands {
		if r.Hands[i].Handedness == handedness {
			return &r.Hands[i]
		}
	}
	return nil
}

// Keypoints flattens the result into a frame vector of the given layout.
// Missing parts are zero-filled so the width is always layout.Width().
func (r *Result) Keypoints(layout features.Layout) []float64 {
	vec := make([]float64, layout.Width())
	if r == nil || len(vec) == 0 {
		return vec
	}

	if layout == features.LayoutHolistic {
		for i, p := range r.Pose {
			if i >= features.PosePoints {
				break
			}
			copy(vec[i*4:], []float64{p.X, p.Y, p.Z, p.Visibility})
		}
		face := vec[features.PoseWidth:]
		for i, p := range r.Face {
			if i >= features.FacePoints {
				break
			}
			copy(face[i*3:], []float64{p.X, p.Y, p.Z})
		}
	}

	left, right := layout.HandOffsets()
	putHand(vec[left:left+features.HandWidth], r.Hand(Left))
	putHand(vec[right:right+features.HandWidth], r.Hand(Right))
	return vec
}

func putHand(dst []float64, h *HandLandmarks) {
	if h == nil {
		return
	}
	for i, p := range h.Points {
		dst[i*3] = p.X
		dst[i*3+1] = p.Y
		dst[i*3+2] = p.Z
	}
}
