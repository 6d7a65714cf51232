package detector

// Preset right hands, one row per landmark in MediaPipe order: wrist, then
// thumb, index, middle, ring and pinky from base to tip. Y grows downward.
var (
	thumbsUp = [NumLandmarks][3]float64{
		{0.50, 0.80, 0},
		{0.55, 0.75, 0}, {0.58, 0.65, 0}, {0.58, 0.50, 0}, {0.58, 0.35, 0},
		{0.55, 0.70, -0.02}, {0.55, 0.68, -0.05}, {0.52, 0.70, -0.04}, {0.50, 0.72, -0.02},
		{0.50, 0.68, -0.02}, {0.50, 0.66, -0.05}, {0.47, 0.68, -0.04}, {0.45, 0.70, -0.02},
		{0.45, 0.70, -0.02}, {0.45, 0.68, -0.05}, {0.42, 0.70, -0.04}, {0.40, 0.72, -0.02},
		{0.40, 0.72, -0.02}, {0.40, 0.70, -0.05}, {0.37, 0.72, -0.04}, {0.35, 0.74, -0.02},
	}
	openPalm = [NumLandmarks][3]float64{
		{0.50, 0.80, 0},
		{0.55, 0.75, 0.02}, {0.62, 0.70, 0.03}, {0.68, 0.65, 0.03}, {0.73, 0.60, 0.03},
		{0.55, 0.68, 0}, {0.57, 0.55, 0}, {0.58, 0.45, 0}, {0.58, 0.35, 0},
		{0.50, 0.66, 0}, {0.50, 0.52, 0}, {0.50, 0.40, 0}, {0.50, 0.28, 0},
		{0.45, 0.68, 0}, {0.43, 0.55, 0}, {0.42, 0.45, 0}, {0.42, 0.35, 0},
		{0.40, 0.70, 0}, {0.37, 0.60, 0}, {0.35, 0.50, 0}, {0.34, 0.42, 0},
	}
)

func rightHand(pts [NumLandmarks][3]float64) HandLandmarks {
	h := HandLandmarks{Handedness: Right, Score: 0.95}
	for i, p := range pts {
		h.Points[i] = Point3D{X: p[0], Y: p[1], Z: p[2]}
	}
	return h
}

// ThumbsUpLandmarks is a right hand with the thumb up and the fingers curled.
func ThumbsUpLandmarks() HandLandmarks { return rightHand(thumbsUp) }

// OpenPalmLandmarks is a right hand with every finger extended.
func OpenPalmLandmarks() HandLandmarks { return rightHand(openPalm) }
