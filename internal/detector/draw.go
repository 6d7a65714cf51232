package detector

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	connectionColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	landmarkColor   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// DrawHands draws every detected hand's landmarks and connections onto img.
// Landmark coordinates are normalized, so they are scaled by the image size.
func DrawHands(img *gocv.Mat, r *Result) {
	if img == nil || img.Empty() || r == nil {
		return
	}

	w, h := img.Cols(), img.Rows()
	for i := range r.Hands {
		hand := &r.Hands[i]

		for _, c := range HandConnections {
			gocv.Line(img, toPixel(hand.Points[c[0]], w, h), toPixel(hand.Points[c[1]], w, h), connectionColor, 2)
		}
		for _, p := range hand.Points {
			gocv.Circle(img, toPixel(p, w, h), 3, landmarkColor, -1)
		}
	}
}

func toPixel(p Point3D, w, h int) image.Point {
	return image.Point{X: int(p.X * float64(w)), Y: int(p.Y * float64(h))}
}
