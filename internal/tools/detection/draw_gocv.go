//go:build gocv
// +build gocv

package detection

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"vision-inspector/internal/domain/entity"
)

// drawBoxes рисует рамки через OpenCV. Буфер RGB, а gocv пишет цвет как BGR,
// поэтому R и B в color.RGBA переставлены.
func drawBoxes(f *entity.Frame, boxes []box) {
	if len(boxes) == 0 {
		return
	}
	n := f.Width * f.Height * 3
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data[:n])
	if err != nil {
		drawBoxesGo(f, boxes)
		return
	}
	defer mat.Close()

	for _, b := range boxes {
		c := color.RGBA{R: b.color[2], G: b.color[1], B: b.color[0], A: 255}
		gocv.Rectangle(&mat, image.Rect(b.x1, b.y1, b.x2, b.y2), c, b.thickness)
	}
	copy(f.Data[:n], mat.ToBytes())
}
