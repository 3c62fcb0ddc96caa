//go:build !gocv
// +build !gocv

package detection

import "vision-inspector/internal/domain/entity"

func drawBoxes(f *entity.Frame, boxes []box) {
	drawBoxesGo(f, boxes)
}
