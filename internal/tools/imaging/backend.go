//go:build !gocv
// +build !gocv

package imaging

import "vision-inspector/internal/domain/entity"

// Backend — имя реализации операций над кадрами.
const Backend = "go"

func resizeInto(src *entity.Frame, dst []byte, dstWidth, offX, offY, nw, nh int) {
	resizeBilinearGo(src, dst, dstWidth, offX, offY, nw, nh)
}
