//go:build gocv
// +build gocv

package imaging

import (
	"image"

	"gocv.io/x/gocv"

	"vision-inspector/internal/domain/entity"
)

// Backend — имя реализации операций над кадрами.
const Backend = "opencv"

func resizeInto(src *entity.Frame, dst []byte, dstWidth, offX, offY, nw, nh int) {
	in, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV8UC3, src.Data[:src.Width*src.Height*3])
	if err != nil {
		resizeBilinearGo(src, dst, dstWidth, offX, offY, nw, nh)
		return
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.Resize(in, &out, image.Pt(nw, nh), 0, 0, gocv.InterpolationLinear)

	buf := out.ToBytes()
	row := nw * 3
	for y := 0; y < nh; y++ {
		copy(dst[((y+offY)*dstWidth+offX)*3:], buf[y*row:(y+1)*row])
	}
}
