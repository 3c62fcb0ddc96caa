package detection

import (
	"vision-inspector/internal/domain/entity"
)

var palette = [][3]byte{
	{255, 56, 56}, {255, 157, 151}, {255, 112, 31}, {255, 178, 29},
	{207, 210, 49}, {72, 249, 10}, {146, 204, 23}, {61, 219, 134},
	{26, 147, 52}, {0, 212, 187}, {44, 153, 168}, {0, 194, 255},
}

// box — рамка для отрисовки в координатах кадра.
type box struct {
	x1, y1, x2, y2 int
	thickness      int
	color          [3]byte
}

// drawDetections рисует рамки на копии RGB-кадра.
func drawDetections(f *entity.Frame, dets []entity.Detection, thickness int) *entity.Frame {
	out := f.Clone()
	boxes := make([]box, 0, len(dets))
	for _, d := range dets {
		c := palette[0]
		if d.ClassID >= 0 {
			c = palette[d.ClassID%len(palette)]
		}
		boxes = append(boxes, box{
			x1: int(d.BBox[0]), y1: int(d.BBox[1]), x2: int(d.BBox[2]), y2: int(d.BBox[3]),
			thickness: thickness, color: c,
		})
	}
	drawBoxes(out, boxes)
	return out
}

// drawRegion обводит область детекции.
func drawRegion(f *entity.Frame, r entity.Region) {
	drawBoxes(f, []box{{x1: r.X1, y1: r.Y1, x2: r.X2, y2: r.Y2, thickness: 1, color: [3]byte{255, 255, 0}}})
}

func drawBoxesGo(f *entity.Frame, boxes []box) {
	for _, b := range boxes {
		drawRect(f, b.x1, b.y1, b.x2, b.y2, b.thickness, b.color)
	}
}

func drawRect(f *entity.Frame, x1, y1, x2, y2, t int, c [3]byte) {
	x1, y1 = clampInt(x1, 0, f.Width-1), clampInt(y1, 0, f.Height-1)
	x2, y2 = clampInt(x2, 0, f.Width-1), clampInt(y2, 0, f.Height-1)
	if x2 < x1 || y2 < y1 {
		return
	}
	for k := 0; k < t; k++ {
		hline(f, x1, x2, clampInt(y1+k, 0, f.Height-1), c)
		hline(f, x1, x2, clampInt(y2-k, 0, f.Height-1), c)
		vline(f, clampInt(x1+k, 0, f.Width-1), y1, y2, c)
		vline(f, clampInt(x2-k, 0, f.Width-1), y1, y2, c)
	}
}

func hline(f *entity.Frame, x1, x2, y int, c [3]byte) {
	for x := x1; x <= x2; x++ {
		i := (y*f.Width + x) * 3
		f.Data[i], f.Data[i+1], f.Data[i+2] = c[0], c[1], c[2]
	}
}

func vline(f *entity.Frame, x, y1, y2 int, c [3]byte) {
	for y := y1; y <= y2; y++ {
		i := (y*f.Width + x) * 3
		f.Data[i], f.Data[i+1], f.Data[i+2] = c[0], c[1], c[2]
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
