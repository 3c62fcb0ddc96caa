package detection

import (
	"math"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/tools/imaging"
)

// PadValue — цвет заполнения холста.
const PadValue = 114

// Letterbox — параметры вписывания кадра в квадратный холст.
type Letterbox struct {
	Ratio   float64
	NewW    int
	NewH    int
	PadLeft int
	PadTop  int
	Size    int
}

// ComputeLetterbox считает масштаб и отступы для кадра h×w и холста size×size.
// Новые стороны округляются до кратного stride и не превышают size.
func ComputeLetterbox(h, w, size, stride int) Letterbox {
	if stride <= 0 {
		stride = 1
	}
	r := math.Min(float64(size)/float64(h), float64(size)/float64(w))
	nh := roundToStride(float64(h)*r, stride, size)
	nw := roundToStride(float64(w)*r, stride, size)
	return Letterbox{
		Ratio:   r,
		NewW:    nw,
		NewH:    nh,
		PadLeft: (size - nw) / 2,
		PadTop:  (size - nh) / 2,
		Size:    size,
	}
}

func roundToStride(v float64, stride, limit int) int {
	n := int(math.Round(math.Round(v)/float64(stride))) * stride
	if n > limit {
		n = limit
	}
	if n <= 0 {
		n = stride
		if n > limit {
			n = limit
		}
	}
	return n
}

// ToSource переводит точку холста в координаты исходного кадра.
func (l Letterbox) ToSource(x, y float64) (float64, float64) {
	return (x - float64(l.PadLeft)) / l.Ratio, (y - float64(l.PadTop)) / l.Ratio
}

// Letterboxer держит один холст на форму исходного кадра.
type Letterboxer struct {
	size   int
	stride int

	srcW, srcH int
	canvas     []byte
	info       Letterbox
}

// NewLetterboxer создаёт препроцессор для холста size×size.
func NewLetterboxer(size, stride int) *Letterboxer {
	return &Letterboxer{size: size, stride: stride}
}

// Apply вписывает RGB-кадр в холст. Возвращённый буфер переиспользуется
// следующим вызовом с той же формой кадра.
func (l *Letterboxer) Apply(f *entity.Frame) ([]byte, Letterbox) {
	if l.canvas == nil || f.Width != l.srcW || f.Height != l.srcH {
		l.srcW, l.srcH = f.Width, f.Height
		l.info = ComputeLetterbox(f.Height, f.Width, l.size, l.stride)
		l.canvas = make([]byte, l.size*l.size*3)
		for i := range l.canvas {
			l.canvas[i] = PadValue
		}
	}
	imaging.ResizeBilinearInto(f, l.canvas, l.size, l.info.PadLeft, l.info.PadTop, l.info.NewW, l.info.NewH)
	return l.canvas, l.info
}

// ToTensor переводит RGB-холст в NCHW float32 в диапазоне [0,1].
func ToTensor(canvas []byte, size int) port.Tensor {
	return imaging.ToTensor(canvas, size, size, imaging.UnitMean, imaging.UnitStd)
}
