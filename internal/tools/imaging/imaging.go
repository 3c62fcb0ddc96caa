// Package imaging содержит операции над RGB-буферами, общие для инструментов.
package imaging

import (
	"math"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
)

// Нормализация ImageNet.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
	UnitMean     = [3]float32{0, 0, 0}
	UnitStd      = [3]float32{1, 1, 1}
)

// ResizeBilinearInto масштабирует RGB-кадр до nw×nh и пишет результат в dst
// (RGB, ширина строки dstWidth пикселей) начиная с точки (offX, offY).
// При сборке с тегом gocv работу выполняет OpenCV.
func ResizeBilinearInto(src *entity.Frame, dst []byte, dstWidth, offX, offY, nw, nh int) {
	resizeInto(src, dst, dstWidth, offX, offY, nw, nh)
}

// resizeBilinearGo — реализация на Go, совпадающая с INTER_LINEAR по центрам пикселей.
func resizeBilinearGo(src *entity.Frame, dst []byte, dstWidth, offX, offY, nw, nh int) {
	sx := float64(src.Width) / float64(nw)
	sy := float64(src.Height) / float64(nh)
	maxX, maxY := src.Width-1, src.Height-1

	for y := 0; y < nh; y++ {
		y0, y1, wy := sample(y, sy, maxY)
		row := ((y+offY)*dstWidth + offX) * 3
		for x := 0; x < nw; x++ {
			x0, x1, wx := sample(x, sx, maxX)
			p00 := (y0*src.Width + x0) * 3
			p01 := (y0*src.Width + x1) * 3
			p10 := (y1*src.Width + x0) * 3
			p11 := (y1*src.Width + x1) * 3
			d := row + x*3
			for c := 0; c < 3; c++ {
				top := float64(src.Data[p00+c])*(1-wx) + float64(src.Data[p01+c])*wx
				bot := float64(src.Data[p10+c])*(1-wx) + float64(src.Data[p11+c])*wx
				v := math.Round(top*(1-wy) + bot*wy)
				dst[d+c] = byte(math.Min(255, math.Max(0, v)))
			}
		}
	}
}

// sample возвращает соседние индексы и вес для центра пикселя i.
func sample(i int, scale float64, max int) (int, int, float64) {
	f := (float64(i)+0.5)*scale - 0.5
	if f < 0 {
		f = 0
	}
	i0 := int(f)
	if i0 > max {
		i0 = max
	}
	i1 := i0 + 1
	if i1 > max {
		i1 = max
	}
	return i0, i1, f - float64(i0)
}

// Resize возвращает новый RGB-кадр w×h.
func Resize(src *entity.Frame, w, h int) *entity.Frame {
	out := entity.NewFrame(w, h, entity.PixelRGB)
	out.Timestamp, out.Seq = src.Timestamp, src.Seq
	ResizeBilinearInto(src, out.Data, w, 0, 0, w, h)
	return out
}

// ToTensor переводит RGB-буфер w×h в NCHW float32: (v/255 - mean) / std.
func ToTensor(buf []byte, w, h int, mean, std [3]float32) port.Tensor {
	plane := w * h
	data := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			data[c*plane+i] = (float32(buf[i*3+c])/255 - mean[c]) / std[c]
		}
	}
	return port.Tensor{Shape: []int{1, 3, h, w}, Data: data}
}
