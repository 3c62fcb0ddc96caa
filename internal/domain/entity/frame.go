package entity

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// PixelFormat — порядок и состав каналов в буфере кадра.
type PixelFormat int

const (
	PixelRGB PixelFormat = iota
	PixelBGR
	PixelRGBA
	PixelYUV420 // планарный I420: Y, затем U и V в четверть размера
)

func (p PixelFormat) String() string {
	switch p {
	case PixelRGB:
		return "RGB"
	case PixelBGR:
		return "BGR"
	case PixelRGBA:
		return "RGBA"
	case PixelYUV420:
		return "YUV420"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
}

// ParsePixelFormat разбирает имя формата без учёта регистра.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RGB", "RGB888":
		return PixelRGB, nil
	case "BGR", "BGR888":
		return PixelBGR, nil
	case "RGBA", "XRGB8888", "RGBA8888":
		return PixelRGBA, nil
	case "YUV420", "I420":
		return PixelYUV420, nil
	}
	return PixelRGB, fmt.Errorf("unknown pixel format %q", s)
}

// Frame — один захваченный кадр.
type Frame struct {
	Width     int
	Height    int
	Format    PixelFormat
	Data      []byte
	Timestamp time.Time
	Seq       uint64
}

// NewFrame выделяет пустой кадр заданного формата.
func NewFrame(width, height int, format PixelFormat) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Format: format,
		Data:   make([]byte, BufferSize(width, height, format)),
	}
}

// BufferSize — размер буфера в байтах для кадра w×h.
func BufferSize(width, height int, format PixelFormat) int {
	switch format {
	case PixelRGBA:
		return width * height * 4
	case PixelYUV420:
		cw, ch := (width+1)/2, (height+1)/2
		return width*height + 2*cw*ch
	default:
		return width * height * 3
	}
}

// Channels возвращает число байт на пиксель для упакованных форматов.
func (f *Frame) Channels() int {
	switch f.Format {
	case PixelRGBA:
		return 4
	case PixelYUV420:
		return 1
	default:
		return 3
	}
}

// Empty сообщает, что кадр не содержит данных.
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Data) < BufferSize(f.Width, f.Height, f.Format)
}

// Bounds возвращает прямоугольник кадра.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Clone делает глубокую копию.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

// ToRGB возвращает кадр в каноническом формате RGB. Для RGB-кадра возвращается сам кадр.
func (f *Frame) ToRGB() (*Frame, error) {
	if f.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	if f.Format == PixelRGB {
		return f, nil
	}
	out := NewFrame(f.Width, f.Height, PixelRGB)
	out.Timestamp, out.Seq = f.Timestamp, f.Seq
	n := f.Width * f.Height
	switch f.Format {
	case PixelBGR:
		for i := 0; i < n; i++ {
			out.Data[i*3] = f.Data[i*3+2]
			out.Data[i*3+1] = f.Data[i*3+1]
			out.Data[i*3+2] = f.Data[i*3]
		}
	case PixelRGBA:
		for i := 0; i < n; i++ {
			copy(out.Data[i*3:i*3+3], f.Data[i*4:i*4+3])
		}
	case PixelYUV420:
		yuvToRGB(f, out)
	default:
		return nil, fmt.Errorf("unsupported pixel format %s", f.Format)
	}
	return out, nil
}

// yuvToRGB переводит I420 в RGB по BT.601.
func yuvToRGB(src, dst *Frame) {
	w, h := src.Width, src.Height
	cw, ch := (w+1)/2, (h+1)/2
	yPlane := src.Data[:w*h]
	uPlane := src.Data[w*h : w*h+cw*ch]
	vPlane := src.Data[w*h+cw*ch:]
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yy := float64(yPlane[y*w+x])
			u := float64(uPlane[(y/2)*cw+x/2]) - 128
			v := float64(vPlane[(y/2)*cw+x/2]) - 128
			i := (y*w + x) * 3
			dst.Data[i] = clampByte(yy + 1.402*v)
			dst.Data[i+1] = clampByte(yy - 0.344136*u - 0.714136*v)
			dst.Data[i+2] = clampByte(yy + 1.772*u)
		}
	}
}

// Crop вырезает область из RGB/BGR/RGBA кадра. Область обрезается по границам кадра.
func (f *Frame) Crop(r image.Rectangle) (*Frame, error) {
	if f.Format == PixelYUV420 {
		return nil, fmt.Errorf("crop is not supported for %s", f.Format)
	}
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("crop region is outside the frame")
	}
	ch := f.Channels()
	out := NewFrame(r.Dx(), r.Dy(), f.Format)
	out.Timestamp, out.Seq = f.Timestamp, f.Seq
	rowLen := r.Dx() * ch
	for y := 0; y < r.Dy(); y++ {
		src := ((r.Min.Y+y)*f.Width + r.Min.X) * ch
		copy(out.Data[y*rowLen:(y+1)*rowLen], f.Data[src:src+rowLen])
	}
	return out, nil
}

func clampByte(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v + 0.5)
}
