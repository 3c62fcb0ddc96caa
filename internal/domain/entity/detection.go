package entity

import "math"

// BBox — прямоугольник в углах (x1, y1, x2, y2), в пикселях исходного кадра.
type BBox [4]float64

// Width возвращает ширину, не меньше нуля.
func (b BBox) Width() float64 { return math.Max(0, b[2]-b[0]) }

// Height возвращает высоту, не меньше нуля.
func (b BBox) Height() float64 { return math.Max(0, b[3]-b[1]) }

// Area возвращает площадь прямоугольника.
func (b BBox) Area() float64 { return b.Width() * b.Height() }

// Center возвращает координаты центра.
func (b BBox) Center() (x, y float64) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// IoU — пересечение над объединением. Пустое объединение даёт 0.
func (b BBox) IoU(o BBox) float64 {
	iw := math.Max(0, math.Min(b[2], o[2])-math.Max(b[0], o[0]))
	ih := math.Max(0, math.Min(b[3], o[3])-math.Max(b[1], o[1]))
	inter := iw * ih
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection — один найденный объект.
type Detection struct {
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
}

// Region — прямоугольная область кадра (x1, y1, x2, y2).
type Region struct {
	X1, Y1, X2, Y2 int
}

// Valid сообщает, что область непустая.
func (r Region) Valid() bool { return r.X2 > r.X1 && r.Y2 > r.Y1 }
