package detection

import (
	"fmt"
	"math"

	"vision-inspector/internal/domain/entity"
)

// PostprocessOptions — параметры перевода кандидатов в обнаружения.
type PostprocessOptions struct {
	Letterbox       Letterbox
	OffsetX         int
	OffsetY         int
	FrameWidth      int
	FrameHeight     int
	MinConfidence   float64
	ClassNames      []string
	SelectedClasses []string
}

// Postprocess отбрасывает слабые кандидаты, переводит рамки в координаты
// исходного кадра, подставляет имена классов и применяет фильтр классов.
func Postprocess(cands []Candidate, opts PostprocessOptions) []entity.Detection {
	var selected map[string]struct{}
	if len(opts.SelectedClasses) > 0 {
		selected = make(map[string]struct{}, len(opts.SelectedClasses))
		for _, c := range opts.SelectedClasses {
			selected[c] = struct{}{}
		}
	}

	out := make([]entity.Detection, 0, len(cands))
	for _, c := range cands {
		if c.Score < opts.MinConfidence {
			continue
		}
		name := ClassName(opts.ClassNames, c.ClassID)
		if selected != nil {
			if _, ok := selected[name]; !ok {
				continue
			}
		}

		x1, y1 := opts.Letterbox.ToSource(c.Box[0], c.Box[1])
		x2, y2 := opts.Letterbox.ToSource(c.Box[2], c.Box[3])
		x1 += float64(opts.OffsetX)
		x2 += float64(opts.OffsetX)
		y1 += float64(opts.OffsetY)
		y2 += float64(opts.OffsetY)

		box := entity.BBox{
			clip(x1, float64(opts.FrameWidth)),
			clip(y1, float64(opts.FrameHeight)),
			clip(x2, float64(opts.FrameWidth)),
			clip(y2, float64(opts.FrameHeight)),
		}
		if box.Area() == 0 {
			continue
		}
		out = append(out, entity.Detection{
			BBox:       box,
			Confidence: c.Score,
			ClassID:    c.ClassID,
			ClassName:  name,
		})
	}
	return out
}

// ClassName возвращает имя класса или class_<id>.
func ClassName(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return fmt.Sprintf("class_%d", id)
}

func clip(v, limit float64) float64 {
	return math.Min(math.Max(v, 0), limit)
}
