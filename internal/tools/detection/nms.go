package detection

import (
	"sort"

	"vision-inspector/internal/domain/entity"
)

// NMS — жадное подавление немаксимумов. Возвращает индексы оставленных
// прямоугольников по убыванию score. Пары с IoU >= threshold подавляются.
func NMS(boxes []entity.BBox, scores []float64, threshold float64) []int {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	keep := make([]int, 0, len(order))
	for len(order) > 0 {
		i := order[0]
		keep = append(keep, i)
		rest := order[:0]
		for _, j := range order[1:] {
			if boxes[i].IoU(boxes[j]) < threshold {
				rest = append(rest, j)
			}
		}
		order = rest
	}
	return keep
}
