package detection

import (
	"fmt"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
)

// Форматы выхода модели.
const (
	OutputAuto = "auto"
	OutputRaw  = "raw"
	OutputNMS  = "nms"
)

// Candidate — обнаружение в координатах холста.
type Candidate struct {
	Box     entity.BBox
	Score   float64
	ClassID int
}

// DecodeOptions управляет разбором выхода.
type DecodeOptions struct {
	// Format — auto, raw или nms.
	Format string
	// NumClasses — число известных классов; в режиме auto отличает сырой
	// выход (N, 5+C) от уже подавленного (N, 6|7).
	NumClasses   int
	MinScore     float64
	NMSThreshold float64
}

// Decode приводит выход модели к списку кандидатов.
//
// Поддерживаются три формы: четыре тензора [num_dets, boxes, scores, classes];
// (N,6) или (N,7) после NMS, где седьмой столбец-префикс — номер в батче;
// сырой (N, 5+C) = [cx, cy, w, h, obj, p0..pC-1], к которому применяется NMS.
func Decode(outputs []port.Tensor, opts DecodeOptions) ([]Candidate, error) {
	if len(outputs) == 4 {
		return decodeFourTensors(outputs, opts.MinScore)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unsupported output count %d", len(outputs))
	}

	rows, cols, err := matrixShape(outputs[0])
	if err != nil {
		return nil, err
	}
	data := outputs[0].Data

	format := opts.Format
	if format == "" || format == OutputAuto {
		switch {
		case opts.NumClasses > 0 && cols == 5+opts.NumClasses:
			format = OutputRaw
		case cols == 6 || cols == 7:
			format = OutputNMS
		case cols > 5:
			format = OutputRaw
		default:
			return nil, fmt.Errorf("unsupported output shape %v", outputs[0].Shape)
		}
	}

	switch format {
	case OutputNMS:
		if cols != 6 && cols != 7 {
			return nil, fmt.Errorf("nms output must have 6 or 7 columns, got shape %v", outputs[0].Shape)
		}
		return decodeNMSed(data, rows, cols, opts.MinScore), nil
	case OutputRaw:
		if cols <= 5 {
			return nil, fmt.Errorf("raw output must have more than 5 columns, got shape %v", outputs[0].Shape)
		}
		return decodeRaw(data, rows, cols, opts.MinScore, opts.NMSThreshold), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// matrixShape снимает ведущие единичные оси и требует двумерную матрицу.
func matrixShape(t port.Tensor) (rows, cols int, err error) {
	shape := t.Shape
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("unsupported output shape %v", t.Shape)
	}
	rows, cols = shape[0], shape[1]
	if rows*cols > len(t.Data) {
		return 0, 0, fmt.Errorf("output shape %v exceeds data length %d", t.Shape, len(t.Data))
	}
	return rows, cols, nil
}

func decodeNMSed(data []float32, rows, cols int, minScore float64) []Candidate {
	off := cols - 6
	out := make([]Candidate, 0, rows)
	for r := 0; r < rows; r++ {
		row := data[r*cols+off : (r+1)*cols]
		score := float64(row[4])
		if score < minScore {
			continue
		}
		out = append(out, Candidate{
			Box:     entity.BBox{float64(row[0]), float64(row[1]), float64(row[2]), float64(row[3])},
			Score:   score,
			ClassID: int(row[5]),
		})
	}
	return out
}

func decodeRaw(data []float32, rows, cols int, minScore, nmsThreshold float64) []Candidate {
	boxes := make([]entity.BBox, 0, rows)
	scores := make([]float64, 0, rows)
	classes := make([]int, 0, rows)

	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		obj := float64(row[4])
		best, bestP := 0, float64(row[5])
		for c := 6; c < cols; c++ {
			if p := float64(row[c]); p > bestP {
				best, bestP = c-5, p
			}
		}
		score := obj * bestP
		// кандидат ниже порога не может подавить более сильный, поэтому отбрасываем до NMS
		if score < minScore {
			continue
		}
		cx, cy, w, h := float64(row[0]), float64(row[1]), float64(row[2]), float64(row[3])
		boxes = append(boxes, entity.BBox{cx - w/2, cy - h/2, cx + w/2, cy + h/2})
		scores = append(scores, score)
		classes = append(classes, best)
	}

	keep := NMS(boxes, scores, nmsThreshold)
	out := make([]Candidate, 0, len(keep))
	for _, i := range keep {
		out = append(out, Candidate{Box: boxes[i], Score: scores[i], ClassID: classes[i]})
	}
	return out
}

func decodeFourTensors(outputs []port.Tensor, minScore float64) ([]Candidate, error) {
	numT, boxT, scoreT, classT := outputs[0], outputs[1], outputs[2], outputs[3]
	if len(numT.Data) == 0 {
		return nil, fmt.Errorf("num_dets tensor is empty")
	}
	num := int(numT.Data[0])
	if num < 0 {
		num = 0
	}
	if len(boxT.Data) < num*4 || len(scoreT.Data) < num || len(classT.Data) < num {
		return nil, fmt.Errorf("num_dets %d exceeds tensor sizes", num)
	}
	out := make([]Candidate, 0, num)
	for i := 0; i < num; i++ {
		score := float64(scoreT.Data[i])
		if score < minScore {
			continue
		}
		b := boxT.Data[i*4 : i*4+4]
		out = append(out, Candidate{
			Box:     entity.BBox{float64(b[0]), float64(b[1]), float64(b[2]), float64(b[3])},
			Score:   score,
			ClassID: int(classT.Data[i]),
		})
	}
	return out, nil
}
