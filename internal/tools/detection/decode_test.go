package detection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
)

func TestNMS_SuppressesOverlaps(t *testing.T) {
	boxes := []entity.BBox{
		{0, 0, 10, 10},
		{1, 1, 11, 11},
		{50, 50, 60, 60},
		{0, 0, 10, 10},
	}
	scores := []float64{0.8, 0.9, 0.5, 0.3}

	keep := NMS(boxes, scores, 0.5)
	require.Equal(t, []int{1, 2}, keep)
}

func TestNMS_Idempotent(t *testing.T) {
	boxes := []entity.BBox{
		{0, 0, 10, 10}, {2, 2, 12, 12}, {5, 5, 15, 15},
		{20, 20, 30, 30}, {21, 19, 31, 29}, {100, 100, 100, 100},
	}
	scores := []float64{0.9, 0.85, 0.7, 0.6, 0.95, 0.4}

	once := NMS(boxes, scores, 0.3)
	keptBoxes := make([]entity.BBox, len(once))
	keptScores := make([]float64, len(once))
	for i, idx := range once {
		keptBoxes[i], keptScores[i] = boxes[idx], scores[idx]
	}
	twice := NMS(keptBoxes, keptScores, 0.3)
	require.Len(t, twice, len(once))
}

func TestDecode_RawAppliesScoreAndNMS(t *testing.T) {
	out := port.Tensor{
		Shape: []int{1, 3, 7},
		Data: []float32{
			320, 320, 200, 400, 0.9, 0.9, 0.1,
			322, 321, 200, 400, 0.8, 0.9, 0.1,
			100, 100, 20, 20, 0.9, 0.2, 0.8,
		},
	}
	cands, err := Decode([]port.Tensor{out}, DecodeOptions{NumClasses: 2, NMSThreshold: 0.45})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	require.InDelta(t, 0.81, cands[0].Score, 1e-6)
	require.Equal(t, 0, cands[0].ClassID)
	require.Equal(t, entity.BBox{220, 120, 420, 520}, cands[0].Box)
	require.Equal(t, 1, cands[1].ClassID)
}

func TestDecode_NMSedWithBatchPrefix(t *testing.T) {
	out := port.Tensor{
		Shape: []int{2, 7},
		Data: []float32{
			0, 10, 20, 30, 40, 0.75, 3,
			0, 1, 2, 3, 4, 0.1, 1,
		},
	}
	cands, err := Decode([]port.Tensor{out}, DecodeOptions{MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, entity.BBox{10, 20, 30, 40}, cands[0].Box)
	require.Equal(t, 3, cands[0].ClassID)
}

func TestDecode_FourTensors(t *testing.T) {
	outs := []port.Tensor{
		{Shape: []int{1, 1}, Data: []float32{2}},
		{Shape: []int{1, 3, 4}, Data: []float32{0, 0, 5, 5, 10, 10, 20, 20, 9, 9, 9, 9}},
		{Shape: []int{1, 3}, Data: []float32{0.9, 0.6, 0.99}},
		{Shape: []int{1, 3}, Data: []float32{1, 2, 0}},
	}
	cands, err := Decode(outs, DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	require.Equal(t, 2, cands[1].ClassID)
}

func TestDecode_RejectsUnsupportedShape(t *testing.T) {
	_, err := Decode([]port.Tensor{{Shape: []int{2, 3, 4}, Data: make([]float32, 24)}}, DecodeOptions{})
	require.Error(t, err)

	_, err = Decode([]port.Tensor{{Shape: []int{4, 5}, Data: make([]float32, 20)}}, DecodeOptions{})
	require.Error(t, err)

	_, err = Decode([]port.Tensor{{}, {}}, DecodeOptions{})
	require.Error(t, err)
}

func TestPostprocess_ClassFilterAndFallbackName(t *testing.T) {
	lb := ComputeLetterbox(480, 640, 640, 32)
	cands := []Candidate{
		{Box: entity.BBox{0, 80, 100, 180}, Score: 0.9, ClassID: 0},
		{Box: entity.BBox{0, 80, 100, 180}, Score: 0.9, ClassID: 1},
		{Box: entity.BBox{0, 80, 100, 180}, Score: 0.9, ClassID: 7},
		{Box: entity.BBox{0, 80, 100, 180}, Score: 0.2, ClassID: 0},
	}

	all := Postprocess(cands, PostprocessOptions{
		Letterbox: lb, FrameWidth: 640, FrameHeight: 480, MinConfidence: 0.5,
		ClassNames: []string{"person", "car"},
	})
	require.Len(t, all, 3)
	require.Equal(t, "class_7", all[2].ClassName)
	require.Equal(t, entity.BBox{0, 0, 100, 100}, all[0].BBox)

	filtered := Postprocess(cands, PostprocessOptions{
		Letterbox: lb, FrameWidth: 640, FrameHeight: 480, MinConfidence: 0.5,
		ClassNames: []string{"person", "car"}, SelectedClasses: []string{"car"},
	})
	require.Len(t, filtered, 1)
	for _, d := range filtered {
		require.Equal(t, "car", d.ClassName)
	}
}

func TestPostprocess_ClipsToFrame(t *testing.T) {
	lb := ComputeLetterbox(480, 640, 640, 32)
	dets := Postprocess([]Candidate{{Box: entity.BBox{-20, 40, 700, 600}, Score: 1}}, PostprocessOptions{
		Letterbox: lb, FrameWidth: 640, FrameHeight: 480,
	})
	require.Len(t, dets, 1)
	require.Equal(t, entity.BBox{0, 0, 640, 480}, dets[0].BBox)
}
