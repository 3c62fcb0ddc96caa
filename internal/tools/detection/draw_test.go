package detection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/domain/entity"
)

func pixel(f *entity.Frame, x, y int) []byte {
	i := (y*f.Width + x) * 3
	return f.Data[i : i+3]
}

func TestDrawDetections_OutlinesOnCopy(t *testing.T) {
	src := entity.NewFrame(10, 10, entity.PixelRGB)
	dets := []entity.Detection{{BBox: entity.BBox{2, 2, 7, 7}, ClassID: 1, Confidence: 0.9}}

	out := drawDetections(src, dets, 1)
	c := palette[1]
	require.Equal(t, c[:], pixel(out, 2, 2))
	require.Equal(t, c[:], pixel(out, 7, 5))
	require.Equal(t, []byte{0, 0, 0}, pixel(out, 4, 4))
	require.Equal(t, []byte{0, 0, 0}, pixel(src, 2, 2))
}

func TestDrawDetections_NegativeClassUsesFirstColor(t *testing.T) {
	src := entity.NewFrame(6, 6, entity.PixelRGB)
	out := drawDetections(src, []entity.Detection{{BBox: entity.BBox{1, 1, 4, 4}, ClassID: -1}}, 1)
	c := palette[0]
	require.Equal(t, c[:], pixel(out, 1, 1))
}
