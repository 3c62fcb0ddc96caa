package imagesave

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/logger"
	"vision-inspector/internal/pipeline"
)

func newSaver(t *testing.T, cfg map[string]any) *Tool {
	t.Helper()
	tool, err := Factory(logger.Nop())(cfg)
	require.NoError(t, err)
	return tool.(*Tool)
}

func TestTool_SkipsWithoutForceOrAuto(t *testing.T) {
	dir := t.TempDir()
	saver := newSaver(t, map[string]any{KeyDirectory: dir})

	img := entity.NewFrame(4, 4, entity.PixelRGB)
	out, res, err := saver.Process(context.Background(), img, pipeline.Context{})
	require.NoError(t, err)
	require.Same(t, img, out)
	require.Equal(t, false, res[ResultSaved])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestTool_NumbersAfterLargestExisting(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"part_3.jpg", "part_10.png", "other_50.jpg", "part_x.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	saver := newSaver(t, map[string]any{KeyDirectory: dir, KeyPrefix: "part", KeyFormat: "png"})

	ctx := pipeline.Context{pipeline.KeyForceSave: true}
	_, res, err := saver.Process(context.Background(), entity.NewFrame(4, 4, entity.PixelRGB), ctx)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "part_11.png"), res[ResultPath])

	_, res, err = saver.Process(context.Background(), entity.NewFrame(4, 4, entity.PixelRGB), ctx)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "part_12.png"), res[ResultPath])
}

func TestTool_PNGKeepsRGBOrder(t *testing.T) {
	dir := t.TempDir()
	saver := newSaver(t, map[string]any{KeyDirectory: dir, KeyFormat: "png", KeyAutoSave: true})

	img := entity.NewFrame(1, 1, entity.PixelBGR)
	copy(img.Data, []byte{10, 20, 30})
	_, res, err := saver.Process(context.Background(), img, pipeline.Context{
		pipeline.KeyPixelFormat: entity.PixelBGR.String(),
	})
	require.NoError(t, err)

	f, err := os.Open(res[ResultPath].(string))
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	r, g, b, _ := decoded.At(0, 0).RGBA()
	require.Equal(t, []uint32{30, 20, 10}, []uint32{r >> 8, g >> 8, b >> 8})
}

func decodePixel(t *testing.T, path string) []uint32 {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	r, g, b, _ := decoded.At(0, 0).RGBA()
	return []uint32{r >> 8, g >> 8, b >> 8}
}

func TestTool_ContextPixelFormatDrivesChannelOrder(t *testing.T) {
	dir := t.TempDir()
	saver := newSaver(t, map[string]any{KeyDirectory: dir, KeyFormat: "png", KeyAutoSave: true})

	img := entity.NewFrame(1, 1, entity.PixelRGB)
	copy(img.Data, []byte{10, 20, 30})
	_, res, err := saver.Process(context.Background(), img, pipeline.Context{
		pipeline.KeyPixelFormat: entity.PixelBGR.String(),
	})
	require.NoError(t, err)
	require.Equal(t, []uint32{30, 20, 10}, decodePixel(t, res[ResultPath].(string)))
	require.Equal(t, entity.PixelRGB, img.Format)

	_, res, err = saver.Process(context.Background(), img, pipeline.Context{})
	require.NoError(t, err)
	require.Equal(t, []uint32{10, 20, 30}, decodePixel(t, res[ResultPath].(string)))
}

func TestTool_IncompatibleContextFormatFallsBackToFrame(t *testing.T) {
	dir := t.TempDir()
	saver := newSaver(t, map[string]any{KeyDirectory: dir, KeyFormat: "png", KeyAutoSave: true})

	img := entity.NewFrame(1, 1, entity.PixelRGB)
	copy(img.Data, []byte{10, 20, 30})
	_, res, err := saver.Process(context.Background(), img, pipeline.Context{
		pipeline.KeyPixelFormat: entity.PixelRGBA.String(),
	})
	require.NoError(t, err)
	require.Equal(t, []uint32{10, 20, 30}, decodePixel(t, res[ResultPath].(string)))
}

func TestTool_JPEGFromRGBA(t *testing.T) {
	dir := t.TempDir()
	saver := newSaver(t, map[string]any{KeyDirectory: dir, KeyAutoSave: true})

	_, res, err := saver.Process(context.Background(), entity.NewFrame(8, 8, entity.PixelRGBA), nil)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "image_1.jpg"), res[ResultPath])
	require.FileExists(t, res[ResultPath].(string))
}

func TestMaxIndex_MissingDir(t *testing.T) {
	n, err := MaxIndex(filepath.Join(t.TempDir(), "nope"), "image")
	require.NoError(t, err)
	require.Zero(t, n)
}
