// Package imagesave реализует инструмент сохранения кадров на диск.
package imagesave

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/logger"
	"vision-inspector/internal/pipeline"
)

// Ключи конфигурации.
const (
	KeyDirectory      = "directory"
	KeyPrefix         = "prefix"
	KeyFormat         = "format"
	KeyAutoSave       = "auto_save"
	KeyJPEGQuality    = "jpeg_quality"
	KeyPNGCompression = "png_compression"
)

// Ключи результата.
const (
	ResultSaved = "saved"
	ResultPath  = "saved_path"
)

// Schema — ключи конфигурации инструмента сохранения.
func Schema() pipeline.Schema {
	return pipeline.Schema{
		KeyDirectory:      {Default: "images"},
		KeyPrefix:         {Default: "image"},
		KeyFormat:         {Default: "jpg", Validate: pipeline.OneOf("jpg", "png")},
		KeyAutoSave:       {Default: false},
		KeyJPEGQuality:    {Default: 95, Validate: pipeline.IntBetween(1, 100)},
		KeyPNGCompression: {Default: 6, Validate: pipeline.IntBetween(0, 9)},
	}
}

// Tool сохраняет кадр при force_save в контексте или при auto_save.
type Tool struct {
	*pipeline.BaseTool
	log *logger.Logger

	mu   sync.Mutex
	next int
}

// New создаёт инструмент сохранения.
func New(log *logger.Logger) *Tool {
	if log == nil {
		log = logger.WithComponent("imagesave")
	}
	t := &Tool{
		BaseTool: pipeline.NewBaseTool(pipeline.KindSaveImage, "Save Image", Schema()),
		log:      log,
	}
	t.Config().OnChange(func(key string) {
		if key == KeyDirectory || key == KeyPrefix {
			t.mu.Lock()
			t.next = 0
			t.mu.Unlock()
		}
	})
	return t
}

// Factory — фабрика для реестра.
func Factory(log *logger.Logger) pipeline.Factory {
	return func(cfg map[string]any) (pipeline.Tool, error) {
		t := New(log)
		return t, t.Config().Load(cfg)
	}
}

// Process сохраняет кадр и возвращает его без изменений.
func (t *Tool) Process(_ context.Context, img *entity.Frame, pctx pipeline.Context) (*entity.Frame, pipeline.Result, error) {
	cfg := t.Config()
	force, _ := pctx[pipeline.KeyForceSave].(bool)
	if !force && !cfg.Bool(KeyAutoSave) {
		return img, pipeline.Result{ResultSaved: false}, nil
	}
	if img.Empty() {
		return nil, nil, apperrors.Transient("empty frame, nothing to save")
	}

	src := encodeSource(img, pctx, t.log)

	dir := cfg.String(KeyDirectory)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	ext := cfg.String(KeyFormat)
	path, err := t.nextPathLocked(dir, cfg.String(KeyPrefix), ext)
	if err != nil {
		return nil, nil, err
	}

	rgba, err := ToImage(src)
	if err != nil {
		return nil, nil, err
	}
	if err := writeImage(path, rgba, ext, cfg.Int(KeyJPEGQuality), cfg.Int(KeyPNGCompression)); err != nil {
		return nil, nil, err
	}

	t.log.Debug("frame saved", logger.Fields("path", path, "seq", img.Seq))
	return img, pipeline.Result{ResultSaved: true, ResultPath: path}, nil
}

// encodeSource выбирает порядок каналов для записи: pixel_format из контекста,
// если он задан и совместим с размером буфера, иначе метка самого кадра.
func encodeSource(img *entity.Frame, pctx pipeline.Context, log *logger.Logger) *entity.Frame {
	if pctx[pipeline.KeyPixelFormat] == nil {
		return img
	}
	pf := pctx.PixelFormat()
	if pf == img.Format {
		return img
	}
	retagged := *img
	retagged.Format = pf
	if retagged.Empty() {
		log.Warn("context pixel format does not fit frame buffer, using frame tag", logger.Fields(
			"context_format", pf.String(), "frame_format", img.Format.String()))
		return img
	}
	return &retagged
}

// nextPathLocked выбирает <prefix>_<n>.<ext>, где n на единицу больше
// наибольшего существующего номера.
func (t *Tool) nextPathLocked(dir, prefix, ext string) (string, error) {
	if t.next == 0 {
		n, err := MaxIndex(dir, prefix)
		if err != nil {
			return "", err
		}
		t.next = n + 1
	}
	for {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.%s", prefix, t.next, ext))
		t.next++
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
}

// MaxIndex возвращает наибольший номер файла вида <prefix>_<n>.<ext> в каталоге.
func MaxIndex(dir, prefix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	re := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `_(\d+)\.[A-Za-z0-9]+$`)
	maxN := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxN {
			maxN = n
		}
	}
	return maxN, nil
}

// ToImage переводит кадр в image.RGBA согласно его формату.
func ToImage(f *entity.Frame) (*image.RGBA, error) {
	rgb, err := f.ToRGB()
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(image.Rect(0, 0, rgb.Width, rgb.Height))
	n := rgb.Width * rgb.Height
	for i := 0; i < n; i++ {
		out.Pix[i*4] = rgb.Data[i*3]
		out.Pix[i*4+1] = rgb.Data[i*3+1]
		out.Pix[i*4+2] = rgb.Data[i*3+2]
		out.Pix[i*4+3] = 255
	}
	return out, nil
}

func writeImage(path string, img image.Image, ext string, quality, compression int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch ext {
	case "png":
		enc := png.Encoder{CompressionLevel: pngLevel(compression)}
		err = enc.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// pngLevel сводит шкалу сжатия 0..9 к уровням image/png.
func pngLevel(n int) png.CompressionLevel {
	switch {
	case n == 0:
		return png.NoCompression
	case n <= 3:
		return png.BestSpeed
	case n <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
