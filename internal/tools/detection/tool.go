// Package detection реализует инструмент обнаружения объектов на ONNX-модели YOLO.
package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
	"vision-inspector/internal/pipeline"
)

// Ключи конфигурации.
const (
	KeyModelPath       = "model_path"
	KeyClassNames      = "class_names"
	KeySelectedClasses = "selected_classes"
	KeyConfidence      = "confidence_threshold"
	KeyNMS             = "nms_threshold"
	KeyImgSize         = "imgsz"
	KeyStride          = "stride"
	KeyRegion          = "detection_region"
	KeyOutputFormat    = "output_format"
	KeyDrawBoxes       = "draw_boxes"
	KeyDrawRegion      = "draw_region"
	KeyEnabled         = "enabled"
)

// Ключи результата.
const (
	ResultDetections     = "detections"
	ResultCount          = "detection_count"
	ResultClassCounts    = "class_counts"
	ResultAvgConfidence  = "average_confidence"
	ResultExecutionMS    = "execution_time_ms"
	ResultInferenceMS    = "inference_time_ms"
	ResultModel          = "model"
	ResultRegion         = "detection_region"
	ResultDetectionState = "detection_status"
)

// Status — итог вызова инструмента.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusDisabled   Status = "disabled"
	StatusInitFailed Status = "initialization_failed"
	StatusError      Status = "error"
)

// State — состояние жизненного цикла модели.
type State string

const (
	StateUninitialised State = "uninitialised"
	StateInitialising  State = "initialising"
	StateReady         State = "ready"
	StateDisabled      State = "disabled"
	StateDestroyed     State = "destroyed"
)

// Schema — ключи конфигурации детектора.
func Schema() pipeline.Schema {
	return pipeline.Schema{
		KeyModelPath:       {Default: ""},
		KeyClassNames:      {Default: []string{}},
		KeySelectedClasses: {Default: []string{}},
		KeyConfidence:      {Default: 0.5, Validate: pipeline.InRange(0, 1)},
		KeyNMS:             {Default: 0.45, Validate: pipeline.InRange(0, 1)},
		KeyImgSize:         {Default: 640, Validate: pipeline.Positive()},
		KeyStride:          {Default: 32, Validate: pipeline.Positive()},
		KeyRegion:          {Default: []int{}, Validate: pipeline.IntsLen(4)},
		KeyOutputFormat:    {Default: OutputAuto, Validate: pipeline.OneOf(OutputAuto, OutputRaw, OutputNMS)},
		KeyDrawBoxes:       {Default: true},
		KeyDrawRegion:      {Default: false},
		KeyEnabled:         {Default: true},
	}
}

// Tool — инструмент детекции.
type Tool struct {
	*pipeline.BaseTool

	loader port.InferencerLoader
	log    *logger.Logger

	mu         sync.Mutex
	state      State
	initFailed bool
	initErr    error
	model      port.Inferencer
	inputName  string
	outputs    []port.TensorInfo
	lb         *Letterboxer
}

// New создаёт детектор. Модель загружается при первом вызове Process.
func New(loader port.InferencerLoader, log *logger.Logger) *Tool {
	if log == nil {
		log = logger.WithComponent("detection")
	}
	t := &Tool{
		BaseTool: pipeline.NewBaseTool(pipeline.KindDetection, "Detection", Schema()),
		loader:   loader,
		log:      log,
		state:    StateUninitialised,
	}
	t.Config().OnChange(t.onConfigChange)
	return t
}

// Factory возвращает фабрику для реестра.
func Factory(loader port.InferencerLoader, log *logger.Logger) pipeline.Factory {
	return func(cfg map[string]any) (pipeline.Tool, error) {
		t := New(loader, log)
		return t, t.Config().Load(cfg)
	}
}

// State возвращает текущее состояние.
func (t *Tool) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tool) onConfigChange(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initFailed = false
	t.initErr = nil
	switch key {
	case KeyModelPath, KeyImgSize, KeyStride:
		t.releaseLocked()
		t.state = StateUninitialised
		t.lb = nil
	case KeyEnabled:
		if t.state == StateDisabled || t.state == StateReady {
			if t.Config().Bool(KeyEnabled) {
				t.state = StateReady
			} else {
				t.state = StateDisabled
			}
		}
	}
}

// Initialize загружает модель. Повторные вызовы после неудачи возвращают
// сохранённую ошибку, пока не изменится конфигурация.
func (t *Tool) Initialize() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initLocked()
}

func (t *Tool) initLocked() error {
	if t.model != nil {
		return nil
	}
	if t.initFailed {
		return t.initErr
	}
	t.state = StateInitialising
	err := t.loadLocked()
	if err != nil {
		t.initFailed = true
		t.initErr = err
		t.state = StateUninitialised
		t.log.Error("detection model initialization failed", logger.Fields(
			logger.FieldTool, t.DisplayName(), logger.FieldError, err.Error()))
		return err
	}
	t.state = StateReady
	if !t.Config().Bool(KeyEnabled) {
		t.state = StateDisabled
	}
	return nil
}

func (t *Tool) loadLocked() error {
	cfg := t.Config()
	path := cfg.String(KeyModelPath)
	if path == "" {
		return apperrors.Configuration("model_path is not set")
	}
	if _, err := os.Stat(path); err != nil {
		return apperrors.Fatal("detection model", err).WithDetail("path", path)
	}
	if t.loader == nil {
		return apperrors.Configuration("no inference runtime available")
	}
	model, err := t.loader(path)
	if err != nil {
		return apperrors.Fatal("detection model", err).WithDetail("path", path)
	}
	t.model = model
	t.inputName = model.InputName()
	t.outputs = model.Outputs()
	t.lb = NewLetterboxer(cfg.Int(KeyImgSize), cfg.Int(KeyStride))
	t.log.Info("detection model loaded", logger.Fields(
		logger.FieldTool, t.DisplayName(), "model", filepath.Base(path),
		"input", t.inputName, "outputs", len(t.outputs)))
	return nil
}

func (t *Tool) releaseLocked() {
	if t.model != nil {
		if err := t.model.Close(); err != nil {
			t.log.Warn("model close failed", logger.ErrorFields("release", err))
		}
		t.model = nil
	}
}

// Close освобождает модель.
func (t *Tool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked()
	t.state = StateDestroyed
	return nil
}

// Process ищет объекты на кадре.
func (t *Tool) Process(ctx context.Context, img *entity.Frame, _ pipeline.Context) (*entity.Frame, pipeline.Result, error) {
	started := time.Now()
	cfg := t.Config()

	if !cfg.Bool(KeyEnabled) {
		t.mu.Lock()
		if t.state == StateReady {
			t.state = StateDisabled
		}
		t.mu.Unlock()
		return img, emptyResult(StatusDisabled), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.initLocked(); err != nil {
		res := emptyResult(StatusInitFailed)
		res[pipeline.KeyError] = err.Error()
		return img, res, nil
	}
	t.state = StateReady

	rgb, err := img.ToRGB()
	if err != nil {
		return nil, pipeline.Result{pipeline.KeyStatus: string(StatusError)}, apperrors.Transient("detection input: %v", err)
	}

	work := rgb
	region, hasRegion := regionOf(cfg.Ints(KeyRegion))
	if hasRegion {
		cropped, err := rgb.Crop(image.Rect(region.X1, region.Y1, region.X2, region.Y2))
		if err != nil {
			t.log.Warn("detection region ignored", logger.Fields(logger.FieldTool, t.DisplayName(), logger.FieldError, err.Error()))
			hasRegion = false
		} else {
			work = cropped
			region.X2, region.Y2 = region.X1+cropped.Width, region.Y1+cropped.Height
		}
	}

	canvas, lb := t.lb.Apply(work)
	input := ToTensor(canvas, lb.Size)

	inferStart := time.Now()
	outputs, err := t.model.Infer(ctx, input)
	inferTime := time.Since(inferStart)
	if err != nil {
		return nil, pipeline.Result{pipeline.KeyStatus: string(StatusError)}, fmt.Errorf("inference: %w", err)
	}

	names := cfg.Strings(KeyClassNames)
	conf := cfg.Float(KeyConfidence)
	cands, err := Decode(outputs, DecodeOptions{
		Format:       cfg.String(KeyOutputFormat),
		NumClasses:   len(names),
		MinScore:     conf,
		NMSThreshold: cfg.Float(KeyNMS),
	})
	if err != nil {
		return nil, pipeline.Result{pipeline.KeyStatus: string(StatusError)}, fmt.Errorf("decode: %w", err)
	}

	offX, offY := 0, 0
	if hasRegion {
		offX, offY = region.X1, region.Y1
	}
	dets := Postprocess(cands, PostprocessOptions{
		Letterbox:       lb,
		OffsetX:         offX,
		OffsetY:         offY,
		FrameWidth:      rgb.Width,
		FrameHeight:     rgb.Height,
		MinConfidence:   conf,
		ClassNames:      names,
		SelectedClasses: cfg.Strings(KeySelectedClasses),
	})

	out := rgb
	if cfg.Bool(KeyDrawBoxes) {
		out = drawDetections(rgb, dets, 2)
	}
	if hasRegion && cfg.Bool(KeyDrawRegion) {
		if out == rgb {
			out = rgb.Clone()
		}
		drawRegion(out, region)
	}

	res := summarize(dets)
	res[pipeline.KeyStatus] = string(StatusSuccess)
	res[ResultDetectionState] = string(StatusSuccess)
	res[ResultModel] = filepath.Base(cfg.String(KeyModelPath))
	res[ResultInferenceMS] = float64(inferTime.Microseconds()) / 1000
	res[ResultExecutionMS] = float64(time.Since(started).Microseconds()) / 1000
	// кадр на выходе уже в RGB; последующие инструменты читают формат из контекста
	res[pipeline.KeyPixelFormat] = out.Format.String()
	if hasRegion {
		res[ResultRegion] = []int{region.X1, region.Y1, region.X2, region.Y2}
	}

	t.log.Debug("detection finished", logger.Fields(
		logger.FieldTool, t.DisplayName(), "count", len(dets),
		logger.FieldDuration, res[ResultExecutionMS]))
	return out, res, nil
}

func regionOf(v []int) (entity.Region, bool) {
	if len(v) != 4 {
		return entity.Region{}, false
	}
	r := entity.Region{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	return r, r.Valid()
}

func emptyResult(status Status) pipeline.Result {
	res := summarize(nil)
	res[pipeline.KeyStatus] = string(status)
	res[ResultDetectionState] = string(status)
	return res
}

func summarize(dets []entity.Detection) pipeline.Result {
	if dets == nil {
		dets = []entity.Detection{}
	}
	counts := make(map[string]int)
	var sum float64
	for _, d := range dets {
		counts[d.ClassName]++
		sum += d.Confidence
	}
	avg := 0.0
	if len(dets) > 0 {
		avg = sum / float64(len(dets))
	}
	return pipeline.Result{
		ResultDetections:    dets,
		ResultCount:         len(dets),
		ResultClassCounts:   counts,
		ResultAvgConfidence: avg,
	}
}
