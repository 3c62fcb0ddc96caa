// Package classification реализует инструмент классификации кадра целиком.
package classification

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
	"vision-inspector/internal/pipeline"
	"vision-inspector/internal/tools/imaging"
)

// Ключи конфигурации.
const (
	KeyModelPath  = "model_path"
	KeyClassNames = "class_names"
	KeyImgSize    = "imgsz"
	KeyTopK       = "top_k"
	KeyConfidence = "confidence_threshold"
	KeyNormalize  = "normalize"
	KeyEnabled    = "enabled"
)

// Способы нормализации входа.
const (
	NormalizeUnit     = "unit"
	NormalizeImageNet = "imagenet"
)

// Ключи результата.
const (
	ResultClassID    = "class_id"
	ResultClassName  = "class_name"
	ResultConfidence = "confidence"
	ResultTopK       = "top_k"
)

// Prediction — один класс из top-k.
type Prediction struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// Schema — ключи конфигурации классификатора.
func Schema() pipeline.Schema {
	return pipeline.Schema{
		KeyModelPath:  {Default: ""},
		KeyClassNames: {Default: []string{}},
		KeyImgSize:    {Default: 224, Validate: pipeline.Positive()},
		KeyTopK:       {Default: 1, Validate: pipeline.Positive()},
		KeyConfidence: {Default: 0.0, Validate: pipeline.InRange(0, 1)},
		KeyNormalize:  {Default: NormalizeImageNet, Validate: pipeline.OneOf(NormalizeUnit, NormalizeImageNet)},
		KeyEnabled:    {Default: true},
	}
}

// Tool — классификатор.
type Tool struct {
	*pipeline.BaseTool

	loader port.InferencerLoader
	log    *logger.Logger

	mu         sync.Mutex
	model      port.Inferencer
	initFailed bool
	initErr    error
}

// New создаёт классификатор.
func New(loader port.InferencerLoader, log *logger.Logger) *Tool {
	if log == nil {
		log = logger.WithComponent("classification")
	}
	t := &Tool{
		BaseTool: pipeline.NewBaseTool(pipeline.KindClassification, "Classification", Schema()),
		loader:   loader,
		log:      log,
	}
	t.Config().OnChange(func(key string) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.initFailed, t.initErr = false, nil
		if key == KeyModelPath {
			t.releaseLocked()
		}
	})
	return t
}

// Factory возвращает фабрику для реестра.
func Factory(loader port.InferencerLoader, log *logger.Logger) pipeline.Factory {
	return func(cfg map[string]any) (pipeline.Tool, error) {
		t := New(loader, log)
		return t, t.Config().Load(cfg)
	}
}

func (t *Tool) initLocked() error {
	if t.model != nil {
		return nil
	}
	if t.initFailed {
		return t.initErr
	}
	path := t.Config().String(KeyModelPath)
	var err error
	switch {
	case path == "":
		err = apperrors.Configuration("model_path is not set")
	case t.loader == nil:
		err = apperrors.Configuration("no inference runtime available")
	default:
		if _, statErr := os.Stat(path); statErr != nil {
			err = apperrors.Fatal("classification model", statErr).WithDetail("path", path)
		} else if t.model, err = t.loader(path); err != nil {
			err = apperrors.Fatal("classification model", err).WithDetail("path", path)
		}
	}
	if err != nil {
		t.model = nil
		t.initFailed, t.initErr = true, err
		t.log.Error("classification model initialization failed", logger.Fields(
			logger.FieldTool, t.DisplayName(), logger.FieldError, err.Error()))
	}
	return err
}

func (t *Tool) releaseLocked() {
	if t.model != nil {
		_ = t.model.Close()
		t.model = nil
	}
}

// Close освобождает модель.
func (t *Tool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked()
	return nil
}

// Process классифицирует кадр целиком.
func (t *Tool) Process(ctx context.Context, img *entity.Frame, _ pipeline.Context) (*entity.Frame, pipeline.Result, error) {
	cfg := t.Config()
	if !cfg.Bool(KeyEnabled) {
		return img, pipeline.Result{pipeline.KeyStatus: "disabled"}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.initLocked(); err != nil {
		return img, pipeline.Result{pipeline.KeyStatus: "initialization_failed", pipeline.KeyError: err.Error()}, nil
	}

	started := time.Now()
	rgb, err := img.ToRGB()
	if err != nil {
		return nil, nil, apperrors.Transient("classification input: %v", err)
	}
	size := cfg.Int(KeyImgSize)
	resized := imaging.Resize(rgb, size, size)
	mean, std := imaging.UnitMean, imaging.UnitStd
	if cfg.String(KeyNormalize) == NormalizeImageNet {
		mean, std = imaging.ImageNetMean, imaging.ImageNetStd
	}

	outputs, err := t.model.Infer(ctx, imaging.ToTensor(resized.Data, size, size, mean, std))
	if err != nil {
		return nil, nil, fmt.Errorf("inference: %w", err)
	}
	if len(outputs) == 0 || len(outputs[0].Data) == 0 {
		return nil, nil, fmt.Errorf("classifier returned no scores")
	}

	probs := Probabilities(outputs[0].Data)
	top := TopK(probs, cfg.Int(KeyTopK), cfg.Strings(KeyClassNames))

	res := pipeline.Result{
		pipeline.KeyStatus:  "success",
		ResultTopK:          top,
		"model":             t.ModelName(),
		"execution_time_ms": float64(time.Since(started).Microseconds()) / 1000,
	}
	if best := top[0]; best.Confidence >= cfg.Float(KeyConfidence) {
		res[ResultClassID] = best.ClassID
		res[ResultClassName] = best.ClassName
		res[ResultConfidence] = best.Confidence
	} else {
		res[ResultClassID] = -1
		res[ResultClassName] = ""
		res[ResultConfidence] = best.Confidence
	}
	res[pipeline.KeyPixelFormat] = rgb.Format.String()
	return rgb, res, nil
}

// Probabilities возвращает вероятности: выход, уже похожий на распределение,
// берётся как есть, иначе применяется softmax.
func Probabilities(scores []float32) []float64 {
	out := make([]float64, len(scores))
	sum := 0.0
	isDist := true
	for i, s := range scores {
		v := float64(s)
		out[i] = v
		sum += v
		if v < 0 || v > 1 {
			isDist = false
		}
	}
	if isDist && math.Abs(sum-1) < 1e-3 {
		return out
	}

	maxV := out[0]
	for _, v := range out[1:] {
		maxV = math.Max(maxV, v)
	}
	sum = 0
	for i, v := range out {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// TopK возвращает k наиболее вероятных классов.
func TopK(probs []float64, k int, names []string) []Prediction {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]Prediction, 0, k)
	for _, i := range idx[:k] {
		name := fmt.Sprintf("class_%d", i)
		if i < len(names) {
			name = names[i]
		}
		out = append(out, Prediction{ClassID: i, ClassName: name, Confidence: probs[i]})
	}
	return out
}

// ModelName возвращает имя файла модели.
func (t *Tool) ModelName() string {
	return filepath.Base(t.Config().String(KeyModelPath))
}
