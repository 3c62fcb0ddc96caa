package pipeline

import (
	"context"
	"sync"

	"vision-inspector/internal/domain/entity"
)

// Имена встроенных видов инструментов.
const (
	KindDetection      = "DetectionTool"
	KindSaveImage      = "SaveImageTool"
	KindClassification = "ClassificationTool"
	KindGeneric        = "GenericTool"
)

// Ключи контекста выполнения и агрегированного результата.
const (
	KeyForceSave    = "force_save"
	KeyPixelFormat  = "pixel_format"
	KeyError        = "error"
	KeyStatus       = "status"
	KeyCached       = "cached"
	KeySkippedFrame = "skipped_frame"
	KeyToolResults  = "tool_results"
	KeyFailedTool   = "failed_tool"
	KeyFrameStatus  = "frame_status"
)

// NoID — id ещё не назначен.
const NoID = -1

// Context — контекст выполнения, накапливаемый между инструментами.
type Context map[string]any

// Result — карта результата одного инструмента.
type Result map[string]any

// Clone возвращает поверхностную копию контекста.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge копирует ключи результата в контекст.
func (c Context) Merge(r Result) {
	for k, v := range r {
		c[k] = v
	}
}

// PixelFormat извлекает формат кадра из контекста; по умолчанию RGB.
func (c Context) PixelFormat() entity.PixelFormat {
	switch v := c[KeyPixelFormat].(type) {
	case entity.PixelFormat:
		return v
	case string:
		if pf, err := entity.ParsePixelFormat(v); err == nil {
			return pf
		}
	}
	return entity.PixelRGB
}

// Clone возвращает поверхностную копию результата.
func (r Result) Clone() Result {
	out := make(Result, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Tool — единый контракт инструмента конвейера.
type Tool interface {
	ID() int
	SetID(id int)
	Kind() string
	DisplayName() string
	SetDisplayName(name string)
	Config() *ConfigMap
	// Process обрабатывает кадр. Возвращённый nil-кадр означает «без изменений».
	Process(ctx context.Context, img *entity.Frame, pctx Context) (*entity.Frame, Result, error)
}

// Closer реализуют инструменты, владеющие ресурсами (модель ONNX и т.п.).
type Closer interface {
	Close() error
}

// BaseTool реализует идентичность инструмента; встраивается в конкретные виды.
type BaseTool struct {
	mu   sync.RWMutex
	id   int
	name string
	kind string
	cfg  *ConfigMap
}

// NewBaseTool создаёт основу инструмента без id.
func NewBaseTool(kind, displayName string, schema Schema) *BaseTool {
	if displayName == "" {
		displayName = kind
	}
	return &BaseTool{id: NoID, name: displayName, kind: kind, cfg: NewConfigMap(schema)}
}

func (b *BaseTool) ID() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

func (b *BaseTool) SetID(id int) {
	b.mu.Lock()
	b.id = id
	b.mu.Unlock()
}

func (b *BaseTool) Kind() string { return b.kind }

func (b *BaseTool) DisplayName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

func (b *BaseTool) SetDisplayName(name string) {
	b.mu.Lock()
	b.name = name
	b.mu.Unlock()
}

func (b *BaseTool) Config() *ConfigMap { return b.cfg }
