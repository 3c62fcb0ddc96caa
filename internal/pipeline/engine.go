package pipeline

import (
	"context"
	"sync"
	"time"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/logger"
)

// DefaultDetectionInterval — минимальный интервал между запусками заданий с детектором.
const DefaultDetectionInterval = time.Second / 12

// Stats — счётчики движка.
type Stats struct {
	Runs       int64 `json:"runs"`
	Executions int64 `json:"executions"`
	Skipped    int64 `json:"skipped"`
	Failures   int64 `json:"failures"`
}

// Engine держит текущее задание и применяет политику пропуска кадров.
type Engine struct {
	mu       sync.Mutex
	registry *Registry
	job      *Job
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger

	lastDetection time.Time
	cachedImage   *entity.Frame
	cachedResult  Result
	stats         Stats
}

// EngineOption настраивает Engine.
type EngineOption func(*Engine)

// WithDetectionInterval задаёт интервал пропуска кадров.
func WithDetectionInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.interval = d
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithEngineLogger задаёт логгер.
func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine создаёт движок с пустым заданием.
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		interval: DefaultDetectionInterval,
		now:      time.Now,
		log:      logger.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.job = NewJob("default")
	e.job.SetLogger(e.log)
	return e
}

// Registry возвращает реестр видов инструментов.
func (e *Engine) Registry() *Registry { return e.registry }

// Job возвращает текущее задание.
func (e *Engine) Job() *Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job
}

// SetJob заменяет текущее задание и сбрасывает кэш. Старое задание закрывается.
func (e *Engine) SetJob(job *Job) {
	e.mu.Lock()
	old := e.job
	e.job = job
	e.lastDetection = time.Time{}
	e.cachedImage = nil
	e.cachedResult = nil
	e.mu.Unlock()

	if old != nil && old != job {
		if err := old.Close(); err != nil {
			e.log.Warn("closing previous job failed", logger.ErrorFields("set_job", err))
		}
	}
	e.log.Info("job activated", logger.Fields(logger.FieldJob, job.Name(), "tools", job.Len()))
}

// Interval возвращает интервал пропуска кадров.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// SetInterval меняет интервал пропуска кадров.
func (e *Engine) SetInterval(d time.Duration) {
	e.mu.Lock()
	e.interval = d
	e.mu.Unlock()
}

// Stats возвращает копию счётчиков.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Run выполняет текущее задание. Для заданий с детектором вызов чаще interval
// возвращает закэшированный кадр и результат с флагами cached и skipped_frame.
func (e *Engine) Run(ctx context.Context, img *entity.Frame, initial Context) (*entity.Frame, Result, error) {
	// блокировка задания не берётся под e.mu
	job := e.Job()
	gated := job.HasKind(KindDetection)

	e.mu.Lock()
	e.stats.Runs++
	if gated {
		now := e.now()
		if !e.lastDetection.IsZero() && now.Sub(e.lastDetection) < e.interval {
			e.stats.Skipped++
			cachedImg, res := e.cachedImage, e.cachedResult.Clone()
			e.mu.Unlock()
			if cachedImg == nil {
				cachedImg = img
			}
			res[KeyCached] = true
			res[KeySkippedFrame] = true
			return cachedImg, res, nil
		}
		e.lastDetection = now
	}
	e.stats.Executions++
	e.mu.Unlock()

	out, res, err := job.Run(ctx, img, initial)

	e.mu.Lock()
	if err != nil {
		e.stats.Failures++
	}
	e.cachedImage = out
	e.cachedResult = res
	e.mu.Unlock()
	return out, res, err
}

// LoadJobFile загружает документ, проверяет граф и делает задание текущим.
func (e *Engine) LoadJobFile(path string) (*Job, error) {
	doc, err := LoadDocumentFile(path)
	if err != nil {
		return nil, err
	}
	job, err := FromDocument(doc, e.registry)
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		_ = job.Close()
		return nil, err
	}
	job.SetLogger(e.log)
	e.SetJob(job)
	return job, nil
}

// SaveJobFile сохраняет текущее задание.
func (e *Engine) SaveJobFile(path string) error {
	job := e.Job()
	if job == nil {
		return apperrors.NotFound("job", "current")
	}
	return SaveDocumentFile(path, job.ToDocument())
}
