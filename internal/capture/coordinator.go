// Package capture управляет сессией камеры: живой поток, программный
// и внешний (аппаратный) триггер.
//
// Все вызовы камеры идут под одним мьютексом. Кадры отдаются обработчику
// синхронно в горутине захвата в порядке их получения с датчика.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
)

const (
	DefaultLiveFPS        = 15
	DefaultTriggerTimeout = 5 * time.Second
	defaultJoinTimeout    = 2 * time.Second
	requestBuffer         = 16
)

// Source — откуда пришёл запрос на кадр.
type Source string

const (
	SourceLive     Source = "live"
	SourceSoftware Source = "software"
	SourceExternal Source = "external"
)

// FrameMeta сопровождает каждый кадр.
type FrameMeta struct {
	Source      Source
	TriggerID   string
	SensorID    int
	ReceivedAt  time.Time
	CapturedAt  time.Time
	PixelFormat entity.PixelFormat
	Mode        entity.CaptureMode
}

// FrameHandler получает кадры. Вызывается в горутине захвата.
type FrameHandler func(frame *entity.Frame, meta FrameMeta)

// EventKind — тип события координатора.
type EventKind string

const (
	EventTimeout EventKind = "timeout"
	EventError   EventKind = "error"
)

// Event сообщает о неудачном триггере.
type Event struct {
	Kind      EventKind
	Source    Source
	TriggerID string
	Err       error
}

// EventHandler получает события о таймаутах и ошибках захвата.
type EventHandler func(Event)

type request struct {
	source     Source
	id         string
	sensorID   int
	receivedAt time.Time
	// due — момент, на который запланирован захват; нулевой для немедленных запросов
	due time.Time
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithLiveFPS задаёт частоту живого потока.
func WithLiveFPS(fps float64) Option {
	return func(c *Coordinator) {
		if fps > 0 {
			c.liveInterval = time.Duration(float64(time.Second) / fps)
		}
	}
}

// WithTriggerTimeout задаёт предельное ожидание кадра по триггеру.
func WithTriggerTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.triggerTimeout = d
		}
	}
}

// WithClock подменяет источник времени для cooldown.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger задаёт логгер.
func WithLogger(log *logger.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithConfig задаёт начальные настройки камеры.
func WithConfig(cfg entity.CaptureConfig) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// Coordinator владеет камерой и режимами захвата.
type Coordinator struct {
	cam            port.Camera
	log            *logger.Logger
	now            func() time.Time
	liveInterval   time.Duration
	triggerTimeout time.Duration

	camMu  sync.Mutex
	opened bool

	mu          sync.Mutex
	cfg         entity.CaptureConfig
	mode        entity.CaptureMode
	lastTrigger time.Time
	onFrame     FrameHandler
	onEvent     EventHandler
	running     bool
	baseCtx     context.Context
	modeCtx     context.Context
	modeCancel  context.CancelFunc

	requests    chan request
	modeChanged chan struct{}
	workers     sync.WaitGroup
	metrics     metricsRecorder
}

// NewCoordinator создаёт координатор в режиме off.
func NewCoordinator(cam port.Camera, opts ...Option) *Coordinator {
	c := &Coordinator{
		cam:            cam,
		log:            logger.Nop(),
		now:            time.Now,
		liveInterval:   time.Second / DefaultLiveFPS,
		triggerTimeout: DefaultTriggerTimeout,
		cfg:            entity.DefaultCaptureConfig(),
		mode:           entity.ModeOff,
		baseCtx:        context.Background(),
		requests:       make(chan request, requestBuffer),
		modeChanged:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.modeCtx, c.modeCancel = context.WithCancel(c.baseCtx)
	return c
}

// OnFrame регистрирует получателя кадров.
func (c *Coordinator) OnFrame(h FrameHandler) {
	c.mu.Lock()
	c.onFrame = h
	c.mu.Unlock()
}

// OnEvent регистрирует получателя событий.
func (c *Coordinator) OnEvent(h EventHandler) {
	c.mu.Lock()
	c.onEvent = h
	c.mu.Unlock()
}

func (c *Coordinator) Mode() entity.CaptureMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Coordinator) Config() entity.CaptureConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Metrics возвращает снимок метрик триггеров.
func (c *Coordinator) Metrics() TriggerMetrics {
	return c.metrics.snapshot()
}

// Run открывает камеру и обслуживает запросы до отмены ctx.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("capture coordinator is already running")
	}
	c.running = true
	c.baseCtx = ctx
	c.resetModeCtxLocked()
	cfg, mode := c.cfg, c.mode
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.modeCancel()
		c.baseCtx = context.Background()
		c.modeCtx, c.modeCancel = context.WithCancel(c.baseCtx)
		c.mu.Unlock()
	}()

	if err := c.open(ctx, cfg, mode); err != nil {
		c.log.Error("camera open failed", logger.ErrorFields("open", err))
		return err
	}
	defer c.close()

	c.log.Info("capture started", logger.Fields(logger.FieldMode, string(mode)))

	var ticker *time.Ticker
	var tick <-chan time.Time
	resetTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if c.Mode() == entity.ModeLive {
			ticker = time.NewTicker(c.liveInterval)
			tick = ticker.C
		}
	}
	resetTicker()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.joinWorkers()
			c.log.Info("capture stopped")
			return nil
		case <-c.modeChanged:
			resetTicker()
		case req := <-c.requests:
			c.capture(req)
		case <-tick:
			c.capture(request{source: SourceLive, receivedAt: c.now()})
		}
	}
}

func (c *Coordinator) open(ctx context.Context, cfg entity.CaptureConfig, mode entity.CaptureMode) error {
	c.camMu.Lock()
	defer c.camMu.Unlock()
	if err := c.cam.Open(ctx); err != nil {
		return apperrors.Fatal("camera", err)
	}
	if err := c.cam.Configure(cfg); err != nil {
		_ = c.cam.Close()
		return apperrors.Fatal("camera", err)
	}
	if err := c.cam.SetExternalTrigger(mode == entity.ModeExternal); err != nil {
		_ = c.cam.Close()
		return apperrors.Fatal("camera", err)
	}
	c.opened = true
	return nil
}

func (c *Coordinator) close() {
	c.camMu.Lock()
	defer c.camMu.Unlock()
	c.opened = false
	if err := c.cam.Close(); err != nil {
		c.log.Warn("camera close failed", logger.ErrorFields("close", err))
	}
}

// joinWorkers ждёт воркеры триггеров не дольше defaultJoinTimeout.
func (c *Coordinator) joinWorkers() {
	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()
	timer := time.NewTimer(defaultJoinTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.log.Warn("trigger workers did not stop in time")
	}
}

// SetMode переключает режим. Повторный вызов с тем же режимом ничего не делает.
// Ожидающий захват предыдущего режима отменяется.
func (c *Coordinator) SetMode(mode entity.CaptureMode) error {
	if _, err := entity.ParseCaptureMode(string(mode)); err != nil {
		return apperrors.InvalidInput("mode", err.Error())
	}

	c.mu.Lock()
	if c.mode == mode {
		c.mu.Unlock()
		return nil
	}
	prev := c.mode
	c.mode = mode
	c.cfg.ExternalTrigger = mode == entity.ModeExternal
	c.resetModeCtxLocked()
	c.mu.Unlock()

	if err := c.applyTrigger(mode == entity.ModeExternal); err != nil {
		c.mu.Lock()
		c.mode = prev
		c.cfg.ExternalTrigger = prev == entity.ModeExternal
		c.mu.Unlock()
		c.log.Error("mode change failed", logger.Fields(logger.FieldMode, string(mode), logger.FieldError, err.Error()))
		return apperrors.Configuration("set mode %s", mode).WithCause(err)
	}

	select {
	case c.modeChanged <- struct{}{}:
	default:
	}
	c.log.Info("capture mode changed", logger.Fields("from", string(prev), logger.FieldMode, string(mode)))
	return nil
}

// resetModeCtxLocked отменяет ожидания текущего режима. Вызывается под c.mu.
func (c *Coordinator) resetModeCtxLocked() {
	if c.modeCancel != nil {
		c.modeCancel()
	}
	c.modeCtx, c.modeCancel = context.WithCancel(c.baseCtx)
}

func (c *Coordinator) currentModeCtx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modeCtx
}

func (c *Coordinator) applyTrigger(external bool) error {
	c.camMu.Lock()
	defer c.camMu.Unlock()
	if !c.opened {
		return nil
	}
	return c.cam.SetExternalTrigger(external)
}

// SetExposure задаёт ручную экспозицию в микросекундах.
func (c *Coordinator) SetExposure(us int) error {
	if us <= 0 {
		return apperrors.InvalidInput("exposure_us", "must be positive")
	}
	return c.reconfigure(func(cfg *entity.CaptureConfig) { cfg.ExposureUS = us })
}

func (c *Coordinator) SetAutoExposure(enabled bool) error {
	return c.reconfigure(func(cfg *entity.CaptureConfig) { cfg.AutoExposure = enabled })
}

func (c *Coordinator) SetPixelFormat(format entity.PixelFormat) error {
	return c.reconfigure(func(cfg *entity.CaptureConfig) { cfg.PixelFormat = format })
}

// SetCooldown задаёт минимальный интервал между триггерами.
func (c *Coordinator) SetCooldown(d time.Duration) error {
	if d < 0 {
		return apperrors.InvalidInput("cooldown", "must not be negative")
	}
	c.mu.Lock()
	c.cfg.Cooldown = d
	c.mu.Unlock()
	return nil
}

// SetPendingDelay задаёт задержку съёмки после внешнего триггера.
func (c *Coordinator) SetPendingDelay(d time.Duration) error {
	if d < 0 {
		return apperrors.InvalidInput("pending_delay", "must not be negative")
	}
	c.mu.Lock()
	c.cfg.PendingDelay = d
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) reconfigure(update func(*entity.CaptureConfig)) error {
	c.mu.Lock()
	prev := c.cfg
	update(&c.cfg)
	cfg := c.cfg
	c.mu.Unlock()

	c.camMu.Lock()
	defer c.camMu.Unlock()
	if !c.opened {
		return nil
	}
	if err := c.cam.Configure(cfg); err != nil {
		c.mu.Lock()
		c.cfg = prev
		c.mu.Unlock()
		return apperrors.Configuration("camera configure").WithCause(err)
	}
	return nil
}

// ActivateCaptureRequest ставит в очередь разовый захват.
// Возвращает false, если запрос отброшен из-за cooldown или режима off.
func (c *Coordinator) ActivateCaptureRequest() bool {
	now := c.now()
	c.metrics.received()

	c.mu.Lock()
	if c.mode == entity.ModeOff {
		c.mu.Unlock()
		c.log.Warn("capture request ignored: capture is off")
		return false
	}
	if c.inCooldownLocked(now) {
		c.mu.Unlock()
		c.metrics.dropped()
		c.log.Warn("capture request dropped by cooldown")
		return false
	}
	c.lastTrigger = now
	c.mu.Unlock()

	return c.enqueue(request{source: SourceSoftware, id: uuid.NewString(), sensorID: -1, receivedAt: now})
}

// OnSensorTrigger — быстрый путь от канала событий в режиме внешнего триггера.
// Захват планируется на t_ref + pending_delay в отдельном воркере, чтобы
// читатель сокета не ждал камеру. sensorTS — метка датчика в мс Unix или 0.
func (c *Coordinator) OnSensorTrigger(sensorID int, sensorTS int64, receivedAt time.Time) bool {
	c.mu.Lock()
	if c.mode != entity.ModeExternal {
		c.mu.Unlock()
		c.log.Debug("sensor trigger ignored", logger.Fields(logger.FieldSensorID, sensorID))
		return false
	}
	c.metrics.received()
	now := c.now()
	if c.inCooldownLocked(now) {
		c.mu.Unlock()
		c.metrics.dropped()
		c.log.Warn("sensor trigger dropped by cooldown", logger.Fields(logger.FieldSensorID, sensorID))
		return false
	}
	c.lastTrigger = now
	delay := c.cfg.PendingDelay
	mctx := c.modeCtx
	c.mu.Unlock()

	due := referenceTime(sensorTS, receivedAt).Add(delay)
	req := request{source: SourceExternal, id: uuid.NewString(), sensorID: sensorID, receivedAt: receivedAt, due: due}

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		if wait := time.Until(due); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-mctx.Done():
				c.log.Debug("scheduled capture cancelled", logger.Fields("trigger_id", req.id))
				return
			case <-timer.C:
			}
		}
		c.enqueue(req)
	}()
	return true
}

func (c *Coordinator) inCooldownLocked(now time.Time) bool {
	return !c.lastTrigger.IsZero() && now.Sub(c.lastTrigger) < c.cfg.Cooldown
}

func (c *Coordinator) enqueue(req request) bool {
	select {
	case c.requests <- req:
		return true
	default:
		c.metrics.failed()
		c.log.Warn("capture request queue is full", logger.Fields("source", string(req.source)))
		return false
	}
}

// latencyStart — точка отсчёта задержки триггера: запланированный момент
// захвата, поэтому pending_delay в метрику не входит.
func (r request) latencyStart() time.Time {
	if r.due.After(r.receivedAt) {
		return r.due
	}
	return r.receivedAt
}

// referenceTime берёт метку датчика, если она похожа на текущее время в мс Unix.
func referenceTime(sensorTS int64, receivedAt time.Time) time.Time {
	if sensorTS <= 0 {
		return receivedAt
	}
	ts := time.UnixMilli(sensorTS)
	if d := receivedAt.Sub(ts); d < -time.Minute || d > time.Minute {
		return receivedAt
	}
	return ts
}

func (c *Coordinator) capture(req request) {
	mctx := c.currentModeCtx()
	ctx, cancel := context.WithTimeout(mctx, c.triggerTimeout)
	defer cancel()

	c.camMu.Lock()
	frame, err := c.cam.Capture(ctx)
	c.camMu.Unlock()

	c.mu.Lock()
	onFrame, onEvent := c.onFrame, c.onEvent
	format, mode := c.cfg.PixelFormat, c.mode
	c.mu.Unlock()

	trigger := req.source != SourceLive
	if err != nil {
		switch {
		case mctx.Err() != nil:
			c.log.Debug("capture cancelled", logger.Fields("source", string(req.source)))
			return
		case errors.Is(err, context.DeadlineExceeded):
			if !trigger {
				c.log.Debug("live frame timeout")
				return
			}
			c.metrics.timeout()
			c.log.Warn("trigger capture timed out", logger.Fields("trigger_id", req.id, "timeout_ms", c.triggerTimeout.Milliseconds()))
			emit(onEvent, Event{Kind: EventTimeout, Source: req.source, TriggerID: req.id, Err: apperrors.Timeout("trigger capture")})
		default:
			if !trigger {
				c.log.Debug("live frame failed", logger.Fields(logger.FieldError, err.Error()))
				return
			}
			c.metrics.failed()
			c.log.Warn("trigger capture failed", logger.Fields("trigger_id", req.id, logger.FieldError, err.Error()))
			emit(onEvent, Event{Kind: EventError, Source: req.source, TriggerID: req.id, Err: apperrors.Transient("trigger capture").WithCause(err)})
		}
		return
	}

	capturedAt := c.now()
	if trigger {
		c.metrics.succeeded(capturedAt.Sub(req.latencyStart()))
	}
	if onFrame == nil {
		return
	}
	onFrame(frame, FrameMeta{
		Source:      req.source,
		TriggerID:   req.id,
		SensorID:    req.sensorID,
		ReceivedAt:  req.receivedAt,
		CapturedAt:  capturedAt,
		PixelFormat: format,
		Mode:        mode,
	})
}

func emit(h EventHandler, ev Event) {
	if h != nil {
		h(ev)
	}
}
