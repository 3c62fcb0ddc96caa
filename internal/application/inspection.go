package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vision-inspector/internal/capture"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
	"vision-inspector/internal/pipeline"
	"vision-inspector/internal/tools/classification"
	"vision-inspector/internal/tools/detection"
	"vision-inspector/internal/tools/imagesave"
)

const (
	DefaultFrameBuffer = 8
	doneBuffer         = 64
	publishTimeout     = 5 * time.Second
	actuatedWindow     = 1024
)

// InspectionConfig — правила оценки кадра и команды приводам.
type InspectionConfig struct {
	// NGWhenDetected: брак, если найден хотя бы один объект; иначе брак, если не найдено ничего
	NGWhenDetected bool
	OKCommand      string
	NGCommand      string
	FrameBuffer    int
}

// CaptureControl — часть координатора, нужная сервису.
type CaptureControl interface {
	ActivateCaptureRequest() bool
	Mode() entity.CaptureMode
	Metrics() capture.TriggerMetrics
}

// InspectionStats — счётчики сервиса проверки.
type InspectionStats struct {
	Frames        uint64 `json:"frames"`
	Dropped       uint64 `json:"dropped"`
	Recorded      uint64 `json:"recorded"`
	OK            uint64 `json:"ok"`
	NG            uint64 `json:"ng"`
	Failures      uint64 `json:"failures"`
	Actuations    uint64 `json:"actuations"`
	Published     uint64 `json:"published"`
	PublishErrors uint64 `json:"publish_errors"`
}

// Status — сводка состояния для оператора.
type Status struct {
	Mode       entity.CaptureMode
	Job        string
	JobStatus  pipeline.JobStatus
	QueueLen   int
	LastDone   *entity.ResultItem
	Engine     pipeline.Stats
	Inspection InspectionStats
	Trigger    capture.TriggerMetrics
}

type frameTask struct {
	frame *entity.Frame
	meta  capture.FrameMeta
}

// InspectionOption настраивает InspectionService.
type InspectionOption func(*InspectionService)

func WithCommandSender(sender port.CommandSender) InspectionOption {
	return func(s *InspectionService) { s.sender = sender }
}

func WithSinks(sinks ...port.ResultSink) InspectionOption {
	return func(s *InspectionService) { s.sinks = append(s.sinks, sinks...) }
}

func WithCaptureControl(c CaptureControl) InspectionOption {
	return func(s *InspectionService) { s.capture = c }
}

func WithInspectionLogger(log *logger.Logger) InspectionOption {
	return func(s *InspectionService) {
		if log != nil {
			s.log = log
		}
	}
}

// InspectionService прогоняет кадры через текущее задание, записывает результат
// в очередь и управляет приводами по завершённым строкам.
type InspectionService struct {
	engine  *pipeline.Engine
	queue   port.ResultQueue
	sender  port.CommandSender
	sinks   []port.ResultSink
	capture CaptureControl
	cfg     InspectionConfig
	log     *logger.Logger

	frames chan frameTask
	done   chan entity.ResultItem

	mu         sync.Mutex
	actuated   map[int64]struct{}
	stats      InspectionStats
	lastImage  *entity.Frame
	lastResult pipeline.Result
}

// NewInspectionService создаёт сервис и подписывается на изменения очереди.
func NewInspectionService(engine *pipeline.Engine, queue port.ResultQueue, cfg InspectionConfig, opts ...InspectionOption) *InspectionService {
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = DefaultFrameBuffer
	}
	s := &InspectionService{
		engine:   engine,
		queue:    queue,
		cfg:      cfg,
		log:      logger.Nop(),
		frames:   make(chan frameTask, cfg.FrameBuffer),
		done:     make(chan entity.ResultItem, doneBuffer),
		actuated: make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	queue.OnUpdate(s.onQueueUpdate)
	return s
}

// HandleFrame принимает кадр от координатора и не блокирует поток захвата.
func (s *InspectionService) HandleFrame(frame *entity.Frame, meta capture.FrameMeta) {
	select {
	case s.frames <- frameTask{frame: frame, meta: meta}:
		s.count(func(st *InspectionStats) { st.Frames++ })
	default:
		s.count(func(st *InspectionStats) { st.Dropped++ })
		s.log.Warn("inspection busy, frame dropped", logger.Fields("source", string(meta.Source), "seq", frame.Seq))
	}
}

// HandleCaptureEvent логирует неудачные триггеры.
func (s *InspectionService) HandleCaptureEvent(ev capture.Event) {
	s.log.Warn("capture trigger failed", logger.Fields(
		"kind", string(ev.Kind),
		"source", string(ev.Source),
		"trigger_id", ev.TriggerID,
	))
}

// Run обрабатывает кадры и публикует завершённые строки до отмены ctx.
func (s *InspectionService) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case task := <-s.frames:
				_, _ = s.Process(ctx, task.frame, task.meta)
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case item := <-s.done:
				s.publish(ctx, item)
			}
		}
	})
	return g.Wait()
}

// Process выполняет задание на кадре и записывает итог в очередь по источнику:
// внешний триггер дополняет ожидающую строку, программный создаёт новую,
// живой поток ничего не записывает.
func (s *InspectionService) Process(ctx context.Context, frame *entity.Frame, meta capture.FrameMeta) (entity.FrameStatus, error) {
	base := pipeline.Context{
		pipeline.KeyForceSave:   meta.Source != capture.SourceLive,
		pipeline.KeyPixelFormat: meta.PixelFormat.String(),
	}

	img, res, err := s.engine.Run(ctx, frame, base)
	status := Judge(res, s.cfg.NGWhenDetected)

	s.mu.Lock()
	s.lastImage, s.lastResult = img, res
	if err != nil {
		s.stats.Failures++
	}
	s.mu.Unlock()

	summary := Summarize(res)
	var frameID int64
	switch meta.Source {
	case capture.SourceExternal:
		id, ok := s.queue.AttachJobResultToWaitingFrame(status, summary)
		if !ok {
			return status, err
		}
		frameID = id
	case capture.SourceSoftware:
		frameID = s.queue.CreateFrameWithResult(status, summary)
	default:
		return status, err
	}

	s.count(func(st *InspectionStats) {
		st.Recorded++
		if status == entity.FrameNG {
			st.NG++
		} else {
			st.OK++
		}
	})
	s.log.Info("frame judged", logger.Fields(
		logger.FieldFrameID, frameID,
		"status", string(status),
		"source", string(meta.Source),
		detection.ResultCount, summary[detection.ResultCount],
	))
	return status, err
}

// onQueueUpdate срабатывает на каждое изменение строки. Строка DONE с итоговым
// статусом приводит к одной команде приводу и одной публикации.
func (s *InspectionService) onQueueUpdate(item entity.ResultItem) {
	if item.CompletionStatus != entity.CompletionDone || item.FrameStatus == entity.FramePending {
		return
	}

	s.mu.Lock()
	if _, seen := s.actuated[item.FrameID]; seen {
		s.mu.Unlock()
		return
	}
	s.actuated[item.FrameID] = struct{}{}
	if len(s.actuated) > actuatedWindow {
		for id := range s.actuated {
			if id <= item.FrameID-actuatedWindow {
				delete(s.actuated, id)
			}
		}
	}
	s.mu.Unlock()

	s.actuate(item)

	select {
	case s.done <- item:
	default:
		s.log.Warn("publish queue full, result not published", logger.Fields(logger.FieldFrameID, item.FrameID))
	}
}

func (s *InspectionService) actuate(item entity.ResultItem) {
	cmd := s.cfg.OKCommand
	if item.FrameStatus == entity.FrameNG {
		cmd = s.cfg.NGCommand
	}
	if cmd == "" || s.sender == nil {
		return
	}
	if err := s.sender.Send(cmd); err != nil {
		s.log.Error("actuator command failed", logger.Fields(logger.FieldFrameID, item.FrameID, "command", cmd, logger.FieldError, err.Error()))
		return
	}
	s.count(func(st *InspectionStats) { st.Actuations++ })
	s.log.Info("actuator command sent", logger.Fields(logger.FieldFrameID, item.FrameID, "command", cmd))
}

// AddSink подключает приёмник результатов.
func (s *InspectionService) AddSink(sink port.ResultSink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

func (s *InspectionService) publish(ctx context.Context, item entity.ResultItem) {
	s.mu.Lock()
	sinks := append([]port.ResultSink(nil), s.sinks...)
	s.mu.Unlock()
	for _, sink := range sinks {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := sink.Publish(pctx, item)
		cancel()
		if err != nil {
			s.count(func(st *InspectionStats) { st.PublishErrors++ })
			s.log.Warn("result publish failed", logger.Fields("sink", sink.Name(), logger.FieldFrameID, item.FrameID, logger.FieldError, err.Error()))
			continue
		}
		s.count(func(st *InspectionStats) { st.Published++ })
	}
}

// TriggerCapture запрашивает разовый кадр у координатора.
func (s *InspectionService) TriggerCapture() bool {
	if s.capture == nil {
		return false
	}
	return s.capture.ActivateCaptureRequest()
}

// Queue возвращает снимок очереди результатов.
func (s *InspectionService) Queue() []entity.ResultItem {
	return s.queue.GetTableSnapshot()
}

// ClearQueue очищает очередь и возвращает число удалённых строк.
func (s *InspectionService) ClearQueue() int {
	return s.queue.Clear()
}

// LastResult возвращает последний кадр и результат задания.
func (s *InspectionService) LastResult() (*entity.Frame, pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastImage, s.lastResult.Clone()
}

func (s *InspectionService) Stats() InspectionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Status собирает сводку по заданию, очереди и камере.
func (s *InspectionService) Status() Status {
	job := s.engine.Job()
	st := Status{
		Mode:       entity.ModeOff,
		Job:        job.Name(),
		JobStatus:  job.Status(),
		QueueLen:   s.queue.Len(),
		Engine:     s.engine.Stats(),
		Inspection: s.Stats(),
	}
	if last, ok := s.queue.GetLastDone(); ok {
		st.LastDone = &last
	}
	if s.capture != nil {
		st.Mode = s.capture.Mode()
		st.Trigger = s.capture.Metrics()
	}
	return st
}

func (s *InspectionService) count(fn func(*InspectionStats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Judge выводит OK/NG из агрегированного результата задания.
// Ошибка даёт NG; явный frame_status имеет приоритет; иначе решает detection_count.
func Judge(res pipeline.Result, ngWhenDetected bool) entity.FrameStatus {
	if msg, ok := res[pipeline.KeyError]; ok && msg != nil && msg != "" {
		return entity.FrameNG
	}
	switch v := res[pipeline.KeyFrameStatus].(type) {
	case entity.FrameStatus:
		if v == entity.FrameOK || v == entity.FrameNG {
			return v
		}
	case string:
		if st, err := entity.ParseFrameStatus(v); err == nil {
			return st
		}
	}
	count := intOf(res[detection.ResultCount])
	if ngWhenDetected {
		if count > 0 {
			return entity.FrameNG
		}
		return entity.FrameOK
	}
	if count == 0 {
		return entity.FrameNG
	}
	return entity.FrameOK
}

var summaryKeys = []string{
	detection.ResultCount,
	detection.ResultClassCounts,
	detection.ResultAvgConfidence,
	detection.ResultDetections,
	classification.ResultClassName,
	classification.ResultConfidence,
	imagesave.ResultPath,
	pipeline.KeyError,
	pipeline.KeyFailedTool,
	pipeline.KeySkippedFrame,
}

// Summarize оставляет в результате только то, что хранится в строке очереди.
func Summarize(res pipeline.Result) map[string]any {
	out := make(map[string]any, len(summaryKeys))
	for _, k := range summaryKeys {
		if v, ok := res[k]; ok && v != nil {
			out[k] = v
		}
	}
	return out
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
