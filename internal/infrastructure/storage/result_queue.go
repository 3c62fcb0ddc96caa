package storage

import (
	"sync"
	"time"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
)

// DefaultQueueSize — ограничение очереди по умолчанию.
const DefaultQueueSize = 100

// QueueOption настраивает MemoryResultQueue.
type QueueOption func(*MemoryResultQueue)

// WithQueueLogger задаёт логгер очереди.
func WithQueueLogger(log *logger.Logger) QueueOption {
	return func(q *MemoryResultQueue) {
		if log != nil {
			q.log = log
		}
	}
}

// WithQueueClock подменяет источник времени для меток строк.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *MemoryResultQueue) { q.now = now }
}

// MemoryResultQueue — ограниченная очередь сопоставления датчиков и результатов.
// Строки хранятся в порядке вставки, frame_id строго растёт вдоль очереди.
// Ручные строки (sensor_id_in = 0) не участвуют в сопоставлении sensor-OUT.
type MemoryResultQueue struct {
	mu      sync.Mutex
	items   []entity.ResultItem
	maxSize int
	nextID  int64
	waiting int64
	onSave  func(entity.ResultItem)
	log     *logger.Logger
	now     func() time.Time
}

// NewMemoryResultQueue создаёт очередь; maxSize <= 0 заменяется на DefaultQueueSize.
func NewMemoryResultQueue(maxSize int, opts ...QueueOption) *MemoryResultQueue {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	q := &MemoryResultQueue{
		maxSize: maxSize,
		nextID:  1,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// OnUpdate регистрирует получателя изменённых строк. Вызывается без блокировки
// очереди с копией строки.
func (q *MemoryResultQueue) OnUpdate(fn func(entity.ResultItem)) {
	q.mu.Lock()
	q.onSave = fn
	q.mu.Unlock()
}

func (q *MemoryResultQueue) MaxSize() int { return q.maxSize }

// AddSensorInEvent добавляет строку для нового объекта и делает её ожидающей
// результата задания.
func (q *MemoryResultQueue) AddSensorInEvent(sensorIDIn int) int64 {
	q.mu.Lock()
	id := q.appendLocked(entity.ResultItem{
		SensorIDIn:       entity.IntPtr(sensorIDIn),
		FrameStatus:      entity.FramePending,
		CompletionStatus: entity.CompletionPending,
		TimestampIn:      q.now(),
	})
	if q.waiting != 0 {
		q.log.Warn("previous frame still waiting for result", logger.Fields(logger.FieldFrameID, q.waiting))
	}
	q.waiting = id
	item, hook := q.items[len(q.items)-1].Clone(), q.onSave
	q.mu.Unlock()

	q.log.Debug("sensor in", logger.Fields(logger.FieldFrameID, id, logger.FieldSensorID, sensorIDIn))
	notify(hook, item)
	return id
}

// appendLocked выделяет frame_id и при переполнении отбрасывает голову.
func (q *MemoryResultQueue) appendLocked(item entity.ResultItem) int64 {
	item.FrameID = q.nextID
	q.nextID++
	q.items = append(q.items, item)
	for len(q.items) > q.maxSize {
		dropped := q.items[0]
		q.items = q.items[1:]
		if dropped.FrameID == q.waiting {
			q.waiting = 0
		}
		q.log.Warn("result queue full, head dropped", logger.Fields(logger.FieldFrameID, dropped.FrameID, "max_size", q.maxSize))
	}
	return item.FrameID
}

// AddSensorOutEvent сопоставляет sensor-OUT с первой строкой без него.
func (q *MemoryResultQueue) AddSensorOutEvent(sensorIDOut int) bool {
	q.mu.Lock()
	idx := -1
	for i := range q.items {
		if q.items[i].SensorIDOut == nil && !q.items[i].Manual() {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		q.log.Warn("sensor out without pending frame", logger.Fields(logger.FieldSensorID, sensorIDOut))
		return false
	}
	row := &q.items[idx]
	row.SensorIDOut = entity.IntPtr(sensorIDOut)
	row.TimestampOut = q.now()
	row.RefreshCompletion()
	item, hook := row.Clone(), q.onSave
	q.mu.Unlock()

	q.log.Debug("sensor out matched", logger.Fields(logger.FieldFrameID, item.FrameID, logger.FieldSensorID, sensorIDOut))
	notify(hook, item)
	return true
}

// SetFrameDetectionData прикрепляет данные детекции к строке.
func (q *MemoryResultQueue) SetFrameDetectionData(frameID int64, payload any) bool {
	return q.update(frameID, func(row *entity.ResultItem) bool {
		row.Detections = payload
		return true
	})
}

// SetFrameStatus задаёт OK или NG; PENDING отклоняется.
func (q *MemoryResultQueue) SetFrameStatus(frameID int64, status entity.FrameStatus) bool {
	if !finalStatus(status) {
		q.log.Warn("invalid frame status", logger.Fields(logger.FieldFrameID, frameID, "status", string(status)))
		return false
	}
	return q.update(frameID, func(row *entity.ResultItem) bool {
		row.FrameStatus = status
		row.RefreshCompletion()
		return true
	})
}

func (q *MemoryResultQueue) update(frameID int64, fn func(*entity.ResultItem) bool) bool {
	q.mu.Lock()
	idx := q.indexLocked(frameID)
	if idx < 0 || !fn(&q.items[idx]) {
		q.mu.Unlock()
		return false
	}
	item, hook := q.items[idx].Clone(), q.onSave
	q.mu.Unlock()

	notify(hook, item)
	return true
}

// AttachJobResultToWaitingFrame записывает результат в ожидающую строку
// и сбрасывает указатель ожидания.
func (q *MemoryResultQueue) AttachJobResultToWaitingFrame(status entity.FrameStatus, payload any) (int64, bool) {
	if !finalStatus(status) {
		return 0, false
	}
	q.mu.Lock()
	id := q.waiting
	q.waiting = 0
	idx := -1
	if id != 0 {
		idx = q.indexLocked(id)
	}
	if idx < 0 {
		q.mu.Unlock()
		q.log.Warn("job result without waiting frame", logger.Fields("status", string(status)))
		return 0, false
	}
	row := &q.items[idx]
	row.FrameStatus = status
	if payload != nil {
		row.Detections = payload
	}
	row.RefreshCompletion()
	item, hook := row.Clone(), q.onSave
	q.mu.Unlock()

	notify(hook, item)
	return id, true
}

// CreateFrameWithResult создаёт строку ручного триггера с готовым результатом.
// Возвращает 0, если статус недопустим.
func (q *MemoryResultQueue) CreateFrameWithResult(status entity.FrameStatus, payload any) int64 {
	if !finalStatus(status) {
		q.log.Warn("invalid frame status", logger.Fields("status", string(status)))
		return 0
	}
	q.mu.Lock()
	id := q.appendLocked(entity.ResultItem{
		SensorIDIn:       entity.IntPtr(entity.ManualSensorID),
		FrameStatus:      status,
		CompletionStatus: entity.CompletionPending,
		TimestampIn:      q.now(),
		Detections:       payload,
		ManualTrigger:    true,
	})
	item, hook := q.items[len(q.items)-1].Clone(), q.onSave
	q.mu.Unlock()

	notify(hook, item)
	return id
}

// WaitingFrame возвращает frame_id, ожидающий результата задания.
func (q *MemoryResultQueue) WaitingFrame() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting, q.waiting != 0
}

func (q *MemoryResultQueue) Delete(frameID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexLocked(frameID)
	if idx < 0 {
		return false
	}
	q.removeLocked(idx)
	return true
}

func (q *MemoryResultQueue) DeleteRow(index int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.items) {
		return false
	}
	q.removeLocked(index)
	return true
}

func (q *MemoryResultQueue) removeLocked(idx int) {
	if q.items[idx].FrameID == q.waiting {
		q.waiting = 0
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
}

// Clear удаляет все строки; счётчик frame_id не сбрасывается.
func (q *MemoryResultQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	q.waiting = 0
	q.log.Info("result queue cleared", logger.Fields("rows", n))
	return n
}

// ResetCounter начинает нумерацию заново. Для непустой очереди следующий
// frame_id продолжает последний, чтобы порядок id не нарушался.
func (q *MemoryResultQueue) ResetCounter() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n := len(q.items); n > 0 {
		q.nextID = q.items[n-1].FrameID + 1
		q.log.Warn("counter reset on non-empty queue", logger.Fields("next_frame_id", q.nextID))
		return
	}
	q.nextID = 1
}

// GetLastDone возвращает последнюю строку в состоянии DONE.
func (q *MemoryResultQueue) GetLastDone() (entity.ResultItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.items) - 1; i >= 0; i-- {
		if q.items[i].CompletionStatus == entity.CompletionDone {
			return q.items[i].Clone(), true
		}
	}
	return entity.ResultItem{}, false
}

func (q *MemoryResultQueue) Get(frameID int64) (entity.ResultItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexLocked(frameID)
	if idx < 0 {
		return entity.ResultItem{}, false
	}
	return q.items[idx].Clone(), true
}

// GetTableSnapshot возвращает копии всех строк.
func (q *MemoryResultQueue) GetTableSnapshot() []entity.ResultItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]entity.ResultItem, len(q.items))
	for i := range q.items {
		out[i] = q.items[i].Clone()
	}
	return out
}

func (q *MemoryResultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *MemoryResultQueue) indexLocked(frameID int64) int {
	for i := range q.items {
		if q.items[i].FrameID == frameID {
			return i
		}
	}
	return -1
}

func finalStatus(s entity.FrameStatus) bool {
	return s == entity.FrameOK || s == entity.FrameNG
}

func notify(hook func(entity.ResultItem), item entity.ResultItem) {
	if hook != nil {
		hook(item)
	}
}

// Проверка реализации интерфейса
var _ port.ResultQueue = (*MemoryResultQueue)(nil)
