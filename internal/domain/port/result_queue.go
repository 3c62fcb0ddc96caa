package port

import "vision-inspector/internal/domain/entity"

// ResultQueue интерфейс очереди сопоставления результатов
type ResultQueue interface {
	AddSensorInEvent(sensorIDIn int) int64
	AddSensorOutEvent(sensorIDOut int) bool
	SetFrameDetectionData(frameID int64, payload any) bool
	SetFrameStatus(frameID int64, status entity.FrameStatus) bool
	AttachJobResultToWaitingFrame(status entity.FrameStatus, payload any) (int64, bool)
	CreateFrameWithResult(status entity.FrameStatus, payload any) int64
	Delete(frameID int64) bool
	DeleteRow(index int) bool
	Clear() int
	ResetCounter()
	GetLastDone() (entity.ResultItem, bool)
	Get(frameID int64) (entity.ResultItem, bool)
	GetTableSnapshot() []entity.ResultItem
	WaitingFrame() (int64, bool)
	Len() int

	// OnUpdate регистрирует получателя изменённых строк
	OnUpdate(fn func(entity.ResultItem))
}
