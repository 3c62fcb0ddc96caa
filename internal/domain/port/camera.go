package port

import (
	"context"

	"vision-inspector/internal/domain/entity"
)

// Camera интерфейс сессии камеры. Реализация не обязана быть потокобезопасной:
// к ней обращается только поток захвата.
type Camera interface {
	// Open открывает устройство
	Open(ctx context.Context) error

	// Configure применяет формат, экспозицию и размер кадра
	Configure(cfg entity.CaptureConfig) error

	// SetExternalTrigger переключает датчик в режим внешнего триггера
	SetExternalTrigger(enabled bool) error

	// Capture ждёт следующий кадр. В режиме внешнего триггера кадр возвращается
	// только когда появилась новая метка времени датчика.
	Capture(ctx context.Context) (*entity.Frame, error)

	// Close закрывает устройство
	Close() error
}
