package port

import (
	"context"

	"vision-inspector/internal/domain/entity"
)

// ResultSink получает завершённые строки очереди (MQTT, Telegram)
type ResultSink interface {
	// Name возвращает имя приёмника для логов
	Name() string

	// Publish отправляет строку; ошибка не влияет на очередь
	Publish(ctx context.Context, item entity.ResultItem) error
}

// CommandSender отправляет команды исполнительным механизмам
type CommandSender interface {
	Send(command string) error
}
