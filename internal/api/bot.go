package telegram

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	app "vision-inspector/internal/application"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
)

const (
	msgStart = `👋 Бот контроля качества линии.

Я присылаю оповещения о браке (NG) и показываю состояние контроллера.

📋 Команды:
/subscribe — получать оповещения о браке
/unsubscribe — отключить оповещения
/mute — временно не присылать оповещения
/status — состояние камеры, задания и очереди
/queue — последние строки очереди
/trigger — сделать снимок вручную
/clear — очистить очередь
/help — справка`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Подпишитесь командой /subscribe
2️⃣ При браке придёт сообщение с номером кадра и найденными объектами
3️⃣ /status и /queue показывают текущее состояние линии

📋 Команды:
/subscribe, /unsubscribe, /mute, /status, /queue, /trigger, /clear`

	msgSubscribed     = "🔔 Оповещения о браке включены."
	msgUnsubscribed   = "🔕 Оповещения выключены."
	msgMuted          = "🔇 Оповещения временно отключены. /subscribe — включить снова."
	msgUnknownCommand = "❓ Неизвестная команда. Используйте /help для справки."
	msgSendCommand    = "⌨️ Я понимаю только команды. Используйте /help для справки."
	msgTriggered      = "📸 Снимок запрошен."
	msgTriggerDropped = "⏳ Снимок не сделан: камера выключена или ещё не прошёл cooldown."
	msgError          = "⚠️ Не удалось выполнить команду."

	queueRows = 10
)

// Inspector — операции контроллера, доступные оператору.
type Inspector interface {
	Status() app.Status
	Queue() []entity.ResultItem
	ClearQueue() int
	TriggerCapture() bool
}

// Bot представляет Telegram-бота оператора
type Bot struct {
	api       *tgbotapi.BotAPI
	operators *app.OperatorService
	inspector Inspector
	log       *logger.Logger
	stopOnce  sync.Once
}

// NewBot создаёт нового бота
func NewBot(token string, operators *app.OperatorService, inspector Inspector, log *logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	log.Info("telegram bot authorized", logger.Fields("account", api.Self.UserName))

	return &Bot{
		api:       api,
		operators: operators,
		inspector: inspector,
		log:       log,
	}, nil
}

func (b *Bot) Name() string { return "telegram" }

// Run запускает основной цикл обработки сообщений до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) stop() {
	b.stopOnce.Do(b.api.StopReceivingUpdates)
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	op, err := b.operators.Get(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		b.log.Error("get operator failed", logger.ErrorFields("get_operator", err))
		return
	}

	if !msg.IsCommand() {
		b.sendMessage(msg.Chat.ID, msgSendCommand)
		return
	}
	b.handleCommand(ctx, msg, op)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, op *entity.Operator) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.sendMessage(chatID, msgStart)

	case "help":
		b.sendMessage(chatID, msgHelp)

	case "subscribe":
		b.changeState(ctx, op, entity.OperatorSubscribed, msgSubscribed)

	case "unsubscribe":
		b.changeState(ctx, op, entity.OperatorIdle, msgUnsubscribed)

	case "mute":
		b.changeState(ctx, op, entity.OperatorMuted, msgMuted)

	case "status":
		b.sendMessage(chatID, FormatStatus(b.inspector.Status()))

	case "queue":
		b.sendMessage(chatID, FormatQueue(b.inspector.Queue(), queueRows))

	case "trigger":
		if b.inspector.TriggerCapture() {
			b.sendMessage(chatID, msgTriggered)
		} else {
			b.sendMessage(chatID, msgTriggerDropped)
		}

	case "clear":
		n := b.inspector.ClearQueue()
		b.log.Info("queue cleared by operator", logger.Fields("operator", op.ID, "rows", n))
		b.sendMessage(chatID, fmt.Sprintf("🗑 Удалено строк: %d", n))

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

func (b *Bot) changeState(ctx context.Context, op *entity.Operator, state entity.OperatorState, reply string) {
	if _, err := b.operators.SetState(ctx, op.ID, op.ChatID, state); err != nil {
		b.log.Error("save operator failed", logger.ErrorFields("set_state", err))
		b.sendMessage(op.ChatID, msgError)
		return
	}
	b.sendMessage(op.ChatID, reply)
}

// Publish рассылает оповещение о браке подписанным операторам
func (b *Bot) Publish(ctx context.Context, item entity.ResultItem) error {
	if item.FrameStatus != entity.FrameNG {
		return nil
	}
	chats, err := b.operators.AlertChats(ctx)
	if err != nil {
		return err
	}
	text := FormatAlert(item)
	for _, chatID := range chats {
		b.sendMessage(chatID, text)
	}
	return nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("send message failed", logger.Fields("chat_id", chatID, logger.FieldError, err.Error()))
	}
}

var _ port.ResultSink = (*Bot)(nil)
