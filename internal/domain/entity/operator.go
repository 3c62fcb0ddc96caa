package entity

// OperatorState состояние подписки оператора на оповещения
type OperatorState string

const (
	OperatorIdle       OperatorState = "idle"       // Оповещения выключены
	OperatorSubscribed OperatorState = "subscribed" // Получает оповещения о браке
	OperatorMuted      OperatorState = "muted"      // Временно не получает оповещения
)

// Operator представляет оператора линии в Telegram
type Operator struct {
	ID     int64         // Telegram User ID
	ChatID int64         // Telegram Chat ID
	State  OperatorState // Текущее состояние подписки
}

// NewOperator создаёт оператора с выключенными оповещениями
func NewOperator(userID, chatID int64) *Operator {
	return &Operator{
		ID:     userID,
		ChatID: chatID,
		State:  OperatorIdle,
	}
}

// SetState обновляет состояние оператора
func (o *Operator) SetState(state OperatorState) {
	o.State = state
}

// WantsAlerts сообщает, нужно ли слать оператору оповещения
func (o *Operator) WantsAlerts() bool {
	return o.State == OperatorSubscribed
}
