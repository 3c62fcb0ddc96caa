// Package tcp — клиентский канал событий контроллера датчиков и приводов.
// Входящие сообщения и исходящие команды разделяются символом '\n'.
package tcp

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageKind — тип входящего сообщения.
type MessageKind int

const (
	MessageSensorIn MessageKind = iota + 1
	MessageSensorOut
	MessageRising
	// MessageIgnored — сообщения контроллера освещения, канал их не обрабатывает.
	MessageIgnored
)

func (k MessageKind) String() string {
	switch k {
	case MessageSensorIn:
		return "start_sensor"
	case MessageSensorOut:
		return "end_sensor"
	case MessageRising:
		return "start_rising"
	case MessageIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("MessageKind(%d)", int(k))
	}
}

const (
	prefixSensorIn  = "start_sensor,"
	prefixSensorOut = "end_sensor,"
	prefixRising    = "start_rising||"
	prefixStatus    = "status:"
	prefixLight     = "brightness:"
)

// Message — разобранная строка протокола.
// Value — id датчика для start/end_sensor и метка времени для start_rising.
type Message struct {
	Kind  MessageKind
	Value int64
	Raw   string
}

// ParseMessage разбирает одну строку без завершающего '\n'.
func ParseMessage(line string) (Message, error) {
	line = strings.TrimSpace(line)
	msg := Message{Raw: line}

	switch {
	case strings.HasPrefix(line, prefixSensorIn):
		v, err := parseUint(line[len(prefixSensorIn):])
		if err != nil {
			return msg, fmt.Errorf("start_sensor: %w", err)
		}
		msg.Kind, msg.Value = MessageSensorIn, v
	case strings.HasPrefix(line, prefixSensorOut):
		v, err := parseUint(line[len(prefixSensorOut):])
		if err != nil {
			return msg, fmt.Errorf("end_sensor: %w", err)
		}
		msg.Kind, msg.Value = MessageSensorOut, v
	case strings.HasPrefix(line, prefixRising):
		v, err := parseUint(line[len(prefixRising):])
		if err != nil {
			return msg, fmt.Errorf("start_rising: %w", err)
		}
		msg.Kind, msg.Value = MessageRising, v
	case strings.HasPrefix(line, prefixStatus), strings.HasPrefix(line, prefixLight):
		msg.Kind = MessageIgnored
	default:
		return msg, fmt.Errorf("unknown message %q", line)
	}
	return msg, nil
}

func parseUint(s string) (int64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return int64(v), nil
}
