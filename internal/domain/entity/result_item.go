package entity

import (
	"fmt"
	"strings"
	"time"
)

// FrameStatus — итог проверки кадра.
type FrameStatus string

const (
	FramePending FrameStatus = "PENDING"
	FrameOK      FrameStatus = "OK"
	FrameNG      FrameStatus = "NG"
)

// ParseFrameStatus принимает только итоговые статусы OK и NG.
func ParseFrameStatus(s string) (FrameStatus, error) {
	switch FrameStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case FrameOK:
		return FrameOK, nil
	case FrameNG:
		return FrameNG, nil
	}
	return FramePending, fmt.Errorf("invalid frame status %q", s)
}

// CompletionStatus — состояние сопоставления датчиков.
type CompletionStatus string

const (
	CompletionPending CompletionStatus = "PENDING"
	CompletionDone    CompletionStatus = "DONE"
)

// ManualSensorID — sensor_id_in для кадров ручного триггера.
const ManualSensorID = 0

// ResultItem — строка очереди результатов.
type ResultItem struct {
	FrameID          int64            `json:"frame_id"`
	SensorIDIn       *int             `json:"sensor_id_in,omitempty"`
	SensorIDOut      *int             `json:"sensor_id_out,omitempty"`
	FrameStatus      FrameStatus      `json:"frame_status"`
	CompletionStatus CompletionStatus `json:"completion_status"`
	TimestampIn      time.Time        `json:"timestamp_in"`
	TimestampOut     time.Time        `json:"timestamp_out,omitempty"`
	Detections       any              `json:"detections,omitempty"`
	// ManualTrigger выставляется только для строк ручного триггера
	ManualTrigger bool `json:"manual,omitempty"`
}

// HasBothSensors сообщает, что оба датчика уже сработали.
func (r *ResultItem) HasBothSensors() bool {
	return r.SensorIDIn != nil && r.SensorIDOut != nil
}

// Manual сообщает, что строка создана ручным триггером. Настоящий датчик
// с id 0 ручной строкой не считается.
func (r *ResultItem) Manual() bool {
	return r.ManualTrigger
}

// RefreshCompletion приводит completion_status в соответствие с датчиками.
func (r *ResultItem) RefreshCompletion() {
	if r.HasBothSensors() {
		r.CompletionStatus = CompletionDone
	} else {
		r.CompletionStatus = CompletionPending
	}
}

// Clone возвращает копию строки; указатели на id датчиков копируются.
func (r *ResultItem) Clone() ResultItem {
	c := *r
	if r.SensorIDIn != nil {
		v := *r.SensorIDIn
		c.SensorIDIn = &v
	}
	if r.SensorIDOut != nil {
		v := *r.SensorIDOut
		c.SensorIDOut = &v
	}
	return c
}

// IntPtr — вспомогательная функция для опциональных id датчиков.
func IntPtr(v int) *int { return &v }
