package entity

import (
	"fmt"
	"strings"
	"time"
)

// CaptureMode — режим работы камеры.
type CaptureMode string

const (
	ModeOff      CaptureMode = "off"
	ModeLive     CaptureMode = "live"
	ModeTrigger  CaptureMode = "trigger"
	ModeExternal CaptureMode = "external"
)

// ParseCaptureMode разбирает имя режима.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch m := CaptureMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOff, ModeLive, ModeTrigger, ModeExternal:
		return m, nil
	}
	return ModeOff, fmt.Errorf("unknown capture mode %q", s)
}

// CaptureConfig — настройки камеры и триггера.
type CaptureConfig struct {
	PixelFormat     PixelFormat
	ExposureUS      int
	AutoExposure    bool
	Width           int
	Height          int
	JobMode         bool
	ExternalTrigger bool
	Cooldown        time.Duration
	PendingDelay    time.Duration
}

// DefaultCaptureConfig — значения по умолчанию.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		PixelFormat:  PixelRGB,
		ExposureUS:   10000,
		AutoExposure: true,
		Width:        640,
		Height:       480,
		JobMode:      true,
		Cooldown:     250 * time.Millisecond,
	}
}
