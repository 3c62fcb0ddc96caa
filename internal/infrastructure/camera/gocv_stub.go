//go:build !gocv
// +build !gocv

package camera

import (
	"context"
	"errors"

	"vision-inspector/internal/domain/entity"
)

// GoCVCamera — заглушка камеры без OpenCV.
type GoCVCamera struct{}

// NewGoCVCamera возвращает ошибку, если сборка без тега gocv.
func NewGoCVCamera(device string) (*GoCVCamera, error) {
	_ = device
	return nil, errors.New("gocv build tag is not enabled")
}

func (c *GoCVCamera) Open(ctx context.Context) error {
	_ = ctx
	return errors.New("gocv build tag is not enabled")
}

func (c *GoCVCamera) Configure(cfg entity.CaptureConfig) error {
	_ = cfg
	return errors.New("gocv build tag is not enabled")
}

func (c *GoCVCamera) SetExternalTrigger(enabled bool) error {
	_ = enabled
	return errors.New("gocv build tag is not enabled")
}

func (c *GoCVCamera) Capture(ctx context.Context) (*entity.Frame, error) {
	_ = ctx
	return nil, errors.New("gocv build tag is not enabled")
}

func (c *GoCVCamera) Close() error { return nil }
