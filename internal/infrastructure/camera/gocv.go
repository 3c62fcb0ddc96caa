//go:build gocv
// +build gocv

package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"vision-inspector/internal/domain/entity"
)

// GoCVCamera читает кадры из устройства через gocv.VideoCapture.
// OpenCV отдаёт кадры в BGR; при формате RGB каналы переставляются.
type GoCVCamera struct {
	mu       sync.Mutex
	device   string
	capture  *gocv.VideoCapture
	mat      gocv.Mat
	cfg      entity.CaptureConfig
	external bool
	seq      uint64
}

// NewGoCVCamera создаёт камеру для устройства (номер или URL).
func NewGoCVCamera(device string) (*GoCVCamera, error) {
	return &GoCVCamera{device: device, cfg: entity.DefaultCaptureConfig()}, nil
}

func (c *GoCVCamera) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	vc, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return fmt.Errorf("open camera %s: %w", c.device, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return fmt.Errorf("camera %s is not available", c.device)
	}
	c.capture = vc
	c.mat = gocv.NewMat()
	return nil
}

func (c *GoCVCamera) Configure(cfg entity.CaptureConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	if c.capture == nil {
		return nil
	}
	c.capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	c.capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	if cfg.AutoExposure {
		c.capture.Set(gocv.VideoCaptureAutoExposure, 0.75)
	} else {
		c.capture.Set(gocv.VideoCaptureAutoExposure, 0.25)
		// V4L2 ожидает экспозицию в единицах по 100 мкс
		c.capture.Set(gocv.VideoCaptureExposure, float64(cfg.ExposureUS)/100)
	}
	return nil
}

// SetExternalTrigger запоминает режим. UVC-камеры не управляют линией триггера,
// поэтому в этом режиме кадр читается по запросу координатора.
func (c *GoCVCamera) SetExternalTrigger(enabled bool) error {
	c.mu.Lock()
	c.external = enabled
	c.mu.Unlock()
	return nil
}

func (c *GoCVCamera) Capture(ctx context.Context) (*entity.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return nil, ErrClosed
	}
	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, errors.New("empty frame")
	}

	w, h := c.mat.Cols(), c.mat.Rows()
	data := c.mat.ToBytes()
	c.seq++
	f := &entity.Frame{
		Width:     w,
		Height:    h,
		Format:    entity.PixelBGR,
		Data:      data,
		Timestamp: time.Now(),
		Seq:       c.seq,
	}
	if c.cfg.PixelFormat == entity.PixelRGB {
		rgb, err := f.ToRGB()
		if err != nil {
			return nil, err
		}
		return rgb, nil
	}
	return f, nil
}

func (c *GoCVCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return nil
	}
	_ = c.mat.Close()
	err := c.capture.Close()
	c.capture = nil
	return err
}
