// Package camera содержит реализации порта Camera.
package camera

import (
	"context"
	"errors"
	"sync"
	"time"

	"vision-inspector/internal/domain/entity"
)

// ErrClosed — камера не открыта.
var ErrClosed = errors.New("camera is not open")

// SimulatedCamera генерирует синтетические кадры: градиентный фон и квадрат,
// сдвигающийся с каждым кадром. Используется без оборудования и в тестах.
type SimulatedCamera struct {
	mu       sync.Mutex
	cfg      entity.CaptureConfig
	open     bool
	external bool
	seq      uint64
	latency  time.Duration
	captures int
}

// NewSimulatedCamera создаёт камеру. latency имитирует время экспозиции и чтения.
func NewSimulatedCamera(latency time.Duration) *SimulatedCamera {
	return &SimulatedCamera{cfg: entity.DefaultCaptureConfig(), latency: latency}
}

func (c *SimulatedCamera) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	return nil
}

func (c *SimulatedCamera) Configure(cfg entity.CaptureConfig) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("frame size must be positive")
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return nil
}

func (c *SimulatedCamera) SetExternalTrigger(enabled bool) error {
	c.mu.Lock()
	c.external = enabled
	c.mu.Unlock()
	return nil
}

// Captures возвращает число выданных кадров.
func (c *SimulatedCamera) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

// Capture возвращает следующий кадр после задержки latency.
func (c *SimulatedCamera) Capture(ctx context.Context) (*entity.Frame, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	cfg := c.cfg
	latency := c.latency
	c.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	c.seq++
	c.captures++
	seq := c.seq
	c.mu.Unlock()

	f := entity.NewFrame(cfg.Width, cfg.Height, cfg.PixelFormat)
	f.Seq = seq
	f.Timestamp = time.Now()
	paint(f, seq)
	return f, nil
}

func (c *SimulatedCamera) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}

// paint рисует сцену в формате кадра.
func paint(f *entity.Frame, seq uint64) {
	w, h := f.Width, f.Height
	side := min(w, h) / 4
	x0 := int(seq*8) % max(1, w-side)
	y0 := (h - side) / 2

	if f.Format == entity.PixelYUV420 {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := byte(x * 255 / max(1, w-1))
				if x >= x0 && x < x0+side && y >= y0 && y < y0+side {
					v = 235
				}
				f.Data[y*w+x] = v
			}
		}
		for i := w * h; i < len(f.Data); i++ {
			f.Data[i] = 128
		}
		return
	}

	ch := f.Channels()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := byte(x*255/max(1, w-1)), byte(y*255/max(1, h-1)), byte(64)
			if x >= x0 && x < x0+side && y >= y0 && y < y0+side {
				r, g, b = 220, 30, 30
			}
			i := (y*w + x) * ch
			switch f.Format {
			case entity.PixelBGR:
				f.Data[i], f.Data[i+1], f.Data[i+2] = b, g, r
			default:
				f.Data[i], f.Data[i+1], f.Data[i+2] = r, g, b
			}
			if ch == 4 {
				f.Data[i+3] = 255
			}
		}
	}
}
