package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/infrastructure/camera"
)

type fakeCamera struct {
	mu          sync.Mutex
	openErr     error
	block       bool
	opened      bool
	captures    int
	triggerSets []bool
	entered     chan struct{}
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{entered: make(chan struct{}, 8)}
}

func (f *fakeCamera) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeCamera) Configure(cfg entity.CaptureConfig) error { return nil }

func (f *fakeCamera) SetExternalTrigger(enabled bool) error {
	f.mu.Lock()
	f.triggerSets = append(f.triggerSets, enabled)
	f.mu.Unlock()
	return nil
}

func (f *fakeCamera) Capture(ctx context.Context) (*entity.Frame, error) {
	f.mu.Lock()
	f.captures++
	block := f.block
	f.mu.Unlock()
	select {
	case f.entered <- struct{}{}:
	default:
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return entity.NewFrame(4, 2, entity.PixelRGB), nil
}

func (f *fakeCamera) Close() error {
	f.mu.Lock()
	f.opened = false
	f.mu.Unlock()
	return nil
}

func (f *fakeCamera) isOpened() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *fakeCamera) triggerCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.triggerSets...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func runCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("coordinator did not stop")
		}
	})
}

func collectFrames(c *Coordinator) chan FrameMeta {
	frames := make(chan FrameMeta, 64)
	c.OnFrame(func(_ *entity.Frame, meta FrameMeta) {
		select {
		case frames <- meta:
		default:
		}
	})
	return frames
}

func waitFrame(t *testing.T, frames chan FrameMeta) FrameMeta {
	t.Helper()
	select {
	case meta := <-frames:
		return meta
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return FrameMeta{}
}

func TestCoordinator_CooldownDropsSecondRequest(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	cfg := entity.DefaultCaptureConfig()
	cfg.Cooldown = 250 * time.Millisecond

	c := NewCoordinator(newFakeCamera(), WithClock(clock.Now), WithConfig(cfg))
	require.NoError(t, c.SetMode(entity.ModeTrigger))
	frames := collectFrames(c)
	runCoordinator(t, c)

	require.True(t, c.ActivateCaptureRequest())
	clock.Advance(100 * time.Millisecond)
	require.False(t, c.ActivateCaptureRequest())

	meta := waitFrame(t, frames)
	require.Equal(t, SourceSoftware, meta.Source)
	require.NotEmpty(t, meta.TriggerID)
	require.Never(t, func() bool { return len(frames) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	m := c.Metrics()
	require.Equal(t, uint64(2), m.Received)
	require.Equal(t, uint64(1), m.DroppedCooldown)
	require.Equal(t, uint64(1), m.Succeeded)

	clock.Advance(200 * time.Millisecond)
	require.True(t, c.ActivateCaptureRequest())
	waitFrame(t, frames)
}

func TestCoordinator_OffIgnoresRequests(t *testing.T) {
	c := NewCoordinator(newFakeCamera())
	require.Equal(t, entity.ModeOff, c.Mode())
	require.False(t, c.ActivateCaptureRequest())
	require.False(t, c.OnSensorTrigger(1, 0, time.Now()))
}

func TestCoordinator_LiveCadenceStopsOnModeChange(t *testing.T) {
	cam := camera.NewSimulatedCamera(0)
	cfg := entity.DefaultCaptureConfig()
	cfg.Width, cfg.Height = 16, 8

	c := NewCoordinator(cam, WithLiveFPS(100), WithConfig(cfg))
	require.NoError(t, c.SetMode(entity.ModeLive))
	frames := collectFrames(c)
	runCoordinator(t, c)

	for i := 0; i < 3; i++ {
		meta := waitFrame(t, frames)
		require.Equal(t, SourceLive, meta.Source)
		require.Equal(t, entity.ModeLive, meta.Mode)
		require.Equal(t, entity.PixelRGB, meta.PixelFormat)
	}

	require.NoError(t, c.SetMode(entity.ModeTrigger))
	time.Sleep(30 * time.Millisecond)
	before := cam.Captures()
	time.Sleep(100 * time.Millisecond)
	require.LessOrEqual(t, cam.Captures()-before, 1)
	require.Zero(t, c.Metrics().Succeeded)
}

func TestCoordinator_ExternalTriggerIsDelayed(t *testing.T) {
	cam := newFakeCamera()
	cfg := entity.DefaultCaptureConfig()
	cfg.Cooldown = 0
	cfg.PendingDelay = 40 * time.Millisecond

	c := NewCoordinator(cam, WithConfig(cfg))
	require.NoError(t, c.SetMode(entity.ModeExternal))
	frames := collectFrames(c)
	runCoordinator(t, c)

	received := time.Now()
	require.True(t, c.OnSensorTrigger(3, 0, received))

	meta := waitFrame(t, frames)
	require.Equal(t, SourceExternal, meta.Source)
	require.Equal(t, 3, meta.SensorID)
	require.GreaterOrEqual(t, meta.CapturedAt.Sub(received), 40*time.Millisecond)
	require.Eventually(t, cam.isOpened, time.Second, 5*time.Millisecond)
	require.Equal(t, []bool{true}, cam.triggerCalls())

	m := c.Metrics()
	require.Equal(t, uint64(1), m.Succeeded)
	require.Less(t, m.MaxLatency, 40*time.Millisecond)
}

func TestRequestLatencyStart(t *testing.T) {
	received := time.Unix(100, 0)
	require.Equal(t, received, request{receivedAt: received}.latencyStart())

	due := received.Add(40 * time.Millisecond)
	require.Equal(t, due, request{receivedAt: received, due: due}.latencyStart())

	// метка датчика из прошлого без задержки: отсчёт от приёма
	require.Equal(t, received, request{receivedAt: received, due: received.Add(-time.Second)}.latencyStart())
}

func TestCoordinator_SensorTriggerOutsideExternalMode(t *testing.T) {
	c := NewCoordinator(newFakeCamera())
	require.NoError(t, c.SetMode(entity.ModeTrigger))
	require.False(t, c.OnSensorTrigger(1, 0, time.Now()))
	require.Zero(t, c.Metrics().Received)
}

func TestCoordinator_TriggerTimeoutEmitsEvent(t *testing.T) {
	cam := newFakeCamera()
	cam.block = true

	c := NewCoordinator(cam, WithTriggerTimeout(30*time.Millisecond))
	require.NoError(t, c.SetMode(entity.ModeTrigger))
	frames := collectFrames(c)
	events := make(chan Event, 4)
	c.OnEvent(func(ev Event) { events <- ev })
	runCoordinator(t, c)

	require.True(t, c.ActivateCaptureRequest())
	select {
	case ev := <-events:
		require.Equal(t, EventTimeout, ev.Kind)
		require.Equal(t, SourceSoftware, ev.Source)
		require.True(t, apperrors.Is(ev.Err, apperrors.CodeTimeout))
	case <-time.After(2 * time.Second):
		t.Fatal("no timeout event")
	}
	require.Empty(t, frames)
	require.Equal(t, uint64(1), c.Metrics().Timeouts)
}

func TestCoordinator_ModeChangeCancelsPendingCapture(t *testing.T) {
	cam := newFakeCamera()
	cam.block = true

	c := NewCoordinator(cam, WithTriggerTimeout(10*time.Second))
	require.NoError(t, c.SetMode(entity.ModeTrigger))
	events := make(chan Event, 4)
	c.OnEvent(func(ev Event) { events <- ev })
	runCoordinator(t, c)

	require.True(t, c.ActivateCaptureRequest())
	select {
	case <-cam.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not start")
	}

	start := time.Now()
	require.NoError(t, c.SetMode(entity.ModeOff))
	require.Less(t, time.Since(start), time.Second)
	require.Never(t, func() bool { return len(events) > 0 }, 50*time.Millisecond, 10*time.Millisecond)
	require.Zero(t, c.Metrics().Timeouts)
}

func TestCoordinator_SetModeIsIdempotent(t *testing.T) {
	cam := newFakeCamera()
	c := NewCoordinator(cam)
	require.NoError(t, c.SetMode(entity.ModeTrigger))
	runCoordinator(t, c)
	require.Eventually(t, cam.isOpened, time.Second, 5*time.Millisecond)

	require.NoError(t, c.SetMode(entity.ModeExternal))
	require.NoError(t, c.SetMode(entity.ModeExternal))
	require.Equal(t, []bool{false, true}, cam.triggerCalls())
	require.True(t, c.Config().ExternalTrigger)

	err := c.SetMode(entity.CaptureMode("bogus"))
	require.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
	require.Equal(t, entity.ModeExternal, c.Mode())
}

func TestCoordinator_OpenFailureIsFatal(t *testing.T) {
	cam := newFakeCamera()
	cam.openErr = errors.New("no device")

	err := NewCoordinator(cam).Run(context.Background())
	require.True(t, apperrors.Is(err, apperrors.CodeFatal))
}

func TestCoordinator_Setters(t *testing.T) {
	c := NewCoordinator(newFakeCamera())
	require.True(t, apperrors.Is(c.SetExposure(0), apperrors.CodeInvalidInput))
	require.NoError(t, c.SetExposure(2000))
	require.NoError(t, c.SetAutoExposure(false))
	require.NoError(t, c.SetPixelFormat(entity.PixelBGR))
	require.NoError(t, c.SetCooldown(time.Second))
	require.Error(t, c.SetPendingDelay(-time.Millisecond))

	cfg := c.Config()
	require.Equal(t, 2000, cfg.ExposureUS)
	require.False(t, cfg.AutoExposure)
	require.Equal(t, entity.PixelBGR, cfg.PixelFormat)
	require.Equal(t, time.Second, cfg.Cooldown)
}

func TestReferenceTime(t *testing.T) {
	received := time.UnixMilli(1_700_000_000_500)
	require.Equal(t, received, referenceTime(0, received))
	require.Equal(t, received, referenceTime(12345, received))
	require.Equal(t, time.UnixMilli(1_700_000_000_450), referenceTime(1_700_000_000_450, received))
}
