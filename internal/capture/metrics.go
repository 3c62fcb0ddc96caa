package capture

import (
	"sync"
	"time"
)

// TriggerMetrics — счётчики триггеров и задержка от запланированного захвата
// до кадра. Для внешнего триггера отсчёт идёт от t_ref + pending_delay.
type TriggerMetrics struct {
	Received        uint64        `json:"received"`
	Succeeded       uint64        `json:"succeeded"`
	DroppedCooldown uint64        `json:"dropped_cooldown"`
	Timeouts        uint64        `json:"timeouts"`
	Failed          uint64        `json:"failed"`
	MinLatency      time.Duration `json:"min_latency"`
	MeanLatency     time.Duration `json:"mean_latency"`
	MaxLatency      time.Duration `json:"max_latency"`
}

type metricsRecorder struct {
	mu    sync.Mutex
	m     TriggerMetrics
	total time.Duration
}

func (r *metricsRecorder) received() {
	r.mu.Lock()
	r.m.Received++
	r.mu.Unlock()
}

func (r *metricsRecorder) dropped() {
	r.mu.Lock()
	r.m.DroppedCooldown++
	r.mu.Unlock()
}

func (r *metricsRecorder) timeout() {
	r.mu.Lock()
	r.m.Timeouts++
	r.mu.Unlock()
}

func (r *metricsRecorder) failed() {
	r.mu.Lock()
	r.m.Failed++
	r.mu.Unlock()
}

func (r *metricsRecorder) succeeded(latency time.Duration) {
	if latency < 0 {
		latency = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.Succeeded++
	r.total += latency
	if r.m.Succeeded == 1 || latency < r.m.MinLatency {
		r.m.MinLatency = latency
	}
	if latency > r.m.MaxLatency {
		r.m.MaxLatency = latency
	}
	r.m.MeanLatency = r.total / time.Duration(r.m.Succeeded)
}

func (r *metricsRecorder) snapshot() TriggerMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m
}
