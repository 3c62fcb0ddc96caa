package tcp

import "sync"

// Stats — счётчики канала.
type Stats struct {
	Connected    bool   `json:"connected"`
	Messages     uint64 `json:"messages"`
	ParseErrors  uint64 `json:"parse_errors"`
	UTF8Errors   uint64 `json:"utf8_errors"`
	Flushes      uint64 `json:"flushes"`
	BytesRead    uint64 `json:"bytes_read"`
	BytesWritten uint64 `json:"bytes_written"`
	CommandsSent uint64 `json:"commands_sent"`
}

type statsRecorder struct {
	mu sync.Mutex
	s  Stats
}

func (r *statsRecorder) update(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.s)
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}
