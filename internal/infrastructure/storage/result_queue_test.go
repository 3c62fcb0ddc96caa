package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/domain/entity"
)

type row struct {
	frameID    int64
	in         *int
	out        *int
	completion entity.CompletionStatus
}

func rows(q *MemoryResultQueue) []row {
	var out []row
	for _, it := range q.GetTableSnapshot() {
		out = append(out, row{frameID: it.FrameID, in: it.SensorIDIn, out: it.SensorIDOut, completion: it.CompletionStatus})
	}
	return out
}

func TestResultQueue_FIFOCorrelation(t *testing.T) {
	q := NewMemoryResultQueue(10)
	require.Equal(t, int64(1), q.AddSensorInEvent(1))
	require.Equal(t, int64(2), q.AddSensorInEvent(2))
	require.Equal(t, int64(3), q.AddSensorInEvent(3))
	require.True(t, q.AddSensorOutEvent(10))
	require.True(t, q.AddSensorOutEvent(11))

	p := entity.IntPtr
	require.Equal(t, []row{
		{frameID: 1, in: p(1), out: p(10), completion: entity.CompletionDone},
		{frameID: 2, in: p(2), out: p(11), completion: entity.CompletionDone},
		{frameID: 3, in: p(3), completion: entity.CompletionPending},
	}, rows(q))
}

func TestResultQueue_SensorZeroTakesPartInFIFO(t *testing.T) {
	q := NewMemoryResultQueue(10)
	first := q.AddSensorInEvent(0)
	second := q.AddSensorInEvent(1)
	require.True(t, q.AddSensorOutEvent(10))

	it, ok := q.Get(first)
	require.True(t, ok)
	require.False(t, it.Manual())
	require.NotNil(t, it.SensorIDOut)
	require.Equal(t, 10, *it.SensorIDOut)
	require.Equal(t, entity.CompletionDone, it.CompletionStatus)

	it, _ = q.Get(second)
	require.Nil(t, it.SensorIDOut)
	require.Equal(t, entity.CompletionPending, it.CompletionStatus)
}

func TestResultQueue_SensorOutWithoutPendingRow(t *testing.T) {
	q := NewMemoryResultQueue(10)
	require.False(t, q.AddSensorOutEvent(5))
	require.Zero(t, q.Len())

	q.AddSensorInEvent(1)
	require.True(t, q.AddSensorOutEvent(5))
	require.False(t, q.AddSensorOutEvent(6))
	require.Equal(t, 1, q.Len())
}

func TestResultQueue_SizeCapDropsHead(t *testing.T) {
	q := NewMemoryResultQueue(3)
	for i := 1; i <= 7; i++ {
		q.AddSensorInEvent(i)
	}
	snap := q.GetTableSnapshot()
	require.Len(t, snap, 3)
	require.Equal(t, int64(7-3+1), snap[0].FrameID)
	for i := 1; i < len(snap); i++ {
		require.Greater(t, snap[i].FrameID, snap[i-1].FrameID)
	}
}

func TestResultQueue_CompletionFollowsSensors(t *testing.T) {
	q := NewMemoryResultQueue(10)
	id := q.AddSensorInEvent(1)

	require.True(t, q.SetFrameStatus(id, entity.FrameNG))
	it, ok := q.Get(id)
	require.True(t, ok)
	require.Equal(t, entity.CompletionPending, it.CompletionStatus)
	require.Equal(t, entity.FrameNG, it.FrameStatus)

	require.True(t, q.AddSensorOutEvent(2))
	it, _ = q.Get(id)
	require.Equal(t, entity.CompletionDone, it.CompletionStatus)

	require.False(t, q.SetFrameStatus(id, entity.FramePending))
	require.False(t, q.SetFrameStatus(99, entity.FrameOK))
	require.False(t, q.SetFrameDetectionData(99, "x"))
	require.True(t, q.SetFrameDetectionData(id, map[string]any{"detection_count": 1}))
}

func TestResultQueue_WaitingFrame(t *testing.T) {
	q := NewMemoryResultQueue(10)
	_, ok := q.AttachJobResultToWaitingFrame(entity.FrameOK, nil)
	require.False(t, ok)

	q.AddSensorInEvent(1)
	id2 := q.AddSensorInEvent(2)
	waiting, ok := q.WaitingFrame()
	require.True(t, ok)
	require.Equal(t, id2, waiting)

	got, ok := q.AttachJobResultToWaitingFrame(entity.FrameNG, "payload")
	require.True(t, ok)
	require.Equal(t, id2, got)
	_, ok = q.WaitingFrame()
	require.False(t, ok)

	it, _ := q.Get(id2)
	require.Equal(t, entity.FrameNG, it.FrameStatus)
	require.Equal(t, "payload", it.Detections)

	_, ok = q.AttachJobResultToWaitingFrame(entity.FrameOK, nil)
	require.False(t, ok)
}

func TestResultQueue_DeletedWaitingFrame(t *testing.T) {
	q := NewMemoryResultQueue(10)
	id := q.AddSensorInEvent(1)
	require.True(t, q.Delete(id))
	_, ok := q.AttachJobResultToWaitingFrame(entity.FrameOK, nil)
	require.False(t, ok)
}

func TestResultQueue_ManualRowsAreDisjoint(t *testing.T) {
	q := NewMemoryResultQueue(10)
	manual := q.CreateFrameWithResult(entity.FrameOK, nil)
	require.Equal(t, int64(1), manual)
	require.Zero(t, q.CreateFrameWithResult(entity.FramePending, nil))

	id := q.AddSensorInEvent(4)
	require.True(t, q.AddSensorOutEvent(8))

	m, _ := q.Get(manual)
	require.True(t, m.Manual())
	require.Nil(t, m.SensorIDOut)
	require.Equal(t, entity.CompletionPending, m.CompletionStatus)

	it, _ := q.Get(id)
	require.Equal(t, 8, *it.SensorIDOut)
}

func TestResultQueue_LastDone(t *testing.T) {
	q := NewMemoryResultQueue(10)
	_, ok := q.GetLastDone()
	require.False(t, ok)

	q.AddSensorInEvent(1)
	q.AddSensorInEvent(2)
	q.AddSensorInEvent(3)
	q.AddSensorOutEvent(1)
	q.AddSensorOutEvent(2)

	last, ok := q.GetLastDone()
	require.True(t, ok)
	require.Equal(t, int64(2), last.FrameID)
}

func TestResultQueue_DeleteClearAndCounter(t *testing.T) {
	q := NewMemoryResultQueue(10)
	for i := 1; i <= 4; i++ {
		q.AddSensorInEvent(i)
	}
	require.True(t, q.Delete(2))
	require.False(t, q.Delete(2))
	require.True(t, q.DeleteRow(0))
	require.False(t, q.DeleteRow(5))
	require.Equal(t, 2, q.Len())

	require.Equal(t, 2, q.Clear())
	require.Equal(t, int64(5), q.AddSensorInEvent(1))

	q.ResetCounter()
	require.Equal(t, int64(6), q.AddSensorInEvent(1))

	q.Clear()
	q.ResetCounter()
	require.Equal(t, int64(1), q.AddSensorInEvent(1))
}

func TestResultQueue_SnapshotIsCopy(t *testing.T) {
	q := NewMemoryResultQueue(10)
	q.AddSensorInEvent(1)
	snap := q.GetTableSnapshot()
	*snap[0].SensorIDIn = 42
	it, _ := q.Get(1)
	require.Equal(t, 1, *it.SensorIDIn)
}

func TestResultQueue_OnUpdate(t *testing.T) {
	q := NewMemoryResultQueue(10)
	var mu sync.Mutex
	var seen []entity.CompletionStatus
	q.OnUpdate(func(it entity.ResultItem) {
		mu.Lock()
		seen = append(seen, it.CompletionStatus)
		mu.Unlock()
	})

	id := q.AddSensorInEvent(1)
	q.SetFrameStatus(id, entity.FrameOK)
	q.AddSensorOutEvent(2)

	require.Equal(t, []entity.CompletionStatus{
		entity.CompletionPending,
		entity.CompletionPending,
		entity.CompletionDone,
	}, seen)
}
