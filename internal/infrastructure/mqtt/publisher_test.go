package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/domain/entity"
)

func TestBuildPayload(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	item := entity.ResultItem{
		FrameID:      7,
		SensorIDIn:   entity.IntPtr(1),
		SensorIDOut:  entity.IntPtr(10),
		FrameStatus:  entity.FrameNG,
		TimestampIn:  ts,
		TimestampOut: ts.Add(time.Second),
		Detections:   map[string]any{"detection_count": 2},
	}

	raw, err := BuildPayload(item)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, float64(7), got["frame_id"])
	require.Equal(t, "NG", got["status"])
	require.Equal(t, float64(10), got["sensor_out"])
	require.Equal(t, map[string]any{"detection_count": float64(2)}, got["detections"])
}

func TestTopicFor(t *testing.T) {
	require.Equal(t, "inspector/results/ok", TopicFor("inspector/results/", entity.FrameOK))
	require.Equal(t, "inspector/results/ng", TopicFor("inspector/results", entity.FrameNG))
}

func TestPublishWithoutConnection(t *testing.T) {
	p := NewPublisher(Config{Broker: "localhost:1883", Topic: "t"}, nil)
	require.Equal(t, "mqtt", p.Name())
	require.Error(t, p.Publish(context.Background(), entity.ResultItem{FrameID: 1}))
	require.Equal(t, uint64(1), p.Stats().Errors)
	require.False(t, p.Stats().Connected)
}
