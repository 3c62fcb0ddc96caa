package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResultItem_RefreshCompletion(t *testing.T) {
	item := &ResultItem{FrameID: 1, SensorIDIn: IntPtr(4)}
	item.RefreshCompletion()
	require.Equal(t, CompletionPending, item.CompletionStatus)

	item.SensorIDOut = IntPtr(9)
	item.RefreshCompletion()
	require.Equal(t, CompletionDone, item.CompletionStatus)
	require.False(t, item.Manual())
}

func TestResultItem_CloneIsDeep(t *testing.T) {
	item := &ResultItem{SensorIDIn: IntPtr(0)}
	c := item.Clone()
	*c.SensorIDIn = 5
	require.Equal(t, 0, *item.SensorIDIn)
}

func TestResultItem_ManualIsFlagNotSensorID(t *testing.T) {
	sensorZero := &ResultItem{SensorIDIn: IntPtr(0)}
	require.False(t, sensorZero.Manual())

	manual := &ResultItem{SensorIDIn: IntPtr(ManualSensorID), ManualTrigger: true}
	require.True(t, manual.Manual())
	cloned := manual.Clone()
	require.True(t, cloned.Manual())
}

func TestParseFrameStatus(t *testing.T) {
	s, err := ParseFrameStatus("ng")
	require.NoError(t, err)
	require.Equal(t, FrameNG, s)

	_, err = ParseFrameStatus("PENDING")
	require.Error(t, err)
}
