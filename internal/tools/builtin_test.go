package tools

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/logger"
	"vision-inspector/internal/pipeline"
)

func TestNewRegistry_Builtins(t *testing.T) {
	reg, err := NewRegistry(nil, logger.Nop())
	require.NoError(t, err)
	require.Equal(t, []string{
		pipeline.KindClassification,
		pipeline.KindDetection,
		pipeline.KindGeneric,
		pipeline.KindSaveImage,
	}, reg.Kinds())

	tool, err := reg.Create(pipeline.KindDetection, map[string]any{"imgsz": 320})
	require.NoError(t, err)
	require.Equal(t, 320, tool.Config().Int("imgsz"))

	_, err = reg.Create("OCRTool", nil)
	require.True(t, apperrors.Is(err, apperrors.CodeUnknownKind))

	require.Error(t, RegisterBuiltins(reg, nil, logger.Nop()))
}
