//go:build !gocv
// +build !gocv

package vision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoader_WithoutOpenCV(t *testing.T) {
	require.False(t, Available())
	inf, err := Loader(true, nil)("model.onnx")
	require.ErrorIs(t, err, ErrNoOpenCV)
	require.Nil(t, inf)
}
