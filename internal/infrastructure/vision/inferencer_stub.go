//go:build !gocv
// +build !gocv

package vision

import (
	"errors"

	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
)

// ErrNoOpenCV возвращается, если сборка без тега gocv.
var ErrNoOpenCV = errors.New("gocv build tag is not enabled")

// Loader возвращает загрузчик-заглушку (без OpenCV).
func Loader(preferCUDA bool, log *logger.Logger) port.InferencerLoader {
	_ = preferCUDA
	_ = log
	return func(modelPath string) (port.Inferencer, error) {
		_ = modelPath
		return nil, ErrNoOpenCV
	}
}

// Available сообщает, что сборка содержит OpenCV.
func Available() bool { return false }
