// Package tools регистрирует встроенные виды инструментов.
package tools

import (
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
	"vision-inspector/internal/pipeline"
	"vision-inspector/internal/tools/classification"
	"vision-inspector/internal/tools/detection"
	"vision-inspector/internal/tools/imagesave"
)

// RegisterBuiltins добавляет в реестр детектор, классификатор, сохранение кадров
// и сквозной инструмент. loader нужен моделям ONNX.
func RegisterBuiltins(reg *pipeline.Registry, loader port.InferencerLoader, log *logger.Logger) error {
	if log == nil {
		log = logger.Global()
	}
	factories := map[string]pipeline.Factory{
		pipeline.KindDetection:      detection.Factory(loader, log.WithComponent("detection")),
		pipeline.KindClassification: classification.Factory(loader, log.WithComponent("classification")),
		pipeline.KindSaveImage:      imagesave.Factory(log.WithComponent("imagesave")),
		pipeline.KindGeneric:        pipeline.GenericFactory,
	}
	for kind, f := range factories {
		if err := reg.Register(kind, f); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry создаёт реестр со встроенными видами.
func NewRegistry(loader port.InferencerLoader, log *logger.Logger) (*pipeline.Registry, error) {
	reg := pipeline.NewRegistry()
	if err := RegisterBuiltins(reg, loader, log); err != nil {
		return nil, err
	}
	return reg, nil
}
