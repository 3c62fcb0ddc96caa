package port

import "context"

// Tensor — плотный float32-тензор в порядке row-major.
type Tensor struct {
	Shape []int
	Data  []float32
}

// TensorInfo описывает вход или выход модели.
type TensorInfo struct {
	Name  string
	Shape []int
}

// Inferencer интерфейс среды исполнения ONNX-модели
type Inferencer interface {
	// InputName возвращает имя единственного входа модели
	InputName() string

	// Outputs возвращает описания выходных тензоров
	Outputs() []TensorInfo

	// Infer выполняет прямой проход на одном входном тензоре
	Infer(ctx context.Context, input Tensor) ([]Tensor, error)

	// Close освобождает ресурсы модели
	Close() error
}

// InferencerLoader загружает модель по пути к файлу.
type InferencerLoader func(modelPath string) (Inferencer, error)
