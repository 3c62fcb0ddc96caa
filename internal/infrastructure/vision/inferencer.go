//go:build gocv
// +build gocv

package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"gocv.io/x/gocv"

	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/logger"
)

// GoCVInferencer выполняет ONNX-модель через модуль dnn OpenCV.
type GoCVInferencer struct {
	mu      sync.Mutex
	net     gocv.Net
	outputs []port.TensorInfo
	names   []string
	cuda    bool
	log     *logger.Logger
}

// NewGoCVInferencer загружает модель. Сначала пробуется CUDA, при ошибке
// первого прохода сеть переключается на CPU.
func NewGoCVInferencer(modelPath string, preferCUDA bool, log *logger.Logger) (*GoCVInferencer, error) {
	if log == nil {
		log = logger.WithComponent("vision")
	}
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load onnx model %s", modelPath)
	}

	inf := &GoCVInferencer{net: net, log: log}
	if preferCUDA {
		inf.cuda = inf.useCUDA()
	}
	if !inf.cuda {
		inf.useCPU()
	}

	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		name := layer.GetName()
		_ = layer.Close()
		inf.names = append(inf.names, name)
		inf.outputs = append(inf.outputs, port.TensorInfo{Name: name})
	}
	log.Info("onnx model loaded", logger.Fields("path", modelPath, "cuda", inf.cuda, "outputs", len(inf.names)))
	return inf, nil
}

// Loader возвращает загрузчик для инструментов.
func Loader(preferCUDA bool, log *logger.Logger) port.InferencerLoader {
	return func(modelPath string) (port.Inferencer, error) {
		return NewGoCVInferencer(modelPath, preferCUDA, log)
	}
}

// Available сообщает, что сборка содержит OpenCV.
func Available() bool { return true }

func (g *GoCVInferencer) useCUDA() bool {
	if err := g.net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
		return false
	}
	if err := g.net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
		g.useCPU()
		return false
	}
	return true
}

func (g *GoCVInferencer) useCPU() {
	_ = g.net.SetPreferableBackend(gocv.NetBackendDefault)
	_ = g.net.SetPreferableTarget(gocv.NetTargetCPU)
}

// InputName у dnn-сети не публикуется; пустое имя означает единственный вход.
func (g *GoCVInferencer) InputName() string { return "" }

func (g *GoCVInferencer) Outputs() []port.TensorInfo {
	return append([]port.TensorInfo(nil), g.outputs...)
}

// Infer выполняет прямой проход.
func (g *GoCVInferencer) Infer(ctx context.Context, input port.Tensor) ([]port.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out, err := g.forward(input)
	if err != nil && g.cuda {
		g.log.Warn("cuda inference failed, falling back to cpu", logger.ErrorFields("infer", err))
		g.cuda = false
		g.useCPU()
		out, err = g.forward(input)
	}
	return out, err
}

func (g *GoCVInferencer) forward(input port.Tensor) (tensors []port.Tensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dnn forward panicked: %v", r)
		}
	}()

	if len(input.Data) == 0 {
		return nil, errors.New("empty input tensor")
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&input.Data[0])), len(input.Data)*4)
	blob, err := gocv.NewMatWithSizesFromBytes(input.Shape, gocv.MatTypeCV32F, raw)
	if err != nil {
		return nil, fmt.Errorf("create input blob: %w", err)
	}
	defer blob.Close()

	g.net.SetInput(blob, "")
	mats := g.net.ForwardLayers(g.names)
	defer func() {
		for i := range mats {
			mats[i].Close()
		}
	}()
	if len(mats) == 0 {
		return nil, errors.New("model produced no outputs")
	}

	tensors = make([]port.Tensor, 0, len(mats))
	for _, m := range mats {
		if m.Empty() {
			return nil, errors.New("model produced an empty output")
		}
		data, err := m.DataPtrFloat32()
		if err != nil {
			return nil, fmt.Errorf("read output: %w", err)
		}
		tensors = append(tensors, port.Tensor{
			Shape: m.Size(),
			Data:  append([]float32(nil), data...),
		})
	}
	return tensors, nil
}

// Close освобождает сеть.
func (g *GoCVInferencer) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.net.Close()
}
