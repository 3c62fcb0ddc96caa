// Package vision подключает среду исполнения ONNX-моделей.
//
// С тегом сборки gocv модели выполняются через gocv (OpenCV dnn) с попыткой CUDA
// и откатом на CPU. Без тега Loader возвращает ErrNoOpenCV, а инструменты,
// которым нужна модель, переходят в состояние initialization_failed.
package vision
