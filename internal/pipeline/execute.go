package pipeline

import (
	"context"
	"fmt"
	"time"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/logger"
)

type toolOutput struct {
	image  *entity.Frame
	result Result
}

// Run выполняет граф на одном кадре. Инструменты запускаются в топологическом
// порядке; список и рёбра не меняются до конца выполнения.
//
// Агрегированный результат содержит накопленный контекст, результаты каждого
// инструмента под ключом tool_results и итоговый status. При ошибке инструмента
// возвращается исходный кадр, результат с ключами error и failed_tool и ошибка PIPELINE.
func (j *Job) Run(ctx context.Context, img *entity.Frame, initial Context) (*entity.Frame, Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	started := time.Now()
	j.lastRunTime = started
	j.status = JobRunning

	accumulated := initial.Clone()
	toolResults := make(map[int]Result, len(j.tools))
	outputs := make(map[int]toolOutput, len(j.tools))

	fail := func(name string, err error) (*entity.Frame, Result, error) {
		j.status = JobFailed
		j.executionTime = time.Since(started)
		res := Result(accumulated.Clone())
		res[KeyError] = err.Error()
		res[KeyStatus] = string(JobFailed)
		res[KeyToolResults] = toolResults
		if name != "" {
			res[KeyFailedTool] = name
		}
		j.log.Error("job execution failed", logger.Fields(
			logger.FieldJob, j.name,
			logger.FieldTool, name,
			logger.FieldError, err.Error(),
		))
		return img, res, err
	}

	var ready []int
	if len(j.startIDs) > 0 {
		ready = append(ready, j.startIDs...)
	} else {
		for _, t := range j.tools {
			ready = append(ready, t.ID())
		}
	}
	queued := make(map[int]bool, len(j.tools))
	for _, id := range ready {
		queued[id] = true
	}
	processed := make(map[int]bool, len(j.tools))

	lastImage := img
	finalImage := img
	stalled := 0

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		if processed[id] {
			continue
		}
		t := j.toolLocked(id)
		if t == nil {
			continue
		}

		if !j.inputsDoneLocked(id, processed) {
			ready = append(ready, id)
			stalled++
			if stalled >= len(ready) {
				return fail("", apperrors.New(apperrors.CodeCycleDetected,
					"no forward progress: %d of %d tools processed", len(processed), len(j.tools)))
			}
			continue
		}
		stalled = 0

		if err := ctx.Err(); err != nil {
			return fail(t.DisplayName(), apperrors.Pipeline(t.DisplayName(), err))
		}

		currentImage := lastImage
		var currentCtx Context
		if src, ok := j.primary[id]; ok {
			if out, ok := outputs[src]; ok {
				currentImage = out.image
				currentCtx = accumulated.Clone()
				currentCtx.Merge(out.result)
			}
		}
		if currentCtx == nil {
			currentCtx = accumulated.Clone()
		}

		resImage, res, err := processSafe(ctx, t, currentImage, currentCtx)
		if err != nil {
			return fail(t.DisplayName(), apperrors.Pipeline(t.DisplayName(), err))
		}
		if resImage == nil {
			resImage = currentImage
		}
		if res == nil {
			res = Result{}
		}

		outputs[id] = toolOutput{image: resImage, result: res}
		toolResults[id] = res
		accumulated.Merge(res)
		processed[id] = true
		lastImage = resImage
		if len(j.outputs[id]) == 0 {
			finalImage = resImage
		}

		for _, out := range j.outputs[id].sorted() {
			if !processed[out] && !queued[out] {
				queued[out] = true
				ready = append(ready, out)
			}
		}
	}

	if len(processed) != len(j.tools) {
		return fail("", apperrors.New(apperrors.CodeCycleDetected,
			"unreachable tools: %d of %d tools processed", len(processed), len(j.tools)))
	}

	j.status = JobCompleted
	j.executionTime = time.Since(started)

	res := Result(accumulated)
	res[KeyToolResults] = toolResults
	res[KeyStatus] = string(JobCompleted)
	return finalImage, res, nil
}

func (j *Job) inputsDoneLocked(id int, processed map[int]bool) bool {
	for in := range j.inputs[id] {
		if !processed[in] {
			return false
		}
	}
	return true
}

// processSafe превращает панику инструмента в ошибку.
func processSafe(ctx context.Context, t Tool, img *entity.Frame, pctx Context) (out *entity.Frame, res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", t.Kind(), r)
		}
	}()
	return t.Process(ctx, img, pctx)
}
