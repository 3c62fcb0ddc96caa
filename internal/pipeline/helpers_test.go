package pipeline

import (
	"context"
	"errors"
	"sync"

	"vision-inspector/internal/domain/entity"
)

const kindRecord = "RecordTool"

// recorder собирает порядок вызовов инструментов.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.order = append(r.order, name)
	r.mu.Unlock()
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// recordTool пишет своё имя в результат и увеличивает Seq кадра.
type recordTool struct {
	*BaseTool
	rec     *recorder
	fail    bool
	panics  bool
	seenCtx Context
	seenImg *entity.Frame
}

func recordSchema() Schema {
	return Schema{
		"threshold": {Default: 0.5, Validate: InRange(0, 1)},
		"labels":    {Default: []string{}},
		"region":    {Default: []int{}, Validate: IntsLen(4)},
	}
}

func newRecordTool(name string, rec *recorder) *recordTool {
	return &recordTool{BaseTool: NewBaseTool(kindRecord, name, recordSchema()), rec: rec}
}

func (t *recordTool) Process(_ context.Context, img *entity.Frame, pctx Context) (*entity.Frame, Result, error) {
	if t.rec != nil {
		t.rec.add(t.DisplayName())
	}
	t.seenCtx = pctx.Clone()
	t.seenImg = img
	if t.panics {
		panic("boom")
	}
	if t.fail {
		return nil, nil, errors.New("tool exploded")
	}
	out := img.Clone()
	out.Seq++
	return out, Result{"last": t.DisplayName(), "by_" + t.DisplayName(): out.Seq}, nil
}

func testRegistry(rec *recorder) *Registry {
	reg := NewRegistry()
	_ = reg.Register(KindGeneric, GenericFactory)
	_ = reg.Register(kindRecord, func(cfg map[string]any) (Tool, error) {
		t := newRecordTool("", rec)
		return t, t.Config().Load(cfg)
	})
	return reg
}

func testFrame() *entity.Frame {
	return entity.NewFrame(4, 2, entity.PixelRGB)
}
