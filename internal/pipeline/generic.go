package pipeline

import (
	"context"

	"vision-inspector/internal/domain/entity"
)

// GenericTool пропускает кадр без изменений. Используется как вид по умолчанию
// при загрузке документа без поля kind.
type GenericTool struct {
	*BaseTool
}

// NewGenericTool создаёт сквозной инструмент.
func NewGenericTool(displayName string) *GenericTool {
	return &GenericTool{BaseTool: NewBaseTool(KindGeneric, displayName, Schema{})}
}

// GenericFactory — фабрика для реестра.
func GenericFactory(cfg map[string]any) (Tool, error) {
	t := NewGenericTool("")
	return t, t.Config().Load(cfg)
}

func (g *GenericTool) Process(_ context.Context, img *entity.Frame, _ Context) (*entity.Frame, Result, error) {
	return img, Result{}, nil
}
