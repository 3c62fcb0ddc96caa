package pipeline

import (
	"sort"
	"sync"

	"vision-inspector/internal/apperrors"
)

// Factory создаёт инструмент из карты конфигурации. Если инструмент создан,
// а часть значений отвергнута, возвращаются и инструмент, и ошибка.
type Factory func(cfg map[string]any) (Tool, error)

// Registry сопоставляет имя вида инструмента с фабрикой.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register добавляет фабрику. Повторная регистрация вида — ошибка.
func (r *Registry) Register(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return apperrors.Configuration("tool kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// Has сообщает, зарегистрирован ли вид.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Create строит инструмент. Неизвестный вид — ошибка UNKNOWN_KIND.
func (r *Registry) Create(kind string, cfg map[string]any) (Tool, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.CodeUnknownKind, "unknown tool kind %q", kind).WithDetail("kind", kind)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return f(cfg)
}

// Kinds возвращает отсортированные имена зарегистрированных видов.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
