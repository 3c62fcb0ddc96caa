package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"vision-inspector/internal/apperrors"
)

// Validator проверяет уже нормализованное значение ключа.
type Validator func(value any) error

// ConfigKey описывает ключ конфигурации: значение по умолчанию задаёт и тип.
type ConfigKey struct {
	Default  any
	Validate Validator
}

// Schema — набор ключей конфигурации инструмента.
type Schema map[string]ConfigKey

// ConfigMap — типизированная конфигурация инструмента с умолчаниями и валидаторами.
// Get никогда не падает на объявленных ключах.
type ConfigMap struct {
	mu       sync.RWMutex
	schema   Schema
	values   map[string]any
	onChange []func(key string)
}

// NewConfigMap создаёт конфигурацию по схеме.
func NewConfigMap(schema Schema) *ConfigMap {
	return &ConfigMap{schema: schema, values: make(map[string]any)}
}

// OnChange регистрирует обработчик, вызываемый после успешного Set.
func (c *ConfigMap) OnChange(fn func(key string)) {
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

// Set нормализует, проверяет и сохраняет значение. Неизвестный ключ — ошибка.
func (c *ConfigMap) Set(key string, value any) error {
	spec, ok := c.schema[key]
	if !ok {
		return apperrors.Configuration("unknown config key %q", key)
	}
	norm, err := normalize(value, spec.Default)
	if err != nil {
		return apperrors.Configuration("config key %q: %v", key, err)
	}
	if spec.Validate != nil {
		if err := spec.Validate(norm); err != nil {
			return apperrors.Configuration("config key %q: %v", key, err)
		}
	}

	c.mu.Lock()
	c.values[key] = norm
	handlers := append([]func(string){}, c.onChange...)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(key)
	}
	return nil
}

// Load применяет значения из документа. Неизвестные ключи игнорируются,
// неверные значения оставляют умолчание и попадают в возвращаемую ошибку.
func (c *ConfigMap) Load(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if _, ok := c.schema[k]; !ok {
			continue
		}
		if err := c.Set(k, m[k]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get возвращает значение или умолчание. Для необъявленного ключа — nil.
func (c *ConfigMap) Get(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key]; ok {
		return v
	}
	if spec, ok := c.schema[key]; ok {
		return spec.Default
	}
	return nil
}

// IsSet сообщает, задано ли значение явно.
func (c *ConfigMap) IsSet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.values[key]
	return ok
}

func (c *ConfigMap) Float(key string) float64 {
	v, _ := c.Get(key).(float64)
	return v
}

func (c *ConfigMap) Int(key string) int {
	v, _ := c.Get(key).(int)
	return v
}

func (c *ConfigMap) Bool(key string) bool {
	v, _ := c.Get(key).(bool)
	return v
}

func (c *ConfigMap) String(key string) string {
	v, _ := c.Get(key).(string)
	return v
}

// Strings возвращает копию списка строк.
func (c *ConfigMap) Strings(key string) []string {
	v, _ := c.Get(key).([]string)
	return append([]string(nil), v...)
}

// Ints возвращает копию списка целых.
func (c *ConfigMap) Ints(key string) []int {
	v, _ := c.Get(key).([]int)
	return append([]int(nil), v...)
}

// ToMap возвращает все объявленные ключи с действующими значениями.
func (c *ConfigMap) ToMap() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.schema))
	for k, spec := range c.schema {
		v, ok := c.values[k]
		if !ok {
			v = spec.Default
		}
		switch tv := v.(type) {
		case []string:
			v = append([]string{}, tv...)
		case []int:
			v = append([]int{}, tv...)
		}
		out[k] = v
	}
	return out
}

// Keys возвращает отсортированные имена ключей схемы.
func (c *ConfigMap) Keys() []string {
	keys := make([]string, 0, len(c.schema))
	for k := range c.schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize приводит значение к типу умолчания: JSON отдаёт числа как float64,
// YAML — как int, массивы — как []any.
func normalize(value, def any) (any, error) {
	switch def.(type) {
	case float64:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case int:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return int(v), nil
		}
	case bool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case string:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case []string:
		switch v := value.(type) {
		case []string:
			return append([]string{}, v...), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected list of strings, got element %T", item)
				}
				out = append(out, s)
			}
			return out, nil
		case nil:
			return []string{}, nil
		}
	case []int:
		switch v := value.(type) {
		case []int:
			return append([]int{}, v...), nil
		case []any:
			out := make([]int, 0, len(v))
			for _, item := range v {
				n, err := normalize(item, 0)
				if err != nil {
					return nil, fmt.Errorf("expected list of integers: %w", err)
				}
				out = append(out, n.(int))
			}
			return out, nil
		case nil:
			return []int{}, nil
		}
	default:
		return value, nil
	}
	return nil, fmt.Errorf("expected %T, got %T", def, value)
}

// InRange — валидатор для float64 в [lo, hi].
func InRange(lo, hi float64) Validator {
	return func(v any) error {
		f := v.(float64)
		if f < lo || f > hi || math.IsNaN(f) {
			return fmt.Errorf("must be in [%g, %g], got %g", lo, hi, f)
		}
		return nil
	}
}

// Positive — валидатор для int > 0.
func Positive() Validator {
	return func(v any) error {
		if n := v.(int); n <= 0 {
			return fmt.Errorf("must be positive, got %d", n)
		}
		return nil
	}
}

// IntBetween — валидатор для int в [lo, hi].
func IntBetween(lo, hi int) Validator {
	return func(v any) error {
		if n := v.(int); n < lo || n > hi {
			return fmt.Errorf("must be in [%d, %d], got %d", lo, hi, n)
		}
		return nil
	}
}

// OneOf — валидатор для строки из набора.
func OneOf(options ...string) Validator {
	return func(v any) error {
		s := v.(string)
		for _, o := range options {
			if s == o {
				return nil
			}
		}
		return fmt.Errorf("must be one of %v, got %q", options, s)
	}
}

// IntsLen — валидатор длины списка целых: пустой или ровно n.
func IntsLen(n int) Validator {
	return func(v any) error {
		l := len(v.([]int))
		if l != 0 && l != n {
			return fmt.Errorf("must be empty or have %d elements, got %d", n, l)
		}
		return nil
	}
}
