package storage

import (
	"context"
	"sort"
	"sync"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
)

// MemoryOperatorRepository in-memory хранилище операторов
type MemoryOperatorRepository struct {
	mu        sync.RWMutex
	operators map[int64]*entity.Operator
}

// NewMemoryOperatorRepository создаёт новое in-memory хранилище
func NewMemoryOperatorRepository() *MemoryOperatorRepository {
	return &MemoryOperatorRepository{
		operators: make(map[int64]*entity.Operator),
	}
}

// Get возвращает оператора по ID, создаёт нового если не найден
func (r *MemoryOperatorRepository) Get(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	r.mu.RLock()
	op, exists := r.operators[userID]
	r.mu.RUnlock()

	if exists {
		return op, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// другой вызов мог успеть создать оператора
	if op, exists := r.operators[userID]; exists {
		return op, nil
	}
	op = entity.NewOperator(userID, chatID)
	r.operators[userID] = op
	return op, nil
}

// Save сохраняет состояние оператора
func (r *MemoryOperatorRepository) Save(ctx context.Context, operator *entity.Operator) error {
	r.mu.Lock()
	r.operators[operator.ID] = operator
	r.mu.Unlock()

	return nil
}

// Subscribed возвращает подписанных операторов, упорядоченных по ID
func (r *MemoryOperatorRepository) Subscribed(ctx context.Context) ([]*entity.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*entity.Operator
	for _, op := range r.operators {
		if op.WantsAlerts() {
			result = append(result, op)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Проверка реализации интерфейса
var _ port.OperatorRepository = (*MemoryOperatorRepository)(nil)
