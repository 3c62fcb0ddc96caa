package app

import (
	"context"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
)

type OperatorService struct {
	repo port.OperatorRepository
}

func NewOperatorService(repo port.OperatorRepository) *OperatorService {
	return &OperatorService{repo: repo}
}

func (s *OperatorService) Get(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.repo.Get(ctx, userID, chatID)
}

func (s *OperatorService) SetState(ctx context.Context, userID, chatID int64, state entity.OperatorState) (*entity.Operator, error) {
	op, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	op.SetState(state)
	if err := s.repo.Save(ctx, op); err != nil {
		return nil, err
	}

	return op, nil
}

func (s *OperatorService) Subscribe(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.SetState(ctx, userID, chatID, entity.OperatorSubscribed)
}

func (s *OperatorService) Unsubscribe(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.SetState(ctx, userID, chatID, entity.OperatorIdle)
}

func (s *OperatorService) Mute(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.SetState(ctx, userID, chatID, entity.OperatorMuted)
}

// AlertChats возвращает чаты подписанных операторов.
func (s *OperatorService) AlertChats(ctx context.Context) ([]int64, error) {
	ops, err := s.repo.Subscribed(ctx)
	if err != nil {
		return nil, err
	}
	chats := make([]int64, 0, len(ops))
	for _, op := range ops {
		chats = append(chats, op.ChatID)
	}
	return chats, nil
}
