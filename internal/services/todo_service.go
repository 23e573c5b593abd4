package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/lmorrow/taskvault/internal/models"
)

const (
	defaultTodoPageSize = 20
	maxTodoPageSize     = 100
)

// TodoStore defines the interface for todo persistence
type TodoStore interface {
	Create(ctx context.Context, userID, title, description string) (*models.Todo, error)
	GetByID(ctx context.Context, userID, todoID string) (*models.Todo, error)
	List(ctx context.Context, userID string, filter models.TodoFilter) ([]*models.Todo, int, error)
	Update(ctx context.Context, userID, todoID string, title, description *string, completed *bool) (*models.Todo, error)
	Delete(ctx context.Context, userID, todoID string) error
}

// TodoPage is one page of a todo listing plus the unpaged total
type TodoPage struct {
	Todos  []*models.Todo
	Total  int
	Limit  int
	Offset int
}

// TodoService handles todo business logic. Every operation is scoped to the
// calling account; a todo owned by someone else behaves as if it does not exist.
type TodoService struct {
	todos  TodoStore
	logger *slog.Logger
}

func NewTodoService(todos TodoStore, logger *slog.Logger) *TodoService {
	return &TodoService{todos: todos, logger: logger}
}

func (s *TodoService) Create(ctx context.Context, userID, title, description string) (*models.Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.ErrBadRequest
	}

	todo, err := s.todos.Create(ctx, userID, title, strings.TrimSpace(description))
	if err != nil {
		s.logger.Error("failed to create todo", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return todo, nil
}

func (s *TodoService) Get(ctx context.Context, userID, todoID string) (*models.Todo, error) {
	todo, err := s.todos.GetByID(ctx, userID, todoID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get todo", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return todo, nil
}

func (s *TodoService) List(ctx context.Context, userID string, filter models.TodoFilter) (*TodoPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultTodoPageSize
	}
	if filter.Limit > maxTodoPageSize {
		filter.Limit = maxTodoPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Search = strings.TrimSpace(filter.Search)

	todos, total, err := s.todos.List(ctx, userID, filter)
	if err != nil {
		s.logger.Error("failed to list todos", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &TodoPage{Todos: todos, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *TodoService) Update(ctx context.Context, userID, todoID string, title, description *string, completed *bool) (*models.Todo, error) {
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			return nil, models.ErrBadRequest
		}
		title = &trimmed
	}

	todo, err := s.todos.Update(ctx, userID, todoID, title, description, completed)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update todo", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return todo, nil
}

func (s *TodoService) Delete(ctx context.Context, userID, todoID string) error {
	if err := s.todos.Delete(ctx, userID, todoID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete todo", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
