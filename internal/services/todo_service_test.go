package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmorrow/taskvault/internal/models"
)

func TestTodoService_Create_Success(t *testing.T) {
	todos := &MockTodoStore{
		CreateFunc: func(ctx context.Context, userID, title, description string) (*models.Todo, error) {
			assert.Equal(t, "Buy milk", title, "title must be trimmed")
			return &models.Todo{ID: "todo1", UserID: userID, Title: title, Description: description}, nil
		},
	}

	svc := NewTodoService(todos, testLogger())
	todo, err := svc.Create(context.Background(), "user123", "  Buy milk  ", "2 liters")

	require.NoError(t, err)
	assert.Equal(t, "todo1", todo.ID)
}

func TestTodoService_Create_EmptyTitle(t *testing.T) {
	svc := NewTodoService(&MockTodoStore{}, testLogger())

	_, err := svc.Create(context.Background(), "user123", "   ", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestTodoService_Get_NotFound(t *testing.T) {
	svc := NewTodoService(&MockTodoStore{}, testLogger())

	_, err := svc.Get(context.Background(), "user123", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTodoService_List_ClampsPaging(t *testing.T) {
	var seen models.TodoFilter
	todos := &MockTodoStore{
		ListFunc: func(ctx context.Context, userID string, filter models.TodoFilter) ([]*models.Todo, int, error) {
			seen = filter
			return []*models.Todo{}, 0, nil
		},
	}

	svc := NewTodoService(todos, testLogger())

	_, err := svc.List(context.Background(), "user123", models.TodoFilter{})
	require.NoError(t, err)
	assert.Equal(t, defaultTodoPageSize, seen.Limit)
	assert.Equal(t, 0, seen.Offset)

	_, err = svc.List(context.Background(), "user123", models.TodoFilter{Limit: 5000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxTodoPageSize, seen.Limit)
	assert.Equal(t, 0, seen.Offset)
}

func TestTodoService_List_ReturnsPageMetadata(t *testing.T) {
	todos := &MockTodoStore{
		ListFunc: func(ctx context.Context, userID string, filter models.TodoFilter) ([]*models.Todo, int, error) {
			return []*models.Todo{{ID: "todo1", UserID: userID}}, 42, nil
		},
	}

	svc := NewTodoService(todos, testLogger())
	page, err := svc.List(context.Background(), "user123", models.TodoFilter{Limit: 10, Offset: 20})

	require.NoError(t, err)
	assert.Len(t, page.Todos, 1)
	assert.Equal(t, 42, page.Total)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 20, page.Offset)
}

func TestTodoService_Update_EmptyTitle(t *testing.T) {
	svc := NewTodoService(&MockTodoStore{}, testLogger())

	empty := "   "
	_, err := svc.Update(context.Background(), "user123", "todo1", &empty, nil, nil)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestTodoService_Update_NotFound(t *testing.T) {
	svc := NewTodoService(&MockTodoStore{}, testLogger())

	completed := true
	_, err := svc.Update(context.Background(), "user123", "missing", nil, nil, &completed)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTodoService_Delete_NotFound(t *testing.T) {
	todos := &MockTodoStore{
		DeleteFunc: func(ctx context.Context, userID, todoID string) error {
			return models.ErrNotFound
		},
	}

	svc := NewTodoService(todos, testLogger())
	err := svc.Delete(context.Background(), "user123", "missing")

	assert.ErrorIs(t, err, models.ErrNotFound)
}
