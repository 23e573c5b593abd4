package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmorrow/taskvault/internal/database"
	"github.com/lmorrow/taskvault/internal/models"
)

const todoColumns = `id, user_id, title, description, completed, created_at, updated_at`

// TodoRepository handles todo persistence. Every query is scoped by user_id
// so ownership is enforced at the storage layer, not just in handlers.
type TodoRepository struct {
	pool *pgxpool.Pool
}

func NewTodoRepository(db *database.DB) *TodoRepository {
	return &TodoRepository{pool: db.Pool}
}

func scanTodoRow(scanner rowScanner) (*models.Todo, error) {
	var todo models.Todo
	err := scanner.Scan(
		&todo.ID, &todo.UserID, &todo.Title, &todo.Description,
		&todo.Completed, &todo.CreatedAt, &todo.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &todo, nil
}

func (r *TodoRepository) Create(ctx context.Context, userID, title, description string) (*models.Todo, error) {
	query := fmt.Sprintf(`
		INSERT INTO todos (id, user_id, title, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING %s`, todoColumns)

	return scanTodoRow(r.pool.QueryRow(ctx, query, uuid.New().String(), userID, title, description))
}

func (r *TodoRepository) GetByID(ctx context.Context, userID, todoID string) (*models.Todo, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM todos
		WHERE id = $1 AND user_id = $2`, todoColumns)

	return scanTodoRow(r.pool.QueryRow(ctx, query, todoID, userID))
}

// List returns a page of the user's todos plus the unpaged total for the
// same filter, newest first.
func (r *TodoRepository) List(ctx context.Context, userID string, filter models.TodoFilter) ([]*models.Todo, int, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}

	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		conditions = append(conditions, fmt.Sprintf("completed = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM todos WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, database.MapPostgresError(err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM todos
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, todoColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, database.MapPostgresError(err)
	}
	defer rows.Close()

	todos := make([]*models.Todo, 0)
	for rows.Next() {
		todo, err := scanTodoRow(rows)
		if err != nil {
			return nil, 0, err
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, database.MapPostgresError(err)
	}
	return todos, total, nil
}

// Update applies partial changes. Nil fields are left untouched.
func (r *TodoRepository) Update(ctx context.Context, userID, todoID string, title, description *string, completed *bool) (*models.Todo, error) {
	query := fmt.Sprintf(`
		UPDATE todos
		SET title = COALESCE($1, title),
		    description = COALESCE($2, description),
		    completed = COALESCE($3, completed),
		    updated_at = NOW()
		WHERE id = $4 AND user_id = $5
		RETURNING %s`, todoColumns)

	return scanTodoRow(r.pool.QueryRow(ctx, query, title, description, completed, todoID, userID))
}

func (r *TodoRepository) Delete(ctx context.Context, userID, todoID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, todoID, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteAllForUser removes every todo owned by the account; used when an
// account is hard-deleted.
func (r *TodoRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM todos WHERE user_id = $1`, userID)
	return database.MapPostgresError(err)
}
