package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/models"
	"github.com/lmorrow/taskvault/internal/services"
	pkghttp "github.com/lmorrow/taskvault/pkg/http"
)

// TodoServiceInterface defines the interface for todo business logic
type TodoServiceInterface interface {
	Create(ctx context.Context, userID, title, description string) (*models.Todo, error)
	Get(ctx context.Context, userID, todoID string) (*models.Todo, error)
	List(ctx context.Context, userID string, filter models.TodoFilter) (*services.TodoPage, error)
	Update(ctx context.Context, userID, todoID string, title, description *string, completed *bool) (*models.Todo, error)
	Delete(ctx context.Context, userID, todoID string) error
}

// TodoHandler handles todo HTTP requests
type TodoHandler struct {
	service TodoServiceInterface
}

// NewTodoHandler creates a new TodoHandler
func NewTodoHandler(service TodoServiceInterface) *TodoHandler {
	return &TodoHandler{service: service}
}

// Request/Response DTOs

// CreateTodoRequest represents the request body for creating a todo
type CreateTodoRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateTodoRequest represents the request body for a partial todo update.
// Absent fields are left unchanged.
type UpdateTodoRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Completed   *bool   `json:"completed"`
}

// ListTodosResponse represents a page of todos
type ListTodosResponse struct {
	Todos  []*models.Todo `json:"todos"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// Create handles todo creation
// @Summary Create a todo
// @Security BearerAuth
// @Accept json
// @Param request body CreateTodoRequest true "Create todo request"
// @Produce json
// @Success 201 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Router /todos [post]
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req CreateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	todo, err := h.service.Create(r.Context(), claims.UserID, req.Title, req.Description)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Title cannot be empty")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteCreated(w, "Todo created", todo)
}

// Get retrieves a single todo owned by the authenticated account
// @Summary Get a todo
// @Security BearerAuth
// @Param id path string true "Todo ID"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Failure 404 {object} pkghttp.Envelope
// @Router /todos/{id} [get]
func (h *TodoHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	todo, err := h.service.Get(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Todo not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteOK(w, "Todo retrieved", todo)
}

// List returns a filtered, paginated page of the account's todos
// @Summary List todos
// @Security BearerAuth
// @Param completed query bool false "Filter by completion state"
// @Param search query string false "Case-insensitive title search"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Page offset"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Router /todos [get]
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	filter := models.TodoFilter{
		Search: r.URL.Query().Get("search"),
	}
	if raw := r.URL.Query().Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid completed filter")
			return
		}
		filter.Completed = &completed
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid offset")
			return
		}
		filter.Offset = offset
	}

	page, err := h.service.List(r.Context(), claims.UserID, filter)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteOK(w, "Todos retrieved", ListTodosResponse{
		Todos:  page.Todos,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// Update applies a partial update to a todo
// @Summary Update a todo
// @Security BearerAuth
// @Param id path string true "Todo ID"
// @Accept json
// @Param request body UpdateTodoRequest true "Update todo request"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Failure 404 {object} pkghttp.Envelope
// @Router /todos/{id} [patch]
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req UpdateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if req.Title == nil && req.Description == nil && req.Completed == nil {
		pkghttp.WriteBadRequest(w, "No fields to update")
		return
	}

	todo, err := h.service.Update(r.Context(), claims.UserID, chi.URLParam(r, "id"), req.Title, req.Description, req.Completed)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Title cannot be empty")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Todo not found")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteOK(w, "Todo updated", todo)
}

// Delete removes a todo owned by the authenticated account
// @Summary Delete a todo
// @Security BearerAuth
// @Param id path string true "Todo ID"
// @Produce json
// @Success 204
// @Failure 401 {object} pkghttp.Envelope
// @Failure 404 {object} pkghttp.Envelope
// @Router /todos/{id} [delete]
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	err := h.service.Delete(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Todo not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
