package models

import (
	"time"
)

type Todo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TodoFilter narrows and pages a todo listing. Zero values mean "no filter".
type TodoFilter struct {
	Completed *bool
	Search    string // matched against title, case-insensitive
	Limit     int
	Offset    int
}
