package http

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform response body for every endpoint. Internal detail
// never leaks through it outside development mode.
type Envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data,omitempty"`
	Errors     interface{} `json:"errors,omitempty"`
}

// WriteSuccess writes a success envelope with optional payload
func WriteSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	writeEnvelope(w, Envelope{
		Success:    true,
		Message:    message,
		StatusCode: statusCode,
		Data:       data,
	})
}

// WriteOK writes a 200 success envelope
func WriteOK(w http.ResponseWriter, message string, data interface{}) {
	WriteSuccess(w, http.StatusOK, message, data)
}

// WriteCreated writes a 201 success envelope
func WriteCreated(w http.ResponseWriter, message string, data interface{}) {
	WriteSuccess(w, http.StatusCreated, message, data)
}

// WriteError writes a failure envelope with the given status code
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteErrorWithDetails(w, statusCode, message, nil)
}

// WriteErrorWithDetails writes a failure envelope carrying field-level errors
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message string, errs interface{}) {
	writeEnvelope(w, Envelope{
		Success:    false,
		Message:    message,
		StatusCode: statusCode,
		Errors:     errs,
	})
}

func writeEnvelope(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)

	// Log encoding errors but don't expose them to the client
	_ = json.NewEncoder(w).Encode(env)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
