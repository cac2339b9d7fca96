package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/prodscope/prodscope/internal/domain"
)

// Response is the standard API envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the API error payload.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

// JSONError writes an error response from an application error,
// picking the HTTP status from the error's taxonomy.
func JSONError(w http.ResponseWriter, err error) {
	appErr := domain.AsAppError(err)

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error: &Error{
			Code:    appErr.Code,
			Message: appErr.Message,
		},
	})
}

// BadRequest writes a validation error response.
func BadRequest(w http.ResponseWriter, message string) {
	JSONError(w, domain.NewValidationError(message, nil))
}
