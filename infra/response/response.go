package response

import (
	"encoding/json"
	"net/http"
)

// Response is a standardized API response structure. Status carries the
// machine-readable outcome ("accepted", "duplicate", "rejected", ...)
// webhook senders key on.
type Response struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes a JSON payload with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// Success writes a successful response with data
func Success(w http.ResponseWriter, statusCode int, message string, data any) {
	WriteJSON(w, statusCode, Response{
		Code:    statusCode,
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Status writes a successful response with a machine-readable status field
func Status(w http.ResponseWriter, statusCode int, status, message string, data any) {
	WriteJSON(w, statusCode, Response{
		Code:    statusCode,
		Success: true,
		Status:  status,
		Message: message,
		Data:    data,
	})
}

// Error writes an error response
func Error(w http.ResponseWriter, statusCode int, message string, err error) {
	resp := Response{
		Code:    statusCode,
		Success: false,
		Status:  "rejected",
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	WriteJSON(w, statusCode, resp)
}
