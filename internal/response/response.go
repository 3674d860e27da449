package response

import (
	"encoding/json"
	"net/http"

	"amsportal/internal/models"
)

// APIResponse is the envelope for every JSON view.
type APIResponse struct {
	Section   string        `json:"section,omitempty"`
	Data      interface{}   `json:"data"`
	Flash     *models.Flash `json:"flash,omitempty"`
	CSRFToken string        `json:"csrf_token,omitempty"`
	Username  string        `json:"username,omitempty"`
}

// JSON writes a successful API response with the given data.
func JSON(w http.ResponseWriter, data interface{}) {
	Write(w, http.StatusOK, APIResponse{Data: data})
}

// Write encodes resp with the given status code.
func Write(w http.ResponseWriter, code int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
