package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/pkg/id"
)

// writeJSONError writes the error envelope with a fresh correlation id.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.Response[struct{}]{
		Data:             []struct{}{},
		ResponseMessages: []domain.ResponseMessage{{Type: domain.MessageError, ID: id.New(), Text: msg}},
	})
}
