package api

import (
	"encoding/json"
	"net/http"

	v1 "github.com/jbweber/rcloud/api/v1"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, v1.ErrorResponse{Error: msg})
}
