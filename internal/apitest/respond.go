package apitest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/jobsync/pkg/models"
	"github.com/garnizeh/jobsync/pkg/repository"
)

type errorResponse struct {
	Timestamp time.Time               `json:"timestamp"`
	Status    int                     `json:"status"`
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	Path      string                  `json:"path"`
	Details   []repository.FieldError `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details []repository.FieldError) {
	if details == nil {
		details = []repository.FieldError{}
	}
	writeJSON(w, status, errorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     code,
		Message:   message,
		Path:      r.URL.Path,
		Details:   details,
	})
}

// writeValidation reports a failed input check the way the service does.
func writeValidation(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		writeError(w, r, http.StatusBadRequest, "validation_error", "Validation failed",
			[]repository.FieldError{{Field: verr.Field, Message: verr.Message}})
		return
	}
	writeError(w, r, http.StatusBadRequest, "invalid_parameter", err.Error(), nil)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON request", nil)
		return false
	}
	return true
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def, minV, maxV int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minV || (maxV > 0 && n > maxV) {
		writeError(w, r, http.StatusBadRequest, "invalid_parameter", "Invalid value for "+name, nil)
		return 0, false
	}
	return n, true
}
