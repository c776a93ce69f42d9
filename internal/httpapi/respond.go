package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"leadline.io/internal/audit"
	"leadline.io/internal/crm"
	"leadline.io/internal/obs"
)

// pagination is the list envelope companion: total over the filtered set,
// not just the returned page.
type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

func newPagination(total, page, limit int) pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, map[string]any{"data": data})
}

func writeList(w http.ResponseWriter, data any, p pagination) {
	writeJSON(w, http.StatusOK, map[string]any{"data": data, "pagination": p})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"error": map[string]string{"kind": kind, "message": msg},
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleDomainError maps the sentinel taxonomy onto status codes. Anything
// outside the taxonomy is an internal error: logged, never leaked.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, crm.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, crm.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, crm.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "operation not permitted")
	case errors.Is(err, crm.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, crm.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	default:
		obs.LogError("httpapi", err, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "validation_failed", "method not allowed")
}
