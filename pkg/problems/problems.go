package problems

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

var (
	// ErrMissingHost is returned when a request carries no Host header.
	ErrMissingHost = errors.New("host not found")
)

// Body is the JSON error envelope returned by every gateway endpoint.
type Body struct {
	Error string `json:"error"`
}

// Write renders {"error": msg} with the given status. Only short messages go
// out; internal error details stay in the logs.
func Write(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, Body{Error: msg})
}

func MissingHost(w http.ResponseWriter, r *http.Request) {
	Write(w, r, http.StatusBadRequest, "Host not found")
}

func TenantNotFound(w http.ResponseWriter, r *http.Request) {
	Write(w, r, http.StatusNotFound, "Tenant not found")
}

func Internal(w http.ResponseWriter, r *http.Request) {
	Write(w, r, http.StatusInternalServerError, "Internal error")
}
