package xhttp

import (
	"github.com/valyala/fasthttp"
)

// HTTP status codes used across the package, re-exported so call sites
// stay on the xhttp alias.
const (
	StatusOK                  = fasthttp.StatusOK
	StatusBadRequest          = fasthttp.StatusBadRequest
	StatusNotFound            = fasthttp.StatusNotFound
	StatusRequestTimeout      = fasthttp.StatusRequestTimeout
	StatusInternalServerError = fasthttp.StatusInternalServerError
)

// StatusText returns the canonical reason phrase for a status code.
func StatusText(statusCode int) string {
	return fasthttp.StatusMessage(statusCode)
}
