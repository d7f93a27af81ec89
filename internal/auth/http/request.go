package http

import (
	"encoding/json"
	"net/http"
	"strings"
)

const maxJSONBody = 64 << 10

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}

// baseURL returns configured when set. Configuration requires it outside
// dev; the fallback to the request's own host exists for local runs only.
func baseURL(configured string, r *http.Request) string {
	if configured != "" {
		return strings.TrimSuffix(configured, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
