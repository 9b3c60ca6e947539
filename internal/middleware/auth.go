package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyMiddleware chroni endpointy modyfikujace stan (POST, DELETE, /clear).
// Klucz przychodzi w naglowku X-API-Key albo jako "Authorization: Bearer <klucz>".
// Bez skonfigurowanego klucza takie zadania sa odrzucane.
func APIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r) {
				next.ServeHTTP(w, r)
				return
			}

			if apiKey == "" {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			if subtle.ConstantTimeCompare([]byte(requestKey(r)), []byte(apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return strings.HasSuffix(r.URL.Path, "/clear")
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
