package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		method string
		path   string
		header map[string]string
		want   int
	}{
		{"read passes without key", "secret", http.MethodGet, "/api/stats", nil, http.StatusOK},
		{"post without key", "secret", http.MethodPost, "/api/clear", nil, http.StatusUnauthorized},
		{"post with wrong key", "secret", http.MethodPost, "/api/clear", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"post with header key", "secret", http.MethodPost, "/api/clear", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"post with bearer", "secret", http.MethodPost, "/api/clear", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"get on clear path", "secret", http.MethodGet, "/logs/info/clear", nil, http.StatusUnauthorized},
		{"no key configured", "", http.MethodPost, "/api/clear", map[string]string{"X-API-Key": ""}, http.StatusForbidden},
		{"no key configured read", "", http.MethodGet, "/api/detections", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			APIKeyMiddleware(tt.key)(ok()).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
