package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{
			name:       "wildcard echoes origin",
			allowed:    []string{"*"},
			origin:     "https://host.example.com",
			method:     http.MethodPost,
			wantOrigin: "https://host.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "explicit origin allowed",
			allowed:    []string{"https://host.example.com"},
			origin:     "https://host.example.com",
			method:     http.MethodGet,
			wantOrigin: "https://host.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unlisted origin gets no headers",
			allowed:    []string{"https://host.example.com"},
			origin:     "https://evil.example.com",
			method:     http.MethodGet,
			wantOrigin: "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight short-circuits",
			allowed:    []string{"*"},
			origin:     "https://host.example.com",
			method:     http.MethodOptions,
			wantOrigin: "https://host.example.com",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handled = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/send_message", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.method == http.MethodOptions && handled {
				t.Error("preflight reached the next handler")
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
				t.Errorf("credentials header present: %q", got)
			}
		})
	}
}
