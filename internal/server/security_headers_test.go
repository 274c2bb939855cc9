package server

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		path     string
		prepare  func(*http.Request)
		wantHSTS string
	}{
		{name: "plain http", path: "/api/v1/timeline"},
		{
			name:     "forwarded https",
			path:     "/api/v1/channels",
			prepare:  func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") },
			wantHSTS: "max-age=31536000; includeSubDomains",
		},
		{
			name:     "direct tls",
			path:     "/api/v1/timeline/ws",
			prepare:  func(r *http.Request) { r.TLS = &tls.ConnectionState{} },
			wantHSTS: "max-age=31536000; includeSubDomains",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.prepare != nil {
				tc.prepare(req)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			want := map[string]string{
				"X-Content-Type-Options":    "nosniff",
				"X-Frame-Options":           "DENY",
				"Referrer-Policy":           "strict-origin-when-cross-origin",
				"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'; base-uri 'none'",
				"Strict-Transport-Security": tc.wantHSTS,
			}
			for header, value := range want {
				if got := rr.Header().Get(header); got != value {
					t.Errorf("%s = %q, want %q", header, got, value)
				}
			}
		})
	}
}
