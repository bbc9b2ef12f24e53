package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveAuth(keys []string, path, header string) *httptest.ResponseRecorder {
	handler := BearerAuthMiddleware(keys)(okHandler())
	req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"no keys passes through", nil, "/v1/queries/rescore", "", http.StatusOK},
		{"empty string keys pass through", []string{"", ""}, "/v1/queries/rescore", "", http.StatusOK},
		{"missing header", []string{"secret"}, "/v1/queries/rescore", "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "/v1/queries/rescore", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"wrong key", []string{"secret"}, "/v1/queries/rescore", "Bearer wrong-key", http.StatusUnauthorized},
		{"valid key", []string{"secret"}, "/v1/queries/rescore", "Bearer secret", http.StatusOK},
		{"second key", []string{"key1", "key2"}, "/v1/features/extract", "Bearer key2", http.StatusOK},
		{"health exempt", []string{"secret"}, "/health", "", http.StatusOK},
		{"metrics exempt", []string{"secret"}, "/metrics", "", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveAuth(tc.keys, tc.path, tc.header)
			if rr.Code != tc.want {
				t.Errorf("got %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestAuthMiddleware_ErrorBody(t *testing.T) {
	rr := serveAuth([]string{"secret"}, "/v1/queries/rescore", "")

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != CodeUnauthorized {
		t.Errorf("error code: got %s, want %s", errResp.Code, CodeUnauthorized)
	}
	if errResp.Message != "missing authorization header" {
		t.Errorf("message = %q", errResp.Message)
	}
}
