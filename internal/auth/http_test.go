// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction from query and header, rejection, and failure logging

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// httpTestLogHandler captures log records for testing HTTP auth logging.
type httpTestLogHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *httpTestLogHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *httpTestLogHandler) WithAttrs(_ []slog.Attr) slog.Handler         { return h }
func (h *httpTestLogHandler) WithGroup(_ string) slog.Handler              { return h }
func (h *httpTestLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *httpTestLogHandler) attr(key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		var val string
		var found bool
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				val, found = a.Value.String(), true
				return false
			}
			return true
		})
		if found {
			return val, true
		}
	}
	return "", false
}

func captureHandler(got **AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestHTTPAuthMiddleware_TokenSources(t *testing.T) {
	verifier := Chain{NewStaticTokens([]string{"s3cret", "other"})}
	middleware := HTTPAuthMiddleware(verifier, nil, nil)

	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"query parameter", "/send?token=s3cret", "", "s3cret"},
		{"bearer header", "/send", "Bearer s3cret", "s3cret"},
		{"query wins over header", "/send?token=other", "Bearer s3cret", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *AuthContext
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			middleware(captureHandler(&got)).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			if got == nil {
				t.Fatal("expected AuthContext in request context")
			}
			if want := "static:" + Fingerprint(tt.want); got.PrincipalID != want {
				t.Errorf("PrincipalID = %q, want %q", got.PrincipalID, want)
			}
		})
	}
}

func TestHTTPAuthMiddleware_JWT(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	token, _ := verifier.Generate("ops-bot", time.Hour)

	var got *AuthContext
	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(verifier, nil, nil)(captureHandler(&got)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got == nil || got.PrincipalID != "ops-bot" {
		t.Errorf("AuthContext = %+v, want principal ops-bot", got)
	}
}

func TestHTTPAuthMiddleware_Rejects(t *testing.T) {
	verifier := NewStaticTokens([]string{"s3cret"})

	tests := []struct {
		name    string
		target  string
		header  string
		wantErr error
		reason  string
	}{
		{"missing", "/send", "", ErrMissingToken, "token_missing"},
		{"wrong token", "/send?token=nope", "", ErrInvalidToken, "token_verification_failed"},
		{"basic auth scheme", "/send", "Basic czNjcmV0", ErrMissingToken, "token_missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := &httpTestLogHandler{}
			var denied error
			deny := func(w http.ResponseWriter, _ *http.Request, err error) {
				denied = err
				w.WriteHeader(http.StatusUnauthorized)
			}
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			HTTPAuthMiddleware(verifier, deny, slog.New(logs))(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if !errors.Is(denied, tt.wantErr) {
				t.Errorf("deny called with %v, want %v", denied, tt.wantErr)
			}
			if reason, _ := logs.attr("reason"); reason != tt.reason {
				t.Errorf("logged reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestHTTPAuthMiddleware_DoesNotLogToken(t *testing.T) {
	logs := &httpTestLogHandler{}
	middleware := HTTPAuthMiddleware(NewStaticTokens(nil), nil, slog.New(logs))

	req := httptest.NewRequest(http.MethodGet, "/send?token=leaky-value", nil)
	rec := httptest.NewRecorder()
	middleware(http.NotFoundHandler()).ServeHTTP(rec, req)

	fp, ok := logs.attr("fingerprint")
	if !ok {
		t.Fatal("expected fingerprint attribute")
	}
	if fp != Fingerprint("leaky-value") {
		t.Errorf("fingerprint = %q", fp)
	}
}

func TestHTTPAuthMiddleware_NilLoggerAndDeny(t *testing.T) {
	middleware := HTTPAuthMiddleware(NewStaticTokens(nil), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/send", nil)
	rec := httptest.NewRecorder()
	middleware(http.NotFoundHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}
