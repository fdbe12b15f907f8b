package auth_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bitmuster/resultblend/pkg/auth"
	"github.com/bitmuster/resultblend/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestGate_Authorize(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing key: %v", err)
	}

	tests := []struct {
		name       string
		cfg        config.AuthConfig
		credential string
		present    bool
		want       error
	}{
		{
			name:       "no key configured",
			cfg:        config.AuthConfig{Header: "theapikey"},
			credential: "rocks",
			present:    true,
			want:       auth.ErrMisconfigured,
		},
		{
			name:    "no key configured and header absent",
			cfg:     config.AuthConfig{Header: "theapikey"},
			present: false,
			want:    auth.ErrMisconfigured,
		},
		{
			name:    "header absent",
			cfg:     config.AuthConfig{Header: "theapikey", APIKey: "rocks"},
			present: false,
			want:    auth.ErrMissing,
		},
		{
			name:       "wrong key",
			cfg:        config.AuthConfig{Header: "theapikey", APIKey: "rocks"},
			credential: "utoipa-rocks",
			present:    true,
			want:       auth.ErrInvalid,
		},
		{
			name:       "empty key presented",
			cfg:        config.AuthConfig{Header: "theapikey", APIKey: "rocks"},
			credential: "",
			present:    true,
			want:       auth.ErrInvalid,
		},
		{
			name:       "correct key",
			cfg:        config.AuthConfig{Header: "theapikey", APIKey: "rocks"},
			credential: "rocks",
			present:    true,
		},
		{
			name:       "bcrypt match",
			cfg:        config.AuthConfig{Header: "theapikey", APIKeyBcrypt: string(hash)},
			credential: "hashed-key",
			present:    true,
		},
		{
			name:       "bcrypt mismatch",
			cfg:        config.AuthConfig{Header: "theapikey", APIKeyBcrypt: string(hash)},
			credential: "rocks",
			present:    true,
			want:       auth.ErrInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := auth.NewGate(quietLogger(), tt.cfg)

			err := g.Authorize(tt.credential, tt.present)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAPIKey(t *testing.T) {
	g := auth.NewGate(quietLogger(), config.AuthConfig{Header: "theapikey", APIKey: "rocks"})

	var rejected []error

	handler := auth.RequireAPIKey(g, func(_ *http.Request, err error) {
		rejected = append(rejected, err)
	})(okHandler())

	tests := []struct {
		name   string
		header string
		want   int
		body   string
	}{
		{name: "missing", want: http.StatusUnauthorized, body: "missing api key"},
		{name: "wrong", header: "nope", want: http.StatusUnauthorized, body: "incorrect api key"},
		{name: "right", header: "rocks", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("theapikey", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}

			if tt.body != "" && !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("expected body containing %q, got %q", tt.body, rec.Body.String())
			}
		})
	}

	if len(rejected) != 2 {
		t.Errorf("expected 2 rejections reported, got %d", len(rejected))
	}
}

func TestOptionalAPIKey(t *testing.T) {
	g := auth.NewGate(quietLogger(), config.AuthConfig{Header: "theapikey", APIKey: "rocks"})
	handler := auth.OptionalAPIKey(g, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("anonymous request should pass, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("theapikey", "wrong")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key should be rejected, got %d", rec.Code)
	}
}
