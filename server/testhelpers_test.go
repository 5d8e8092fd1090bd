package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/GoCodeAlone/bookstore/bootstrap"
	"github.com/GoCodeAlone/bookstore/config"
	"github.com/GoCodeAlone/bookstore/scheduler"
)

// newTestServer builds a server over a finished ten-step run with admin/secret
// credentials.
func newTestServer(t *testing.T) (*Server, *scheduler.Scheduler) {
	t.Helper()
	cfg := config.Default()
	cfg.Steps = 10
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg.Auth.AdminUser = "admin"
	cfg.Auth.AdminPass = string(hash)
	cfg.Auth.JWTSecret = "test-secret-key-1234567890"

	sim, err := bootstrap.Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sched, err := sim.Scheduler(nil, nil)
	if err != nil {
		t.Fatalf("Scheduler: %v", err)
	}
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := New(cfg, sched, "test", nil)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, sched
}

func login(t *testing.T, h http.Handler, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(loginRequest{Username: user, Password: pass})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func mustLogin(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := login(t, h, "admin", "secret")
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}
	var resp loginResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}
