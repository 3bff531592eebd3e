package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseID(t *testing.T) {
	id, err := parseID(" 42 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
	if _, err := parseID("not-a-number"); err == nil {
		t.Fatal("expected an error for a non-numeric id")
	}
}

func TestBasicAuthMiddlewareRejectsWrongCredentials(t *testing.T) {
	s := &Server{username: "admin", password: "secret"}
	handler := s.basicAuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/bots", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestBasicAuthMiddlewareAcceptsCorrectCredentials(t *testing.T) {
	s := &Server{username: "admin", password: "secret"}
	handler := s.basicAuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/bots", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
