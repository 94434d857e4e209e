package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beanscout/beanscout/libs/auth"
)

func TestRequireRole(t *testing.T) {
	h := requireRole(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "moderator")

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-Role", "user")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}

	reqOK := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqOK.Header.Set("X-Role", "moderator")
	rwOK := httptest.NewRecorder()
	h.ServeHTTP(rwOK, reqOK)
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwOK.Code)
	}
}

func TestRequireAuthHS256(t *testing.T) {
	secret := "test-secret"
	claims := auth.Claims{
		Sub:  "user-1",
		Name: "Casey",
		Role: "user",
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(1 * time.Hour).Unix(),
	}
	token, err := auth.SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	h := requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-Id") != claims.Sub {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-Role") != claims.Role {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), secret, nil)

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rwBad.Code)
	}
}

func TestAllowAnonymousReads(t *testing.T) {
	var sawUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUserID = r.Header.Get("X-User-Id")
		w.WriteHeader(http.StatusOK)
	})
	h := allowAnonymousReads(next, "test-secret", nil)

	// Anonymous GET passes through with identity headers stripped.
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-User-Id", "spoofed")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 for anonymous GET, got %d", rw.Code)
	}
	if sawUserID != "" {
		t.Fatalf("expected spoofed X-User-Id to be stripped, got %q", sawUserID)
	}

	// Anonymous POST is rejected.
	reqPost := httptest.NewRequest(http.MethodPost, "http://example.com", nil)
	rwPost := httptest.NewRecorder()
	h.ServeHTTP(rwPost, reqPost)
	if rwPost.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous POST, got %d", rwPost.Code)
	}

	// A GET carrying a valid token is verified and forwarded with identity.
	token, err := auth.SignHS256(auth.Claims{
		Sub:  "user-9",
		Role: "user",
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(1 * time.Hour).Unix(),
	}, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	reqAuthed := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqAuthed.Header.Set("Authorization", "Bearer "+token)
	rwAuthed := httptest.NewRecorder()
	h.ServeHTTP(rwAuthed, reqAuthed)
	if rwAuthed.Code != http.StatusOK {
		t.Fatalf("expected 200 for authenticated GET, got %d", rwAuthed.Code)
	}
	if sawUserID != "user-9" {
		t.Fatalf("expected X-User-Id user-9, got %q", sawUserID)
	}
}
