package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoginSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["email"] != "a@b.com" || body["password"] != "pw" {
			t.Errorf("credentials not forwarded: %v", body)
		}
		w.Write([]byte(`{"data":{"user":{"id":"u1","email":"a@b.com"},"accessToken":"tok","refreshToken":"ref"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, testLogger())
	p, err := c.Login(context.Background(), "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if p.User.ID != "u1" || p.Token != "tok" || p.RefreshToken != "ref" {
		t.Errorf("payload: %+v", p)
	}
}

func TestLoginRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusBadRequest} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := NewClient(srv.URL, nil, testLogger())
		_, err := c.Login(context.Background(), "a@b.com", "wrong")
		srv.Close()
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("status %d: got %v, want ErrInvalidCredentials", status, err)
		}
	}
}

func TestRegisterMultipartWithPicture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "multipart/form-data; boundary=") {
			t.Errorf("Content-Type = %q, want multipart with boundary", ct)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("email"); got != "a@b.com" {
			t.Errorf("email field = %q", got)
		}
		f, hdr, err := r.FormFile("picture")
		if err != nil {
			t.Fatalf("picture part: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "me.png" {
			t.Errorf("picture filename = %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "png-bytes" {
			t.Errorf("picture content = %q", data)
		}
		w.Write([]byte(`{"user":{"id":"u1","email":"a@b.com"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, testLogger())
	p, err := c.Register(context.Background(), RegisterRequest{
		Email:       "a@b.com",
		Password:    "pw",
		Name:        "Ada",
		PictureName: "me.png",
		Picture:     []byte("png-bytes"),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.User.ID != "u1" {
		t.Errorf("payload: %+v", p)
	}
}

func TestRegisterJSONWithoutPicture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		w.Write([]byte(`{"user":{"id":"u1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, testLogger())
	if _, err := c.Register(context.Background(), RegisterRequest{Email: "a@b.com", Password: "pw"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestCurrentUserBearerAndCookieFallback(t *testing.T) {
	var sawBearer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawBearer = r.Header.Get("Authorization")
		if r.URL.Path != "/auth/me" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"user":{"id":"u1"},"token":"tok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, testLogger())

	if _, err := c.CurrentUser(context.Background(), "tok"); err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if sawBearer != "Bearer tok" {
		t.Errorf("Authorization = %q, want bearer header", sawBearer)
	}

	// No token: the request still goes out, relying on the cookie jar.
	if _, err := c.CurrentUser(context.Background(), ""); err != nil {
		t.Fatalf("CurrentUser without token: %v", err)
	}
	if sawBearer != "" {
		t.Errorf("Authorization = %q, want empty", sawBearer)
	}
}

func TestCurrentUserUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, testLogger())
	if _, err := c.CurrentUser(context.Background(), "stale"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestRefreshPresentsRefreshTokenAsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/refresh" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ref" {
			t.Errorf("Authorization = %q, want refresh token", got)
		}
		w.Write([]byte(`{"token":"new-tok","refreshToken":"new-ref","user":{"id":"u1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, testLogger())
	p, err := c.Refresh(context.Background(), "ref")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if p.Token != "new-tok" || p.RefreshToken != "new-ref" {
		t.Errorf("payload: %+v", p)
	}
}

func TestRefreshRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := NewClient(srv.URL, nil, testLogger())
		_, err := c.Refresh(context.Background(), "stale-ref")
		srv.Close()
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("status %d: got %v, want ErrUnauthorized", status, err)
		}
	}

	c := NewClient("http://unused", nil, testLogger())
	if _, err := c.Refresh(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("empty refresh token: got %v, want ErrUnauthorized", err)
	}
}
