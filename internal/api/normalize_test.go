package api

import (
	"errors"
	"testing"
)

func TestNormalizeAuthResponseShapes(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		user  string
		token string
	}{
		{
			name:  "flat",
			body:  `{"user":{"id":"u1","email":"a@b.com"},"token":"tok"}`,
			user:  "u1",
			token: "tok",
		},
		{
			name:  "data wrapper",
			body:  `{"data":{"user":{"id":"u1"},"token":"tok"}}`,
			user:  "u1",
			token: "tok",
		},
		{
			name:  "results wrapper",
			body:  `{"results":{"user":{"id":"u1"},"token":"tok"}}`,
			user:  "u1",
			token: "tok",
		},
		{
			name:  "accessToken spelling",
			body:  `{"user":{"id":"u1"},"accessToken":"tok"}`,
			user:  "u1",
			token: "tok",
		},
		{
			name:  "token wins over accessToken",
			body:  `{"user":{"id":"u1"},"token":"tok","accessToken":"other"}`,
			user:  "u1",
			token: "tok",
		},
		{
			name:  "token only",
			body:  `{"token":"tok"}`,
			token: "tok",
		},
		{
			name: "user only",
			body: `{"user":{"id":"u1"}}`,
			user: "u1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NormalizeAuthResponse([]byte(tc.body))
			if err != nil {
				t.Fatalf("NormalizeAuthResponse: %v", err)
			}
			if tc.user == "" {
				if p.User != nil {
					t.Errorf("User = %+v, want nil", p.User)
				}
			} else if p.User == nil || p.User.ID != tc.user {
				t.Errorf("User = %+v, want id %q", p.User, tc.user)
			}
			if p.Token != tc.token {
				t.Errorf("Token = %q, want %q", p.Token, tc.token)
			}
		})
	}
}

func TestNormalizeAuthResponseMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "<html>error</html>"},
		{"empty object", "{}"},
		{"user without id", `{"user":{"email":"a@b.com"},"token":"tok"}`},
		{"empty data wrapper", `{"data":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NormalizeAuthResponse([]byte(tc.body)); !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("got %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestNormalizeAuthResponseRefreshToken(t *testing.T) {
	p, err := NormalizeAuthResponse([]byte(`{"data":{"user":{"id":"u1"},"accessToken":"tok","refreshToken":"ref"}}`))
	if err != nil {
		t.Fatalf("NormalizeAuthResponse: %v", err)
	}
	if p.RefreshToken != "ref" {
		t.Errorf("RefreshToken = %q, want ref", p.RefreshToken)
	}
}
