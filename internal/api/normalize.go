package api

import (
	"encoding/json"
	"errors"

	"storefront-session-agent/internal/auth/domain"
)

// ErrMalformedResponse is returned when a backend payload cannot be reduced
// to the canonical {user, token, refreshToken} shape.
var ErrMalformedResponse = errors.New("malformed auth response")

// AuthPayload is the canonical shape of every authentication response.
type AuthPayload struct {
	User         *domain.User
	Token        string
	RefreshToken string
}

// rawAuth covers every field spelling the backend is known to use. The
// legacy API nests payloads under "data" or "results" and flips between
// "token" and "accessToken"; all shape tolerance lives here and nowhere
// else.
type rawAuth struct {
	Data    *rawAuth `json:"data"`
	Results *rawAuth `json:"results"`

	User         *domain.User `json:"user"`
	Token        string       `json:"token"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// NormalizeAuthResponse reduces a raw response body to the canonical auth
// payload. A wrapper level ("data" or "results") is unwrapped at most once;
// a payload with neither a user nor a token is malformed.
func NormalizeAuthResponse(body []byte) (*AuthPayload, error) {
	var raw rawAuth
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, ErrMalformedResponse
	}

	inner := &raw
	if raw.Data != nil {
		inner = raw.Data
	} else if raw.Results != nil {
		inner = raw.Results
	}

	token := inner.Token
	if token == "" {
		token = inner.AccessToken
	}

	if inner.User == nil && token == "" {
		return nil, ErrMalformedResponse
	}
	if inner.User != nil && !inner.User.Valid() {
		return nil, ErrMalformedResponse
	}

	return &AuthPayload{
		User:         inner.User,
		Token:        token,
		RefreshToken: inner.RefreshToken,
	}, nil
}
