// Package api is the typed client for the storefront backend's auth
// endpoints. It performs no retries of its own; transparent refresh-and-
// retry belongs to the transport layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
)

// Sentinel errors; the auth store maps them to user-facing messages.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RegisterRequest holds the registration profile. Picture is optional; when
// set, the request goes out as multipart form data.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`

	PictureName string `json:"-"`
	Picture     []byte `json:"-"`
}

// Client calls the storefront backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a backend client. The cookie jar carries the session
// cookie fallback used by CurrentUser.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err == nil {
			httpClient.Jar = jar
		}
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		Logger:     logger.With("component", "api"),
	}
}

// Login exchanges email/password for credentials via POST /auth/login.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthPayload, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/auth/login", "application/json", bytes.NewReader(body), "")
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusBadRequest {
		return nil, ErrInvalidCredentials
	}
	if resp.status >= 300 {
		return nil, fmt.Errorf("login: backend returned %d", resp.status)
	}
	return NormalizeAuthResponse(resp.body)
}

// Register creates an account via POST /auth/register. Success returns the
// created user only; the caller is not authenticated by registration.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthPayload, error) {
	var (
		payload     io.Reader
		contentType string
	)
	if len(req.Picture) > 0 {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		_ = mw.WriteField("email", req.Email)
		_ = mw.WriteField("password", req.Password)
		_ = mw.WriteField("name", req.Name)
		fw, err := mw.CreateFormFile("picture", req.PictureName)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(req.Picture); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		payload = buf
		// Multipart carries its own boundary; forcing JSON here breaks it.
		contentType = mw.FormDataContentType()
	} else {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(body)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, http.MethodPost, "/auth/register", contentType, payload, "")
	if err != nil {
		return nil, err
	}
	if resp.status >= 300 {
		return nil, fmt.Errorf("register: backend returned %d: %s", resp.status, serverMessage(resp.body))
	}
	return NormalizeAuthResponse(resp.body)
}

// CurrentUser validates an existing token via GET /auth/me. The bearer
// header is attached when token is non-empty; the cookie jar provides the
// fallback either way.
func (c *Client) CurrentUser(ctx context.Context, token string) (*AuthPayload, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/me", "", nil, token)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.status >= 300 {
		return nil, fmt.Errorf("current user: backend returned %d", resp.status)
	}
	return NormalizeAuthResponse(resp.body)
}

// Refresh mints a new credential pair via the refresh endpoint, presenting
// the refresh token as the bearer credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthPayload, error) {
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}
	resp, err := c.do(ctx, http.MethodGet, "/auth/refresh", "", nil, refreshToken)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.status >= 300 {
		return nil, fmt.Errorf("refresh: backend returned %d", resp.status)
	}
	return NormalizeAuthResponse(resp.body)
}

// Logout notifies the backend. Best effort: the caller clears local state
// regardless of the outcome.
func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/logout", "application/json", nil, token)
	if err != nil {
		return err
	}
	if resp.status >= 300 {
		return fmt.Errorf("logout: backend returned %d", resp.status)
	}
	return nil
}

type response struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, bearer string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	c.Logger.Debug("http request", "method", method, "path", path)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("http response", "path", path, "status", resp.StatusCode)
	return &response{status: resp.StatusCode, body: respBody}, nil
}

// serverMessage pulls a human-readable message out of an error body, if any.
func serverMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	if m.Message != "" {
		return m.Message
	}
	return m.Error
}
