package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 15 * time.Second

// Client calls the identity provider's account endpoints. All requests are
// bounded by the underlying HTTP client's timeout so a hung provider call
// cannot hang a coordinator indefinitely.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewClient creates a Client for the provider at baseURL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: requestTimeout},
	}
}

type sessionResponse struct {
	LocalID string `json:"localId"`
	IDToken string `json:"idToken"`
}

// SignUp creates a new account and returns its session.
func (c *Client) SignUp(ctx context.Context, email, password string) (Session, error) {
	body := map[string]any{"email": email, "password": password, "returnSecureToken": true}
	var resp sessionResponse
	if err := c.post(ctx, "accounts:signUp", body, &resp); err != nil {
		return Session{}, err
	}
	return Session{UserID: resp.LocalID, Token: resp.IDToken}, nil
}

// SignIn authenticates an existing account.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	body := map[string]any{"email": email, "password": password, "returnSecureToken": true}
	var resp sessionResponse
	if err := c.post(ctx, "accounts:signInWithPassword", body, &resp); err != nil {
		return Session{}, err
	}
	return Session{UserID: resp.LocalID, Token: resp.IDToken}, nil
}

// Delete removes the account the token belongs to.
func (c *Client) Delete(ctx context.Context, token string) error {
	return c.post(ctx, "accounts:delete", map[string]any{"idToken": token}, nil)
}

// UpdateEmail changes the account's email. The provider may rotate the
// session token; when it does, the returned session carries the new one.
func (c *Client) UpdateEmail(ctx context.Context, sess Session, newEmail string) (Session, error) {
	body := map[string]any{"idToken": sess.Token, "email": newEmail, "returnSecureToken": true}
	var resp sessionResponse
	if err := c.post(ctx, "accounts:update", body, &resp); err != nil {
		return Session{}, err
	}
	return rotated(sess, resp), nil
}

// UpdatePassword changes the account's password.
func (c *Client) UpdatePassword(ctx context.Context, sess Session, newPassword string) (Session, error) {
	body := map[string]any{"idToken": sess.Token, "password": newPassword, "returnSecureToken": true}
	var resp sessionResponse
	if err := c.post(ctx, "accounts:update", body, &resp); err != nil {
		return Session{}, err
	}
	return rotated(sess, resp), nil
}

func rotated(prev Session, resp sessionResponse) Session {
	next := Session{UserID: prev.UserID, Token: prev.Token}
	if resp.LocalID != "" {
		next.UserID = resp.LocalID
	}
	if resp.IDToken != "" {
		next.Token = resp.IDToken
	}
	return next
}

func (c *Client) post(ctx context.Context, action string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v1/%s?key=%s", c.base, action, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Code: CodeGeneric, Raw: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Code: CodeGeneric, Raw: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return providerError(data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Code: CodeGeneric, Raw: "malformed provider response"}
	}
	return nil
}

func providerError(data []byte) error {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Message == "" {
		return &Error{Code: CodeGeneric, Raw: "unrecognized provider error"}
	}
	return &Error{Code: codeFromProvider(body.Error.Message), Raw: body.Error.Message}
}
