package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeProvider struct {
	t        *testing.T
	requests []string
	fail     map[string]string // action -> provider error code
}

func (p *fakeProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := strings.TrimPrefix(r.URL.Path, "/v1/")
		p.requests = append(p.requests, action)
		if r.URL.Query().Get("key") != "test-key" {
			p.t.Errorf("missing api key on %s", action)
		}
		if code, ok := p.fail[action]; ok {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":{"message":%q}}`, code)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"localId": "uid-1",
			"idToken": "token-1",
		})
	}
}

func newTestClient(t *testing.T, fail map[string]string) (*Client, *fakeProvider) {
	t.Helper()
	p := &fakeProvider{t: t, fail: fail}
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key"), p
}

func TestSignUpReturnsSession(t *testing.T) {
	c, _ := newTestClient(t, nil)

	sess, err := c.SignUp(context.Background(), "a@b.c", "secret1")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if sess.UserID != "uid-1" || sess.Token != "token-1" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestSignInMapsProviderCodes(t *testing.T) {
	cases := []struct {
		provider string
		want     Code
	}{
		{"INVALID_PASSWORD", CodeWrongPassword},
		{"INVALID_LOGIN_CREDENTIALS", CodeWrongPassword},
		{"EMAIL_NOT_FOUND", CodeUserNotFound},
		{"USER_DISABLED", CodeUserDisabled},
		{"INVALID_EMAIL", CodeInvalidEmail},
		{"SOMETHING_NEW", CodeGeneric},
	}
	for _, tc := range cases {
		c, _ := newTestClient(t, map[string]string{"accounts:signInWithPassword": tc.provider})
		_, err := c.SignIn(context.Background(), "a@b.c", "pw")

		var idErr *Error
		if !errors.As(err, &idErr) {
			t.Fatalf("%s: error type %T", tc.provider, err)
		}
		if idErr.Code != tc.want {
			t.Fatalf("%s: code = %s, want %s", tc.provider, idErr.Code, tc.want)
		}
		if idErr.Message() == "" {
			t.Fatalf("%s: empty user-facing message", tc.provider)
		}
	}
}

func TestSignUpMapsWeakPasswordWithDetail(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"accounts:signUp": "WEAK_PASSWORD : Password should be at least 6 characters",
	})
	_, err := c.SignUp(context.Background(), "a@b.c", "x")

	var idErr *Error
	if !errors.As(err, &idErr) || idErr.Code != CodeWeakPassword {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteSendsToken(t *testing.T) {
	c, p := newTestClient(t, nil)
	if err := c.Delete(context.Background(), "token-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(p.requests) != 1 || p.requests[0] != "accounts:delete" {
		t.Fatalf("requests = %v", p.requests)
	}
}

func TestUpdateEmailKeepsTokenWhenProviderDoesNotRotate(t *testing.T) {
	p := &fakeProvider{t: t}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"localId": "uid-1"})
	}))
	t.Cleanup(srv.Close)
	_ = p

	c := NewClient(srv.URL, "test-key")
	sess, err := c.UpdateEmail(context.Background(), Session{UserID: "uid-1", Token: "old"}, "new@b.c")
	if err != nil {
		t.Fatalf("update email: %v", err)
	}
	if sess.Token != "old" {
		t.Fatalf("token = %q, want previous token kept", sess.Token)
	}
}

func TestUnreachableProviderIsGeneric(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "test-key")
	_, err := c.SignIn(context.Background(), "a@b.c", "pw")

	var idErr *Error
	if !errors.As(err, &idErr) || idErr.Code != CodeGeneric {
		t.Fatalf("err = %v", err)
	}
}
