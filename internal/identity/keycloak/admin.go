package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"account_gateway/internal/identity"
)

const maxErrorBody = 4 << 10

type credentialRep struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRep struct {
	ID            string          `json:"id,omitempty"`
	Username      string          `json:"username,omitempty"`
	Email         string          `json:"email,omitempty"`
	EmailVerified *bool           `json:"emailVerified,omitempty"`
	Enabled       *bool           `json:"enabled,omitempty"`
	Credentials   []credentialRep `json:"credentials,omitempty"`
}

// AdminError is a non-success response from the admin API that maps to no
// identity sentinel.
type AdminError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *AdminError) Error() string {
	return fmt.Sprintf("keycloak admin %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func (r *Realm) createUser(ctx context.Context, email, password string) error {
	enabled, verified := true, false
	return r.adminDo(ctx, http.MethodPost, "/users", userRep{
		Username:      email,
		Email:         email,
		Enabled:       &enabled,
		EmailVerified: &verified,
		Credentials:   []credentialRep{{Type: "password", Value: password}},
	}, nil)
}

// findUserByEmail returns the id of the user with exactly this email, or "".
func (r *Realm) findUserByEmail(ctx context.Context, email string) (string, error) {
	var users []userRep
	q := url.Values{"email": {email}, "exact": {"true"}}
	if err := r.adminDo(ctx, http.MethodGet, "/users?"+q.Encode(), nil, &users); err != nil {
		return "", err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return u.ID, nil
		}
	}
	return "", nil
}

func (r *Realm) sendUpdatePasswordEmail(ctx context.Context, userID string) error {
	q := url.Values{"client_id": {r.clientID}}
	path := "/users/" + url.PathEscape(userID) + "/execute-actions-email?" + q.Encode()
	return r.adminDo(ctx, http.MethodPut, path, []string{"UPDATE_PASSWORD"}, nil)
}

func (r *Realm) setEmail(ctx context.Context, userID, email string) error {
	verified := false
	return r.adminDo(ctx, http.MethodPut, "/users/"+url.PathEscape(userID), userRep{
		Username:      email,
		Email:         email,
		EmailVerified: &verified,
	}, nil)
}

func (r *Realm) setPassword(ctx context.Context, userID, password string) error {
	return r.adminDo(ctx, http.MethodPut, "/users/"+url.PathEscape(userID)+"/reset-password",
		credentialRep{Type: "password", Value: password}, nil)
}

func (r *Realm) deleteUser(ctx context.Context, userID string) error {
	return r.adminDo(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID), nil, nil)
}

func (r *Realm) adminDo(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode admin request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.adminBase+path, reader)
	if err != nil {
		return fmt.Errorf("build admin request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.admin.Do(req)
	if err != nil {
		return fmt.Errorf("keycloak admin %s %s: %w", method, stripQuery(path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return adminStatusError(method, stripQuery(path), resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode admin response: %w", err)
	}
	return nil
}

func adminStatusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error        string `json:"error"`
		ErrorMessage string `json:"errorMessage"`
	}
	_ = json.Unmarshal(raw, &payload)
	msg := payload.ErrorMessage
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", identity.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", identity.ErrEmailInUse, msg)
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "password") {
			return fmt.Errorf("%w: %s", identity.ErrWeakPassword, msg)
		}
		if strings.Contains(lower, "email") {
			return fmt.Errorf("%w: %s", identity.ErrInvalidEmail, msg)
		}
	}
	return &AdminError{Method: method, Path: path, Status: resp.StatusCode, Message: msg}
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
