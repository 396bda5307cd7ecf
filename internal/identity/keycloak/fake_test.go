package keycloak

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testRealm       = "test"
	testClientID    = "web"
	testAdminID     = "admin-cli"
	testAdminSecret = "admin-secret"
	testAdminToken  = "admin-token"
	testKeyID       = "test-key"
)

type fakeUser struct {
	id       string
	email    string
	password string
	verified bool
}

// fakeKeycloak serves the slice of the Keycloak API the adapter uses.
type fakeKeycloak struct {
	t      *testing.T
	srv    *httptest.Server
	key    *rsa.PrivateKey
	issuer string

	mu           sync.Mutex
	users        map[string]*fakeUser
	refresh      map[string]string
	nextID       int
	tokenSeq     int
	expiresIn    int
	refreshes    int
	logouts      []string
	actionEmails map[string][]string
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &fakeKeycloak{
		t:            t,
		key:          key,
		users:        make(map[string]*fakeUser),
		refresh:      make(map[string]string),
		expiresIn:    300,
		actionEmails: make(map[string][]string),
	}

	realmPath := "/realms/" + testRealm
	adminPath := "/admin/realms/" + testRealm
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+realmPath+"/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("GET "+realmPath+"/protocol/openid-connect/certs", f.certs)
	mux.HandleFunc("POST "+realmPath+"/protocol/openid-connect/token", f.token)
	mux.HandleFunc("POST "+realmPath+"/protocol/openid-connect/logout", f.logout)
	mux.HandleFunc("POST "+adminPath+"/users", f.admin(f.createUser))
	mux.HandleFunc("GET "+adminPath+"/users", f.admin(f.listUsers))
	mux.HandleFunc("PUT "+adminPath+"/users/{id}", f.admin(f.updateUser))
	mux.HandleFunc("DELETE "+adminPath+"/users/{id}", f.admin(f.deleteUser))
	mux.HandleFunc("PUT "+adminPath+"/users/{id}/reset-password", f.admin(f.resetPassword))
	mux.HandleFunc("PUT "+adminPath+"/users/{id}/execute-actions-email", f.admin(f.executeActions))

	f.srv = httptest.NewServer(mux)
	f.issuer = f.srv.URL + realmPath
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeKeycloak) config() testConfig {
	return testConfig{issuer: f.issuer}
}

func (f *fakeKeycloak) addUser(email, password string) *fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(email, password)
}

func (f *fakeKeycloak) addUserLocked(email, password string) *fakeUser {
	f.nextID++
	u := &fakeUser{id: fmt.Sprintf("user-%d", f.nextID), email: email, password: password}
	f.users[u.id] = u
	return u
}

func (f *fakeKeycloak) user(id string) *fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (f *fakeKeycloak) revokeAllRefreshTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = make(map[string]string)
}

func (f *fakeKeycloak) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeKeycloak) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                f.issuer,
		"authorization_endpoint":                f.issuer + "/protocol/openid-connect/auth",
		"token_endpoint":                        f.issuer + "/protocol/openid-connect/token",
		"jwks_uri":                              f.issuer + "/protocol/openid-connect/certs",
		"userinfo_endpoint":                     f.issuer + "/protocol/openid-connect/userinfo",
		"end_session_endpoint":                  f.issuer + "/protocol/openid-connect/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeKeycloak) certs(w http.ResponseWriter, _ *http.Request) {
	b64 := base64.RawURLEncoding.EncodeToString
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"alg": "RS256",
			"use": "sig",
			"n":   b64(f.key.N.Bytes()),
			"e":   b64(big.NewInt(int64(f.key.E)).Bytes()),
		}},
	})
}

func (f *fakeKeycloak) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID, clientSecret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		if clientID != testAdminID || clientSecret != testAdminSecret {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized_client"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": testAdminToken, "token_type": "Bearer", "expires_in": 300})
	case "password":
		for _, u := range f.users {
			if strings.EqualFold(u.email, r.PostForm.Get("username")) && u.password == r.PostForm.Get("password") {
				f.issueLocked(w, u)
				return
			}
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant", "error_description": "Invalid user credentials"})
	case "refresh_token":
		old := r.PostForm.Get("refresh_token")
		userID, ok := f.refresh[old]
		u := f.users[userID]
		if !ok || u == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Session not active"})
			return
		}
		delete(f.refresh, old)
		f.refreshes++
		f.issueLocked(w, u)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (f *fakeKeycloak) issueLocked(w http.ResponseWriter, u *fakeUser) {
	now := time.Now()
	idToken := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            f.issuer,
		"aud":            testClientID,
		"sub":            u.id,
		"email":          u.email,
		"email_verified": u.verified,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Duration(f.expiresIn) * time.Second).Unix(),
	})
	idToken.Header["kid"] = testKeyID
	signed, err := idToken.SignedString(f.key)
	if err != nil {
		f.t.Errorf("sign id token: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	f.tokenSeq++
	refreshToken := fmt.Sprintf("refresh-%d", f.tokenSeq)
	f.refresh[refreshToken] = u.id
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "access-" + u.id,
		"token_type":    "Bearer",
		"expires_in":    f.expiresIn,
		"refresh_token": refreshToken,
		"id_token":      signed,
	})
}

func (f *fakeKeycloak) logout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	token := r.PostForm.Get("refresh_token")
	if _, ok := f.refresh[token]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	delete(f.refresh, token)
	f.logouts = append(f.logouts, token)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeKeycloak) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testAdminToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		next(w, r)
	}
}

func (f *fakeKeycloak) createUser(w http.ResponseWriter, r *http.Request) {
	var rep userRep
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !strings.Contains(rep.Email, "@") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorMessage": "invalidEmailMessage"})
		return
	}
	for _, u := range f.users {
		if strings.EqualFold(u.email, rep.Email) {
			writeJSON(w, http.StatusConflict, map[string]string{"errorMessage": "User exists with same email"})
			return
		}
	}
	var password string
	if len(rep.Credentials) > 0 {
		password = rep.Credentials[0].Value
	}
	u := f.addUserLocked(rep.Email, password)
	w.Header().Set("Location", f.srv.URL+"/admin/realms/"+testRealm+"/users/"+u.id)
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeKeycloak) listUsers(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	out := []userRep{}
	for _, u := range f.users {
		if strings.EqualFold(u.email, email) {
			out = append(out, userRep{ID: u.id, Username: u.email, Email: u.email})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakeKeycloak) updateUser(w http.ResponseWriter, r *http.Request) {
	u, ok := f.users[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	var rep userRep
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, other := range f.users {
		if other.id != u.id && strings.EqualFold(other.email, rep.Email) {
			writeJSON(w, http.StatusConflict, map[string]string{"errorMessage": "User exists with same email"})
			return
		}
	}
	if rep.Email != "" {
		u.email = rep.Email
	}
	if rep.EmailVerified != nil {
		u.verified = *rep.EmailVerified
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeKeycloak) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := f.users[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	delete(f.users, id)
	for token, userID := range f.refresh {
		if userID == id {
			delete(f.refresh, token)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeKeycloak) resetPassword(w http.ResponseWriter, r *http.Request) {
	u, ok := f.users[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	var cred credentialRep
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	u.password = cred.Value
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeKeycloak) executeActions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := f.users[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	if r.URL.Query().Get("client_id") != testClientID {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var actions []string
	if err := json.NewDecoder(r.Body).Decode(&actions); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.actionEmails[id] = append(f.actionEmails[id], actions...)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testConfig struct {
	issuer string
}

func (c testConfig) GetKeycloakIssuer() string { return c.issuer }
func (testConfig) GetKeycloakClientID() string { return testClientID }
func (testConfig) GetKeycloakClientSecret() string { return "" }
func (testConfig) GetKeycloakAdminClientID() string { return testAdminID }
func (testConfig) GetKeycloakAdminClientSecret() string { return testAdminSecret }
