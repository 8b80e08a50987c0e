package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux(f *serviceFixture) *http.ServeMux {
	h := NewHandler(f.service)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", h.Signup)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("POST /auth/verify-email", h.SendVerification)
	mux.HandleFunc("POST /auth/verify-code", h.VerifyCode)
	mux.Handle("GET /auth/me", Middleware(f.signer, http.HandlerFunc(h.Me)))
	mux.Handle("PUT /auth/username", Middleware(f.signer, http.HandlerFunc(h.UpdateUsername)))
	return mux
}

func doJSON(t *testing.T, mux http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) Session {
	t.Helper()

	var session Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session
}

func TestHandler_SessionFlow(t *testing.T) {
	f := newServiceFixture(t)
	mux := newTestMux(f)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"password123"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	signup := decodeSession(t, rec)
	assert.Equal(t, "a", signup.User.Username)
	assert.Equal(t, "user", signup.User.Role)

	rec = doJSON(t, mux, http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"password123"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/login", `{"identifier":"a","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeSession(t, rec)

	rec = doJSON(t, mux, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"nope-nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())

	rec = doJSON(t, mux, http.MethodGet, "/auth/me", "", login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var me UserView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "a@x.com", me.Email)

	rec = doJSON(t, mux, http.MethodPost, "/auth/refresh", `{"refresh_token":"`+login.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rotated Tokens
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	rec = doJSON(t, mux, http.MethodPost, "/auth/refresh", `{"refresh_token":"`+login.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/logout", `{"refresh_token":"`+rotated.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, mux, http.MethodPost, "/auth/logout", `{"refresh_token":"`+rotated.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandler_NotVerifiedIsForbidden(t *testing.T) {
	f := newServiceFixture(t, WithVerificationRequired(true))
	mux := newTestMux(f)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"password123"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/login", `{"identifier":"a@x.com","password":"password123"}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/verify-code", `{"email":"a@x.com","code":"`+f.notifier.code("a@x.com")+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/login", `{"identifier":"a@x.com","password":"password123"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_UpdateUsername(t *testing.T) {
	f := newServiceFixture(t)
	mux := newTestMux(f)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"password123"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeSession(t, rec)

	rec = doJSON(t, mux, http.MethodPut, "/auth/username", `{"username":"x"}`, session.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPut, "/auth/username", `{"username":"spike_spiegel"}`, session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"spike_spiegel"`)

	rec = doJSON(t, mux, http.MethodPut, "/auth/username", `{"username":"spike"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_RejectsMalformedBodies(t *testing.T) {
	f := newServiceFixture(t)
	mux := newTestMux(f)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup", `{"email":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/login", `{"identifier":"a","password":"x","extra":1}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/refresh", `{"refresh_token":"  "}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/auth/signup", `{"email":"bad","password":"password123"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_VerifyEmailUnknownUser(t *testing.T) {
	f := newServiceFixture(t)
	mux := newTestMux(f)

	rec := doJSON(t, mux, http.MethodPost, "/auth/verify-email", `{"email":"ghost@x.com"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
