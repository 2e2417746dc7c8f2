package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/models"
)

func registerRequestBody(t *testing.T, fields map[string]string, withAvatar bool) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	if withAvatar {
		part, err := writer.CreateFormFile("avatar", "me.PNG")
		require.NoError(t, err)
		_, err = part.Write([]byte("png-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func (e *testEnv) register(t *testing.T, fields map[string]string, withAvatar bool) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := registerRequestBody(t, fields, withAvatar)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	fields := map[string]string{
		"fullName": "Jane Doe",
		"username": "  JaneDoe ",
		"email":    "Jane@Example.com",
		"password": "supersafe",
	}

	rec := env.register(t, fields, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	result := decodeData[auth.LoginResult](t, rec)
	assert.Equal(t, "janedoe", result.Account.Username)
	assert.Equal(t, "jane@example.com", result.Account.Email)
	assert.Contains(t, result.Account.AvatarURL, "https://cdn.test/avatars/")
	assert.Contains(t, result.Account.AvatarURL, ".png")
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotContains(t, rec.Body.String(), "password")

	stored, err := env.accounts.FindByIdentifier(context.Background(), "janedoe")
	require.NoError(t, err)
	require.NoError(t, auth.NewBcryptHasher(0).Compare(stored.PasswordHash, "supersafe"))
	current, ok := env.accounts.RefreshTokenOf(stored.ID)
	require.True(t, ok)
	assert.Equal(t, result.Tokens.RefreshToken, current)

	access := cookieNamed(rec, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.False(t, access.Secure)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)

	t.Run("duplicate username", func(t *testing.T) {
		before := len(env.storage.saved)
		dup := map[string]string{"fullName": "Other", "username": "janedoe", "email": "other@example.com", "password": "supersafe"}
		rec := env.register(t, dup, true)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Len(t, env.storage.saved, before, "conflicting registration must not upload files")
	})

	t.Run("duplicate email", func(t *testing.T) {
		before := len(env.storage.saved)
		dup := map[string]string{"fullName": "Other", "username": "otherjane", "email": "JANE@example.com", "password": "supersafe"}
		rec := env.register(t, dup, true)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "user with email or username already exists", decodeResponse(t, rec).Error.Message)
		assert.Len(t, env.storage.saved, before, "conflicting registration must not upload files")
	})

	t.Run("missing avatar", func(t *testing.T) {
		rec := env.register(t, map[string]string{"fullName": "A", "username": "noavatar", "email": "a@example.com", "password": "supersafe"}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "avatar file is required", decodeResponse(t, rec).Error.Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := env.register(t, map[string]string{"username": "x"}, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_argument", decodeResponse(t, rec).Error.Kind)
	})
}

func TestLoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t)
	account := env.createAccount(t, "viewer")

	rec := env.do(t, http.MethodPost, "/api/v1/users/login", "", `{"email":"VIEWER@example.com","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeData[auth.LoginResult](t, rec)
	assert.Equal(t, account.ID, login.Account.ID)
	first := login.Tokens.RefreshToken
	require.NotNil(t, cookieNamed(rec, "refreshToken"))

	refresh := func(token string, viaCookie bool) *httptest.ResponseRecorder {
		var req *http.Request
		if viaCookie {
			req = httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
			req.AddCookie(&http.Cookie{Name: "refreshToken", Value: token})
		} else {
			req = httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", bytes.NewBufferString(`{"refreshToken":"`+token+`"}`))
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	rec = refresh(first, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeData[models.SessionTokens](t, rec).RefreshToken
	assert.NotEqual(t, first, second)

	rec = refresh(first, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a rotated grant must not be accepted twice")

	rec = refresh(second, false)
	require.Equal(t, http.StatusOK, rec.Code)
	third := decodeData[models.SessionTokens](t, rec)

	rec = env.do(t, http.MethodGet, "/api/v1/users/me", third.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "viewer", decodeData[models.AccountSummary](t, rec).Username)

	rec = env.do(t, http.MethodPost, "/api/v1/users/logout", third.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := cookieNamed(rec, middleware.AccessTokenCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	rec = refresh(third.RefreshToken, true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "logout revokes the refresh grant")

	rec = refresh("", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "viewer")

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown user", `{"username":"ghost","password":"whatever1"}`, http.StatusNotFound},
		{"wrong password", `{"identifier":"viewer","password":"wrong-password"}`, http.StatusUnauthorized},
		{"missing password", `{"identifier":"viewer"}`, http.StatusBadRequest},
		{"missing identifier", `{"password":"whatever1"}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/users/login", "", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.False(t, decodeResponse(t, rec).Success)
			assert.Nil(t, cookieNamed(rec, middleware.AccessTokenCookie))
		})
	}
}
