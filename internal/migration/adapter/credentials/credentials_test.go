package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cosmo-migrator/internal/migration/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenSource_None(t *testing.T) {
	ts, err := NewTokenSource(context.Background(), config.APIConfig{AuthMode: config.AuthNone})
	require.NoError(t, err)
	assert.Nil(t, ts)

	client := NewHTTPClient(context.Background(), nil, 5*time.Second)
	assert.Equal(t, 5*time.Second, client.Timeout)
}

func TestNewTokenSource_Static(t *testing.T) {
	ts, err := NewTokenSource(context.Background(), config.APIConfig{AuthMode: config.AuthStaticToken, Token: "abc"})
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
}

func TestNewTokenSource_ClientCredentials(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "api://cosmo/.default", r.Form.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"issued","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	ts, err := NewTokenSource(context.Background(), config.APIConfig{
		AuthMode:     config.AuthClientCredentials,
		TokenURL:     server.URL,
		ClientID:     "migrator",
		ClientSecret: "secret",
		Scope:        "api://cosmo/.default",
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "issued", tok.AccessToken)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "token is cached until expiry")
}

func TestNewTokenSource_Unsupported(t *testing.T) {
	_, err := NewTokenSource(context.Background(), config.APIConfig{AuthMode: "kerberos"})
	assert.Error(t, err)
}

func TestServiceTokenSource(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	src, err := NewServiceTokenSource(ServiceTokenConfig{
		SigningKey: "shared-secret",
		Issuer:     "cosmo-migrator",
		Subject:    "run-1",
		Audience:   "cosmo-api",
		Scope:      "platform",
		TTL:        time.Minute,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, now.Add(time.Minute), tok.Expiry)

	claims, err := ParseServiceToken(tok.AccessToken, "shared-secret")
	require.NoError(t, err)
	assert.Equal(t, "cosmo-migrator", claims.Issuer)
	assert.Equal(t, "run-1", claims.Subject)
	assert.Equal(t, "platform", claims.Scope)

	_, err = ParseServiceToken(tok.AccessToken, "other-secret")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = ParseServiceToken("", "shared-secret")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestServiceTokenSource_Validation(t *testing.T) {
	_, err := NewServiceTokenSource(ServiceTokenConfig{TTL: time.Minute})
	assert.Error(t, err)
	_, err = NewServiceTokenSource(ServiceTokenConfig{SigningKey: "k"})
	assert.Error(t, err)
}

func TestNewHTTPClient_AttachesBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ts, err := NewTokenSource(context.Background(), config.APIConfig{
		AuthMode: config.AuthJWT, JWTSigningKey: "k", JWTIssuer: "i", JWTTTL: time.Minute,
	})
	require.NoError(t, err)

	resp, err := NewHTTPClient(context.Background(), ts, time.Second).Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
