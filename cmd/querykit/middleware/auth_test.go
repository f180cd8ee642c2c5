package middleware

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/querykit/cmd/querykit/config"
)

func setupTestAuthMiddleware(t *testing.T, authType string) *AuthMiddleware {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	cfg := config.AuthConfig{
		Enabled: true,
		Type:    authType,
	}

	switch authType {
	case "basic":
		cfg.BasicAuth.Users = map[string]config.UserInfo{
			"testuser": {
				Password: "testpass",
				Roles:    []string{"admin"},
			},
		}
	case "bearer":
		cfg.BearerAuth.Tokens = map[string]string{
			"test-token": "testuser",
		}
	case "jwt":
		cfg.JWTAuth = config.JWTAuthConfig{
			Secret:   "test-secret",
			Issuer:   "test-issuer",
			Audience: "test-audience",
		}
	}

	return NewAuthMiddleware(cfg, logger, "/healthz", "/metrics")
}

// echoUser responds with the authenticated user and roles.
func echoUser(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUser(r.Context())
	roles, _ := GetRoles(r.Context())
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"user": user, "roles": roles})
}

func doAuth(t *testing.T, m *AuthMiddleware, path, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	m.Handler(http.HandlerFunc(echoUser)).ServeHTTP(w, req)
	return w
}

func basicHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func signHS256(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "testuser",
		Issuer:    "test-issuer",
		Audience:  jwt.ClaimStrings{"test-audience"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func assertUnauthorized(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestNewAuthMiddleware(t *testing.T) {
	m := setupTestAuthMiddleware(t, "jwt")
	assert.True(t, m.config.Enabled)
	assert.Equal(t, "test-secret", string(m.HSKey))
	assert.Equal(t, "test-issuer", m.Iss)
	assert.Equal(t, "test-audience", m.Aud)
	assert.True(t, m.skip["/healthz"])
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	m := NewAuthMiddleware(config.AuthConfig{}, zerolog.Nop())
	w := doAuth(t, m, "/v1/parse", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	m := setupTestAuthMiddleware(t, "basic")

	for _, path := range []string{"/healthz", "/metrics"} {
		w := doAuth(t, m, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	assertUnauthorized(t, doAuth(t, m, "/v1/parse", ""))
}

func TestAuthMiddleware_Basic(t *testing.T) {
	m := setupTestAuthMiddleware(t, "basic")

	t.Run("valid credentials", func(t *testing.T) {
		w := doAuth(t, m, "/v1/parse", basicHeader("testuser", "testpass"))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			User  string   `json:"user"`
			Roles []string `json:"roles"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "testuser", body.User)
		assert.Equal(t, []string{"admin"}, body.Roles)
	})

	t.Run("challenge is basic", func(t *testing.T) {
		w := doAuth(t, m, "/v1/parse", "")
		assert.Equal(t, `Basic realm="querykit"`, w.Header().Get("WWW-Authenticate"))
	})

	failures := map[string]string{
		"wrong password":   basicHeader("testuser", "nope"),
		"unknown user":     basicHeader("other", "testpass"),
		"bad encoding":     "Basic !!!",
		"missing colon":    "Basic " + base64.StdEncoding.EncodeToString([]byte("testuser")),
		"bearer on basic":  "Bearer test-token",
		"no authorization": "",
	}
	for name, header := range failures {
		t.Run(name, func(t *testing.T) {
			assertUnauthorized(t, doAuth(t, m, "/v1/parse", header))
		})
	}
}

func TestAuthMiddleware_Bearer(t *testing.T) {
	m := setupTestAuthMiddleware(t, "bearer")

	w := doAuth(t, m, "/v1/parse", "Bearer test-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user":"testuser"`)

	assertUnauthorized(t, doAuth(t, m, "/v1/parse", "Bearer wrong-token"))
	assertUnauthorized(t, doAuth(t, m, "/v1/parse", basicHeader("testuser", "testpass")))
}

func TestAuthMiddleware_JWT(t *testing.T) {
	m := setupTestAuthMiddleware(t, "jwt")

	t.Run("valid token", func(t *testing.T) {
		token := signHS256(t, "test-secret", validClaims())
		w := doAuth(t, m, "/v1/parse", "Bearer "+token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user":"testuser"`)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		assertUnauthorized(t, doAuth(t, m, "/v1/parse", "Bearer "+signHS256(t, "test-secret", claims)))
	})

	t.Run("missing expiry", func(t *testing.T) {
		claims := validClaims()
		claims.ExpiresAt = nil
		assertUnauthorized(t, doAuth(t, m, "/v1/parse", "Bearer "+signHS256(t, "test-secret", claims)))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := validClaims()
		claims.Issuer = "someone-else"
		assertUnauthorized(t, doAuth(t, m, "/v1/parse", "Bearer "+signHS256(t, "test-secret", claims)))
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := validClaims()
		claims.Audience = jwt.ClaimStrings{"another-audience"}
		assertUnauthorized(t, doAuth(t, m, "/v1/parse", "Bearer "+signHS256(t, "test-secret", claims)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assertUnauthorized(t, doAuth(t, m, "/v1/parse", "Bearer "+signHS256(t, "other-secret", validClaims())))
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := validClaims()
		claims.Subject = ""
		assertUnauthorized(t, doAuth(t, m, "/v1/parse", "Bearer "+signHS256(t, "test-secret", claims)))
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		token, err := jwt.NewWithClaims(jwt.SigningMethodES256, validClaims()).SignedString(key)
		require.NoError(t, err)
		assertUnauthorized(t, doAuth(t, m, "/v1/parse", "Bearer "+token))
	})

	t.Run("malformed token", func(t *testing.T) {
		assertUnauthorized(t, doAuth(t, m, "/v1/parse", "Bearer not.a.jwt"))
	})
}

func TestAuthMiddleware_UserReachesLogging(t *testing.T) {
	m := setupTestAuthMiddleware(t, "bearer")
	info := &requestInfo{id: "req-1"}

	req := httptest.NewRequest(http.MethodPost, "/v1/parse", nil)
	req = req.WithContext(withRequestInfo(req.Context(), info))
	req.Header.Set("Authorization", "Bearer test-token")

	w := httptest.NewRecorder()
	m.Handler(http.HandlerFunc(echoUser)).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "testuser", info.user)
}
