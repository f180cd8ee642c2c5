// Package middleware provides HTTP middleware for the querykit server.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/TFMV/querykit/cmd/querykit/config"
	"github.com/TFMV/querykit/pkg/errors"
)

// AuthMiddleware provides authentication middleware.
type AuthMiddleware struct {
	config config.AuthConfig
	logger zerolog.Logger
	skip   map[string]bool

	// JWT verification settings
	HSKey []byte
	Iss   string
	Aud   string
}

// NewAuthMiddleware creates a new authentication middleware. Requests for
// skipPaths are never authenticated.
func NewAuthMiddleware(cfg config.AuthConfig, logger zerolog.Logger, skipPaths ...string) *AuthMiddleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &AuthMiddleware{
		config: cfg,
		logger: logger,
		skip:   skip,
		HSKey:  []byte(cfg.JWTAuth.Secret),
		Iss:    cfg.JWTAuth.Issuer,
		Aud:    cfg.JWTAuth.Audience,
	}
}

// Handler rejects unauthenticated requests with 401.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Enabled || m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authCtx, err := m.authenticate(r)
		if err != nil {
			m.logger.Warn().
				Err(err).
				Str("path", r.URL.Path).
				Str("request_id", GetRequestID(r.Context())).
				Msg("Authentication failed")
			w.Header().Set("WWW-Authenticate", m.challenge())
			writeError(w, http.StatusUnauthorized, errors.GetCode(err), errors.GetMessage(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(authCtx))
	})
}

// authenticate performs authentication based on configured type.
func (m *AuthMiddleware) authenticate(r *http.Request) (context.Context, error) {
	switch m.config.Type {
	case "basic":
		return m.authenticateBasic(r)
	case "bearer":
		return m.authenticateBearer(r)
	case "jwt":
		return m.authenticateJWT(r)
	default:
		return nil, errors.New(errors.CodeInternal, "unsupported auth type: "+m.config.Type)
	}
}

func (m *AuthMiddleware) challenge() string {
	if m.config.Type == "basic" {
		return `Basic realm="querykit"`
	}
	return `Bearer realm="querykit"`
}

func unauthenticated(message string) error {
	return errors.New(errors.CodeUnauthorized, message)
}

// authenticateBasic performs basic authentication.
func (m *AuthMiddleware) authenticateBasic(r *http.Request) (context.Context, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, unauthenticated("missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Basic ") {
		return nil, unauthenticated("invalid authorization header")
	}

	// Decode credentials
	encoded := strings.TrimPrefix(authHeader, "Basic ")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, unauthenticated("invalid credentials encoding")
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, unauthenticated("invalid credentials format")
	}

	userInfo, ok := m.config.BasicAuth.Users[username]
	if !ok {
		return nil, unauthenticated("invalid credentials")
	}

	// Constant time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(password), []byte(userInfo.Password)) != 1 {
		return nil, unauthenticated("invalid credentials")
	}

	ctx := withUser(r.Context(), username)
	ctx = context.WithValue(ctx, contextKeyRoles, userInfo.Roles)

	return ctx, nil
}

// authenticateBearer performs bearer token authentication.
func (m *AuthMiddleware) authenticateBearer(r *http.Request) (context.Context, error) {
	token, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	var username string
	found := false
	for known, user := range m.config.BearerAuth.Tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(known)) == 1 {
			username = user
			found = true
		}
	}
	if !found {
		return nil, unauthenticated("invalid token")
	}

	return withUser(r.Context(), username), nil
}

// authenticateJWT verifies an HS256 token against the configured issuer and
// audience. The subject becomes the user.
func (m *AuthMiddleware) authenticateJWT(r *http.Request) (context.Context, error) {
	tokenString, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.Iss != "" {
		opts = append(opts, jwt.WithIssuer(m.Iss))
	}
	if m.Aud != "" {
		opts = append(opts, jwt.WithAudience(m.Aud))
	}

	claims := jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return m.HSKey, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return nil, unauthenticated("token has no subject")
	}

	return withUser(r.Context(), claims.Subject), nil
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", unauthenticated("missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", unauthenticated("invalid authorization header")
	}
	return strings.TrimPrefix(authHeader, "Bearer "), nil
}

// Context keys for authentication
type contextKey string

const (
	contextKeyUser  contextKey = "user"
	contextKeyRoles contextKey = "roles"
)

// withUser stores the user in ctx and reports it to the logging middleware.
func withUser(ctx context.Context, user string) context.Context {
	if info := requestInfoFrom(ctx); info != nil {
		info.user = user
	}
	return context.WithValue(ctx, contextKeyUser, user)
}

// GetUser extracts the authenticated user from context.
func GetUser(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(contextKeyUser).(string)
	return user, ok
}

// GetRoles extracts the user's roles from context.
func GetRoles(ctx context.Context) ([]string, bool) {
	roles, ok := ctx.Value(contextKeyRoles).([]string)
	return roles, ok
}
