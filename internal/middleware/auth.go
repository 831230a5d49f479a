package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pulsewatch/pulsewatch/internal/api"
)

// UserClaims represents the JWT claims for an authenticated admin
type UserClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthConfig holds JWT authentication configuration
type AuthConfig struct {
	AdminUsername     string
	AdminPasswordHash string // bcrypt hash
	JWTSecret         string
	JWTExpiryHours    int
	// SkipPaths bypass authentication; a trailing "*" matches by prefix
	SkipPaths []string
}

// AuthMiddleware provides JWT-based authentication for the admin API
type AuthMiddleware struct {
	config  *AuthConfig
	skipMap map[string]bool
}

// NewAuthMiddleware creates a new JWT authentication middleware
func NewAuthMiddleware(config *AuthConfig) *AuthMiddleware {
	m := &AuthMiddleware{
		config:  config,
		skipMap: make(map[string]bool),
	}
	for _, path := range config.SkipPaths {
		m.skipMap[path] = true
	}
	return m
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// ValidateCredentials checks the admin username and password
func (m *AuthMiddleware) ValidateCredentials(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(m.config.AdminUsername)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(m.config.AdminPasswordHash), []byte(password)) == nil
}

// GenerateToken issues a signed JWT for the given user
func (m *AuthMiddleware) GenerateToken(username string) (string, error) {
	claims := UserClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(m.config.JWTExpiryHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "pulsewatch",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.JWTSecret))
}

// TokenExpirySeconds returns the configured token lifetime in seconds
func (m *AuthMiddleware) TokenExpirySeconds() int {
	return m.config.JWTExpiryHours * 3600
}

// ValidateToken parses and validates a JWT, returning its claims
func (m *AuthMiddleware) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// userContextKey is the context key for the authenticated username
type userContextKey struct{}

// AuthenticatedUser returns the username from the request context
func AuthenticatedUser(ctx context.Context) string {
	if username, ok := ctx.Value(userContextKey{}).(string); ok {
		return username
	}
	return ""
}

// Wrap wraps an http.Handler with JWT authentication
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.shouldSkipAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := extractBearerToken(r)
		if tokenString == "" {
			m.unauthorized(w, "Missing authentication token")
			return
		}

		claims, err := m.ValidateToken(tokenString)
		if err != nil {
			log.Printf("AuthMiddleware: invalid token from %s: %v", r.RemoteAddr, err)
			m.unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey{}, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// shouldSkipAuth checks exact skip paths and "prefix*" patterns
func (m *AuthMiddleware) shouldSkipAuth(path string) bool {
	if m.skipMap[path] {
		return true
	}
	for skipPath := range m.skipMap {
		if strings.HasSuffix(skipPath, "*") && strings.HasPrefix(path, strings.TrimSuffix(skipPath, "*")) {
			return true
		}
	}
	return false
}

// extractBearerToken pulls the JWT from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func (m *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="API"`)
	api.RespondError(w, http.StatusUnauthorized, message)
}
