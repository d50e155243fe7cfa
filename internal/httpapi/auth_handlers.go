package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role accepted by the admin API.
const RoleAdmin = "admin"

// Context key for admin data
type contextKey string

const adminContextKey contextKey = "admin"

// AdminClaims are the claims of an admin API token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// AdminUser is the authenticated operator in request context.
type AdminUser struct {
	Subject string
	Email   string
}

// IssueAdminToken signs an HS256 admin token valid for ttl.
func IssueAdminToken(secret, subject, email string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("JWT secret is not configured")
	}
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:  RoleAdmin,
		Email: email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// bearerToken reads the token from the Authorization header. Browsers cannot
// set headers on WebSocket upgrades, so ?token= is accepted there.
func bearerToken(req *http.Request) (string, error) {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		if t := req.URL.Query().Get("token"); t != "" && strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
			return t, nil
		}
		return "", errors.New("missing authorization header")
	}

	// Expect "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization format")
	}
	return parts[1], nil
}

// withAdmin is middleware that requires a valid admin JWT.
func (r *Router) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.JWTSecret == "" {
			http.Error(w, `{"error": "admin API disabled"}`, http.StatusServiceUnavailable)
			return
		}

		tokenString, err := bearerToken(req)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error": %q}`, err.Error()), http.StatusUnauthorized)
			return
		}

		// Parse and validate JWT
		token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(r.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(*AdminClaims)
		if !ok {
			http.Error(w, `{"error": "invalid token claims"}`, http.StatusUnauthorized)
			return
		}
		if claims.Role != RoleAdmin {
			http.Error(w, `{"error": "admin access required"}`, http.StatusForbidden)
			return
		}

		admin := &AdminUser{Subject: claims.Subject, Email: claims.Email}
		ctx := context.WithValue(req.Context(), adminContextKey, admin)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

// getAdminUser extracts the authenticated operator from context
func getAdminUser(ctx context.Context) *AdminUser {
	admin, _ := ctx.Value(adminContextKey).(*AdminUser)
	return admin
}
