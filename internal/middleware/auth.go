package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/services"
)

type contextKey string

const userIDKey contextKey = "userID"

var errNoSubject = errors.New("token carries no user id")

// UserID returns the authenticated caller, or "" outside AuthMiddleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID is used by tests and by AuthMiddleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// AuthMiddleware verifies HS256 bearer tokens issued by the front end and
// puts the caller's user id into the request context.
func AuthMiddleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("auth")
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			userID, err := validateToken(parts[1], key)
			if err != nil {
				logger.Debug("token rejected", zap.Error(err))
				services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func validateToken(tokenString string, key []byte) (string, error) {
	if len(key) == 0 {
		return "", errors.New("jwt secret is not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}

	// user_id is what the front end issues; sub is accepted for other issuers.
	for _, name := range []string{"user_id", "sub"} {
		if v, ok := claims[name]; ok && v != nil {
			if id := strings.TrimSpace(fmt.Sprintf("%v", v)); id != "" {
				return id, nil
			}
		}
	}
	return "", errNoSubject
}
