package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"quiz-session-engine/internal/domain"
)

// ErrNoUserID is returned when a token carries no recognizable user id claim.
var ErrNoUserID = errors.New("token has no user id")

// IdentityFromToken reads the participant identity from a bearer token. The signature is
// not checked here; the server verifies it on every request.
func IdentityFromToken(token string) (domain.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return domain.Identity{}, fmt.Errorf("parse token: %w", domain.ErrUnauthorized)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return domain.Identity{}, fmt.Errorf("parse token: %w", err)
	}

	id, ok := userID(claims)
	if !ok {
		return domain.Identity{}, ErrNoUserID
	}
	username, _ := claims["username"].(string)
	return domain.Identity{UserID: id, Username: username, Token: token}, nil
}

func userID(claims jwt.MapClaims) (int64, bool) {
	for _, key := range []string{"id", "userId", "user_id", "sub"} {
		switch v := claims[key].(type) {
		case float64:
			return int64(v), true
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				return id, true
			}
		}
	}
	return 0, false
}
