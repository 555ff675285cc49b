package media

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"voicebridge/pkg/types"
)

// RoomClaims is the payload of a room access token: a capability scoped
// to exactly one room and one user, bounded by the expiry claim.
type RoomClaims struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
	jwt.RegisteredClaims
}

// MintToken signs a room-scoped HS256 token. Subject carries the user id
// and Issuer the media app id, so verification can pin both.
func MintToken(appID, serverSecret, roomID string, identity types.Identity, ttl time.Duration) (string, error) {
	if appID == "" || serverSecret == "" {
		return "", ErrNotConfigured
	}
	if roomID == "" {
		return "", fmt.Errorf("room id cannot be empty")
	}
	if identity.UserID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}

	now := time.Now()
	claims := RoomClaims{
		RoomID:   roomID,
		UserName: identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    appID,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(serverSecret))
}

// VerifyToken validates signature, expiry and issuer, returning the
// claims. Room and user scoping is checked by the caller against the
// join parameters.
func VerifyToken(appID, serverSecret, tokenStr string) (*RoomClaims, error) {
	if appID == "" || serverSecret == "" {
		return nil, ErrNotConfigured
	}

	token, err := jwt.ParseWithClaims(tokenStr, &RoomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(serverSecret), nil
	}, jwt.WithIssuer(appID), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.RoomID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
