package signal

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/watchparty/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrTokensDisabled = errors.New("identity tokens are disabled: no secret configured")

// IdentityClaims carries the (session, user) pair a connection binds to.
// The user id travels as the subject.
type IdentityClaims struct {
	SessionID int64  `json:"sid"`
	Username  string `json:"name"`
	jwt.RegisteredClaims
}

type Identity struct {
	SessionID   domain.SessionID
	Participant domain.Participant
}

// IssueToken signs an identity with HS256. The session management side of
// the product hands these out; the relay only verifies them.
func IssueToken(secret string, id Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrTokensDisabled
	}
	now := time.Now()
	claims := IdentityClaims{
		SessionID: int64(id.SessionID),
		Username:  id.Participant.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(int64(id.Participant.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseToken(secret, raw string) (Identity, error) {
	if secret == "" {
		return Identity{}, ErrTokensDisabled
	}
	token, err := jwt.ParseWithClaims(raw, &IdentityClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return Identity{}, fmt.Errorf("token subject %q is not a user id", claims.Subject)
	}
	if claims.SessionID <= 0 {
		return Identity{}, fmt.Errorf("token has no session")
	}
	if err := domain.ValidateUsername(claims.Username); err != nil {
		return Identity{}, fmt.Errorf("token username: %w", err)
	}
	return Identity{
		SessionID:   domain.SessionID(claims.SessionID),
		Participant: domain.Participant{UserID: domain.UserID(uid), Username: claims.Username},
	}, nil
}
