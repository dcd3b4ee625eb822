// Package auth issues and validates the HS256 bearer tokens of the dev backend.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Huddle/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	DefaultUserTTL = 24 * time.Hour
	DefaultCallTTL = time.Hour
)

// Claims identify a user. RoomID is only set on call tokens.
type Claims struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username,omitempty"`
	RoomID   domain.RoomID `json:"room_id,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secretKey []byte
	now       func() time.Time
}

func NewIssuer(secretKey string) *Issuer {
	return &Issuer{secretKey: []byte(secretKey), now: time.Now}
}

// MintUser returns a bearer token for the REST API and the chat socket.
func (i *Issuer) MintUser(user domain.UserID, username string, ttl time.Duration) (string, error) {
	return i.sign(Claims{UserID: user, Username: username}, ttl)
}

// MintCall returns an access token that admits user to one signaling room.
func (i *Issuer) MintCall(room domain.RoomID, user domain.UserID, ttl time.Duration) (string, time.Time, error) {
	exp := i.now().Add(ttl)
	tok, err := i.sign(Claims{UserID: user, RoomID: room}, ttl)
	return tok, exp, err
}

func (i *Issuer) sign(claims Claims, ttl time.Duration) (string, error) {
	now := i.now()
	claims.Subject = claims.UserID.String()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secretKey)
}

func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return i.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
