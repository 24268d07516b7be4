// Package auth guards operator endpoints: a shared operator token checked
// against a bcrypt hash is exchanged for a short-lived HS256 access token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/icodeuridevice/AICarServiceAgent/internal/clock"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

const RoleOperator = "operator"

func HashToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	return string(b), err
}

func CheckToken(hash, token string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	return err == nil
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Issuer struct {
	secret    []byte
	tokenHash string
	ttl       time.Duration
	clock     clock.Clock
}

func NewIssuer(secret, operatorTokenHash string, ttl time.Duration, c clock.Clock) *Issuer {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Issuer{secret: []byte(secret), tokenHash: operatorTokenHash, ttl: ttl, clock: c}
}

// Login exchanges the operator token for an access token.
func (i *Issuer) Login(operatorToken string) (AccessToken, error) {
	if i.tokenHash == "" || !CheckToken(i.tokenHash, operatorToken) {
		return AccessToken{}, ErrInvalidCredentials
	}
	return i.Issue("operator", RoleOperator)
}

func (i *Issuer) Issue(subject, role string) (AccessToken, error) {
	now := i.clock.Now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	return AccessToken{Token: signed, ExpiresAt: exp}, nil
}

func (i *Issuer) Verify(raw string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.clock.Now))
	if err != nil || !tok.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
