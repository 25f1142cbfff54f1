package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authentication error: no token provided")
	ErrInvalidToken = errors.New("authentication error: invalid token")
	ErrExpiredToken = errors.New("authentication error: token has expired")
)

const bearerScheme = "Bearer"

// Identity is who a connection or request belongs to. It is fixed once the
// credential has been verified.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
}

// Claims mirrors the token payload issued by the account service.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IVerifier turns an opaque bearer credential into an Identity.
type IVerifier interface {
	Verify(token string) (Identity, error)
}

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify accepts the raw token with or without the "Bearer " prefix.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = StripBearer(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	id := claims.ID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: id, Username: claims.Username}, nil
}

// Issue signs a token for the given identity. The server never hands tokens
// out itself; this is used by tests and local tooling.
func (v *Verifier) Issue(who Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:       who.UserID,
		Username: who.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   who.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// StripBearer drops a leading "Bearer" scheme, case-insensitively. A header
// holding only the scheme yields "".
func StripBearer(s string) string {
	f := strings.Fields(s)
	if len(f) > 0 && strings.EqualFold(f[0], bearerScheme) {
		f = f[1:]
	}
	return strings.Join(f, "")
}
