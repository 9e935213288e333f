package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

const defaultClockSkew = 2 * time.Minute

// Authenticator resolves the caller of a write from an HS256 bearer token.
// The token subject is the caller's hex address.
type Authenticator struct {
	secret []byte
	issuer string
	skew   time.Duration
	now    func() time.Time
}

// NewAuthenticator builds an authenticator. An empty issuer skips the issuer
// check.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: strings.TrimSpace(issuer),
		skew:   defaultClockSkew,
		now:    time.Now,
	}
}

// Caller validates the request's bearer token and returns the address it was
// issued to.
func (a *Authenticator) Caller(r *http.Request) (common.Address, error) {
	token := extractBearer(r.Header.Get("Authorization"))
	if token == "" {
		return common.Address{}, errors.New("missing bearer token")
	}
	return a.Verify(token)
}

// Verify parses token and returns its subject address.
func (a *Authenticator) Verify(token string) (common.Address, error) {
	if len(a.secret) == 0 {
		return common.Address{}, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.skew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return common.Address{}, errors.New("invalid token")
	}
	subject := strings.TrimSpace(claims.Subject)
	if !common.IsHexAddress(subject) {
		return common.Address{}, fmt.Errorf("token subject %q is not an address", subject)
	}
	return common.HexToAddress(subject), nil
}

// IssueToken mints an HS256 token for caller valid for ttl.
func IssueToken(secret, issuer string, caller common.Address, ttl time.Duration) (string, error) {
	return issueTokenAt(secret, issuer, caller, ttl, time.Now())
}

func issueTokenAt(secret, issuer string, caller common.Address, ttl time.Duration, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("jwt secret required")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	claims := jwt.RegisteredClaims{
		Subject:   caller.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		claims.Issuer = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
